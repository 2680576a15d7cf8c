package mocks

import (
	"context"
	"sync"

	"github.com/example/swirly-orders/internal/infrastructure/store"
)

// MockRealtimeStore is an in-memory RealtimeStore that records calls, can be
// told to fail and can push listener errors on demand.
type MockRealtimeStore struct {
	inner *store.MemoryRealtimeStore

	mu          sync.Mutex
	SetCalls    []PathCall
	UpdateCalls []PathCall
	RemoveCalls []string
	GetCalls    []string
	Subscribed  []string

	SetErr    error
	UpdateErr error
	RemoveErr error
	GetErr    error

	errorSinks map[int]errorSink
	nextSink   int
}

// PathCall records the path and payload of a realtime write.
type PathCall struct {
	Path string
	Data any
}

type errorSink struct {
	path    string
	onError func(error)
}

func NewMockRealtimeStore() *MockRealtimeStore {
	return &MockRealtimeStore{
		inner:      store.NewMemoryRealtimeStore(),
		errorSinks: make(map[int]errorSink),
	}
}

func (m *MockRealtimeStore) Set(ctx context.Context, path string, value any) error {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, PathCall{Path: path, Data: value})
	err := m.SetErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Set(ctx, path, value)
}

func (m *MockRealtimeStore) Update(ctx context.Context, path string, fields map[string]any) error {
	m.mu.Lock()
	m.UpdateCalls = append(m.UpdateCalls, PathCall{Path: path, Data: fields})
	err := m.UpdateErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Update(ctx, path, fields)
}

func (m *MockRealtimeStore) Remove(ctx context.Context, path string) error {
	m.mu.Lock()
	m.RemoveCalls = append(m.RemoveCalls, path)
	err := m.RemoveErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Remove(ctx, path)
}

func (m *MockRealtimeStore) Get(ctx context.Context, path string) (store.Snapshot, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, path)
	err := m.GetErr
	m.mu.Unlock()
	if err != nil {
		return store.Snapshot{}, err
	}
	return m.inner.Get(ctx, path)
}

func (m *MockRealtimeStore) Subscribe(path string, onChange func(store.Snapshot), onError func(error)) store.Unsubscribe {
	m.mu.Lock()
	m.Subscribed = append(m.Subscribed, path)
	id := m.nextSink
	m.nextSink++
	m.errorSinks[id] = errorSink{path: store.JoinPath(path), onError: onError}
	m.mu.Unlock()

	unsub := m.inner.Subscribe(path, onChange, onError)
	return func() {
		m.mu.Lock()
		delete(m.errorSinks, id)
		m.mu.Unlock()
		unsub()
	}
}

// EmitError delivers err to every listener attached at path.
func (m *MockRealtimeStore) EmitError(path string, err error) {
	m.mu.Lock()
	var sinks []func(error)
	for _, s := range m.errorSinks {
		if s.path == store.JoinPath(path) && s.onError != nil {
			sinks = append(sinks, s.onError)
		}
	}
	m.mu.Unlock()
	for _, fn := range sinks {
		fn(err)
	}
}

// ListenerCount returns the number of attached listeners.
func (m *MockRealtimeStore) ListenerCount() int {
	return m.inner.ListenerCount()
}

// SetData writes a value directly without recording the call.
func (m *MockRealtimeStore) SetData(path string, value any) {
	_ = m.inner.Set(context.Background(), path, value)
}

// GetData reads a value directly without recording the call.
func (m *MockRealtimeStore) GetData(path string) store.Snapshot {
	snap, _ := m.inner.Get(context.Background(), path)
	return snap
}
