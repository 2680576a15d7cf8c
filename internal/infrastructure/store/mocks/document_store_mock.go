package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/example/swirly-orders/internal/infrastructure/store"
)

// MockDocumentStore is an in-memory DocumentStore that records calls and
// can be told to fail.
type MockDocumentStore struct {
	inner *store.MemoryDocumentStore

	mu          sync.Mutex
	SetCalls    []DocCall
	GetCalls    []DocCall
	UpdateCalls []DocCall
	DeleteCalls []DocCall
	QueryCalls  []QueryCall
	ListCalls   []string

	SetErr    error
	GetErr    error
	UpdateErr error
	DeleteErr error
	QueryErr  error
	ListErr   error

	// GetHook runs before every Get. Tests use it to block or count reads.
	GetHook func(collection, id string)
}

// DocCall records the collection, id and payload of a document operation.
type DocCall struct {
	Collection string
	ID         string
	Data       any
}

// QueryCall records parameters passed to Query
type QueryCall struct {
	Collection string
	Field      string
	Value      any
}

func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{inner: store.NewMemoryDocumentStore()}
}

func (m *MockDocumentStore) Set(ctx context.Context, collection, id string, record any) error {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, DocCall{Collection: collection, ID: id, Data: record})
	err := m.SetErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Set(ctx, collection, id, record)
}

func (m *MockDocumentStore) Get(ctx context.Context, collection, id string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, DocCall{Collection: collection, ID: id})
	err, hook := m.GetErr, m.GetHook
	m.mu.Unlock()
	if hook != nil {
		hook(collection, id)
	}
	if err != nil {
		return nil, false, err
	}
	return m.inner.Get(ctx, collection, id)
}

func (m *MockDocumentStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	m.UpdateCalls = append(m.UpdateCalls, DocCall{Collection: collection, ID: id, Data: fields})
	err := m.UpdateErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Update(ctx, collection, id, fields)
}

func (m *MockDocumentStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, DocCall{Collection: collection, ID: id})
	err := m.DeleteErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Delete(ctx, collection, id)
}

func (m *MockDocumentStore) Query(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error) {
	m.mu.Lock()
	m.QueryCalls = append(m.QueryCalls, QueryCall{Collection: collection, Field: field, Value: value})
	err := m.QueryErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.Query(ctx, collection, field, value)
}

func (m *MockDocumentStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	m.mu.Lock()
	m.ListCalls = append(m.ListCalls, collection)
	err := m.ListErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.List(ctx, collection)
}

// SetData stores a record directly without recording the call.
func (m *MockDocumentStore) SetData(collection, id string, record any) {
	_ = m.inner.Set(context.Background(), collection, id, record)
}

// GetData decodes a stored record into v without recording the call.
func (m *MockDocumentStore) GetData(collection, id string, v any) bool {
	raw, ok, err := m.inner.Get(context.Background(), collection, id)
	if err != nil || !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// Calls returns how many operations of each kind were recorded.
func (m *MockDocumentStore) Calls() (set, get, update, del int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SetCalls), len(m.GetCalls), len(m.UpdateCalls), len(m.DeleteCalls)
}

// Reset clears all data, recorded calls and injected errors.
func (m *MockDocumentStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inner = store.NewMemoryDocumentStore()
	m.SetCalls, m.GetCalls, m.UpdateCalls, m.DeleteCalls = nil, nil, nil, nil
	m.QueryCalls, m.ListCalls = nil, nil
	m.SetErr, m.GetErr, m.UpdateErr, m.DeleteErr, m.QueryErr, m.ListErr = nil, nil, nil, nil, nil, nil
	m.GetHook = nil
}
