package store

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

type listener struct {
	path     string
	onChange func(Snapshot)
	onError  func(error)

	mu        sync.Mutex
	delivered bool
	lastSeq   uint64
	cancelled atomic.Bool
}

type delivery struct {
	l    *listener
	snap Snapshot
	seq  uint64
}

// MemoryRealtimeStore is an in-memory RealtimeStore. Listeners are invoked on
// the writing goroutine, one call at a time per listener, and never see an
// older value after a newer one.
type MemoryRealtimeStore struct {
	mu        sync.Mutex
	root      map[string]any
	seq       uint64
	nextID    int
	listeners map[int]*listener
}

func NewMemoryRealtimeStore() *MemoryRealtimeStore {
	return &MemoryRealtimeStore{
		root:      make(map[string]any),
		listeners: make(map[int]*listener),
	}
}

func (s *MemoryRealtimeStore) Set(_ context.Context, path string, value any) error {
	tree, err := toTree(value)
	if err != nil {
		return err
	}
	return s.mutate(path, func() {
		segs := SplitPath(path)
		if len(segs) == 0 {
			obj, _ := tree.(map[string]any)
			if obj == nil {
				obj = make(map[string]any)
			}
			s.root = obj
			return
		}
		setIn(s.root, segs, tree)
	})
}

func (s *MemoryRealtimeStore) Update(_ context.Context, path string, fields map[string]any) error {
	patch, err := toObject(fields)
	if err != nil {
		return err
	}
	return s.mutate(path, func() {
		segs := SplitPath(path)
		for k, v := range patch {
			setIn(s.root, append(append([]string{}, segs...), k), v)
		}
	})
}

func (s *MemoryRealtimeStore) Remove(_ context.Context, path string) error {
	return s.mutate(path, func() {
		segs := SplitPath(path)
		if len(segs) == 0 {
			s.root = make(map[string]any)
			return
		}
		setIn(s.root, segs, nil)
	})
}

func (s *MemoryRealtimeStore) Get(_ context.Context, path string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(path)
}

// Subscribe runs onChange on the writing goroutine while the listener is
// locked. A callback must not write synchronously to a path it observes; such
// writes have to be handed to another goroutine.
func (s *MemoryRealtimeStore) Subscribe(path string, onChange func(Snapshot), onError func(error)) Unsubscribe {
	l := &listener{path: JoinPath(path), onChange: onChange, onError: onError}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	snap, err := s.snapshot(l.path)
	seq := s.seq
	s.mu.Unlock()

	if err != nil {
		if onError != nil {
			onError(err)
		}
	} else {
		deliver(delivery{l: l, snap: snap, seq: seq})
	}

	return func() {
		if l.cancelled.Swap(true) {
			return
		}
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// ListenerCount returns the number of attached listeners.
func (s *MemoryRealtimeStore) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *MemoryRealtimeStore) mutate(path string, apply func()) error {
	s.mu.Lock()
	apply()
	s.seq++
	seq := s.seq

	var pending []delivery
	var failed []*listener
	var snapErr error
	for _, l := range s.listeners {
		if !Related(l.path, path) {
			continue
		}
		snap, err := s.snapshot(l.path)
		if err != nil {
			failed = append(failed, l)
			snapErr = err
			continue
		}
		pending = append(pending, delivery{l: l, snap: snap, seq: seq})
	}
	s.mu.Unlock()

	for _, d := range pending {
		deliver(d)
	}
	for _, l := range failed {
		if l.onError != nil && !l.cancelled.Load() {
			l.onError(snapErr)
		}
	}
	return nil
}

// snapshot must be called with s.mu held.
func (s *MemoryRealtimeStore) snapshot(path string) (Snapshot, error) {
	path = JoinPath(path)
	var node any = s.root
	for _, seg := range SplitPath(path) {
		m, ok := node.(map[string]any)
		if !ok {
			node = nil
			break
		}
		node = m[seg]
	}
	if node == nil {
		return Snapshot{Path: path}, nil
	}
	if m, ok := node.(map[string]any); ok && len(m) == 0 {
		return Snapshot{Path: path}, nil
	}
	raw, err := json.Marshal(node)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "encode %s", path)
	}
	return Snapshot{Path: path, Value: raw}, nil
}

func deliver(d delivery) {
	d.l.mu.Lock()
	defer d.l.mu.Unlock()
	if d.l.cancelled.Load() || (d.l.delivered && d.seq <= d.l.lastSeq) {
		return
	}
	d.l.delivered = true
	d.l.lastSeq = d.seq
	d.l.onChange(d.snap)
}

// setIn writes value at segs below node. A nil value deletes the key and
// empty parents are pruned.
func setIn(node map[string]any, segs []string, value any) {
	key := segs[0]
	if len(segs) == 1 {
		if m, ok := value.(map[string]any); value == nil || (ok && len(m) == 0) {
			delete(node, key)
			return
		}
		node[key] = value
		return
	}
	child, ok := node[key].(map[string]any)
	if !ok {
		if value == nil {
			return
		}
		child = make(map[string]any)
		node[key] = child
	}
	setIn(child, segs[1:], value)
	if len(child) == 0 {
		delete(node, key)
	}
}
