package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MemoryDocumentStore is an in-memory DocumentStore.
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	data map[string]map[string]map[string]any // collection -> id -> record
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		data: make(map[string]map[string]map[string]any),
	}
}

func (s *MemoryDocumentStore) Set(_ context.Context, collection, id string, record any) error {
	obj, err := toObject(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[collection] == nil {
		s.data[collection] = make(map[string]map[string]any)
	}
	s.data[collection][id] = obj
	return nil
}

func (s *MemoryDocumentStore) Get(_ context.Context, collection, id string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[collection][id]
	if !ok {
		return nil, false, nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, false, errors.Wrapf(err, "encode %s/%s", collection, id)
	}
	return raw, true, nil
}

func (s *MemoryDocumentStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[collection][id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	merged, err := mergeFields(rec, fields)
	if err != nil {
		return err
	}
	s.data[collection][id] = merged
	return nil
}

func (s *MemoryDocumentStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[collection] != nil {
		delete(s.data[collection], id)
	}
	return nil
}

func (s *MemoryDocumentStore) Query(_ context.Context, collection, field string, value any) ([]json.RawMessage, error) {
	return s.collect(collection, func(rec map[string]any) bool {
		return fieldEquals(rec, field, value)
	})
}

func (s *MemoryDocumentStore) List(_ context.Context, collection string) ([]json.RawMessage, error) {
	return s.collect(collection, func(map[string]any) bool { return true })
}

func (s *MemoryDocumentStore) collect(collection string, keep func(map[string]any) bool) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data[collection]))
	for id := range s.data[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []json.RawMessage
	for _, id := range ids {
		rec := s.data[collection][id]
		if !keep(rec) {
			continue
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s/%s", collection, id)
		}
		out = append(out, raw)
	}
	return out, nil
}
