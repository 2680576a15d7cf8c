// Package store holds the two storage contracts orders live in: a document
// store for one-shot reads and queries, and a realtime store that pushes
// changes to listeners.
package store

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("document not found")

// DocumentStore keeps JSON records addressed by collection and id.
type DocumentStore interface {
	// Set replaces the record.
	Set(ctx context.Context, collection, id string, record any) error

	// Get returns the record, or found=false if it does not exist.
	Get(ctx context.Context, collection, id string) (json.RawMessage, bool, error)

	// Update shallow-merges fields into an existing record. A nil value
	// removes the field. Missing records fail with ErrNotFound.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Query returns every record whose top-level field equals value.
	Query(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error)

	// List returns every record in the collection.
	List(ctx context.Context, collection string) ([]json.RawMessage, error)
}

// Unsubscribe detaches a realtime listener. Calling it more than once is safe.
type Unsubscribe func()

// RealtimeStore keeps a JSON tree addressed by slash separated paths.
type RealtimeStore interface {
	Set(ctx context.Context, path string, value any) error

	// Update shallow-merges fields into the node at path, creating it if needed.
	Update(ctx context.Context, path string, fields map[string]any) error

	Get(ctx context.Context, path string) (Snapshot, error)
	Remove(ctx context.Context, path string) error

	// Subscribe fires onChange with the current value of path and again
	// after every mutation of path, one of its descendants or one of its
	// ancestors. Deliveries to one listener never overlap, so onChange must
	// not write synchronously to a path it observes.
	Subscribe(path string, onChange func(Snapshot), onError func(error)) Unsubscribe
}

// Snapshot is the value of a realtime node at one point in time.
type Snapshot struct {
	Path  string
	Value json.RawMessage
}

// Exists reports whether the node had a value.
func (s Snapshot) Exists() bool {
	return len(s.Value) > 0 && string(s.Value) != "null"
}

// Decode unmarshals the node value into v.
func (s Snapshot) Decode(v any) error {
	if !s.Exists() {
		return ErrNotFound
	}
	return errors.Wrapf(json.Unmarshal(s.Value, v), "decode %s", s.Path)
}

// Key returns the last segment of the snapshot path.
func (s Snapshot) Key() string {
	segs := SplitPath(s.Path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// SplitPath cleans path into its non-empty segments.
func SplitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// JoinPath joins segments with "/".
func JoinPath(segs ...string) string {
	return strings.Join(SplitPath(strings.Join(segs, "/")), "/")
}

// Related reports whether a mutation at changed is visible to a listener at watched.
func Related(watched, changed string) bool {
	w, c := JoinPath(watched), JoinPath(changed)
	if w == c || w == "" || c == "" {
		return true
	}
	return strings.HasPrefix(c, w+"/") || strings.HasPrefix(w, c+"/")
}

// toTree converts v into plain JSON values (maps, slices, float64, string, bool, nil).
func toTree(v any) (any, error) {
	raw, ok := v.(json.RawMessage)
	if !ok {
		var err error
		raw, err = json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "encode record")
		}
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	return out, nil
}

// toObject is toTree for values that must be JSON objects.
func toObject(v any) (map[string]any, error) {
	t, err := toTree(v)
	if err != nil {
		return nil, err
	}
	obj, ok := t.(map[string]any)
	if !ok {
		return nil, errors.Errorf("record must be a JSON object, got %T", t)
	}
	return obj, nil
}

// mergeFields applies fields onto current with shallow-merge semantics.
func mergeFields(current map[string]any, fields map[string]any) (map[string]any, error) {
	patch, err := toObject(fields)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(current, k)
			continue
		}
		current[k] = v
	}
	return current, nil
}

// fieldEquals compares a decoded record field against a query value.
func fieldEquals(record map[string]any, field string, value any) bool {
	got, ok := record[field]
	if !ok {
		return false
	}
	want, err := toTree(value)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(got, want)
}
