package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// RedisRealtimeStore keeps the realtime tree in Redis as one key per leaf
// value and announces every mutated path on a pub/sub channel.
type RedisRealtimeStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRealtimeStore(client redis.UniversalClient, prefix string) *RedisRealtimeStore {
	if prefix == "" {
		prefix = "rt"
	}
	return &RedisRealtimeStore{client: client, prefix: prefix}
}

func (s *RedisRealtimeStore) key(path string) string {
	return s.prefix + ":" + JoinPath(path)
}

func (s *RedisRealtimeStore) childPrefix(path string) string {
	if JoinPath(path) == "" {
		return s.prefix + ":"
	}
	return s.key(path) + "/"
}

func (s *RedisRealtimeStore) channel() string {
	return s.prefix + ":changes"
}

func (s *RedisRealtimeStore) Set(ctx context.Context, path string, value any) error {
	tree, err := toTree(value)
	if err != nil {
		return err
	}
	return s.write(ctx, path, map[string]any{"": tree})
}

func (s *RedisRealtimeStore) Update(ctx context.Context, path string, fields map[string]any) error {
	patch, err := toObject(fields)
	if err != nil {
		return err
	}
	return s.write(ctx, path, patch)
}

func (s *RedisRealtimeStore) Remove(ctx context.Context, path string) error {
	return s.write(ctx, path, map[string]any{"": nil})
}

// write replaces each child of path named in values (the empty name meaning
// path itself) and publishes path once.
func (s *RedisRealtimeStore) write(ctx context.Context, path string, values map[string]any) error {
	stale := []string{s.key(path)}
	for _, anc := range ancestors(path) {
		stale = append(stale, s.key(anc))
	}
	leaves := make(map[string]string)
	for name, v := range values {
		target := JoinPath(path, name)
		stale = append(stale, s.key(target))
		under, err := s.keysUnder(ctx, target)
		if err != nil {
			return err
		}
		stale = append(stale, under...)
		if err := flatten(target, v, leaves); err != nil {
			return err
		}
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(stale) > 0 {
			pipe.Del(ctx, stale...)
		}
		for p, raw := range leaves {
			pipe.Set(ctx, s.key(p), raw, 0)
		}
		pipe.Publish(ctx, s.channel(), JoinPath(path))
		return nil
	})
	return errors.Wrapf(err, "redis: write %s", path)
}

func (s *RedisRealtimeStore) Get(ctx context.Context, path string) (Snapshot, error) {
	path = JoinPath(path)
	if path != "" {
		raw, err := s.client.Get(ctx, s.key(path)).Result()
		if err == nil {
			return Snapshot{Path: path, Value: json.RawMessage(raw)}, nil
		}
		if !errors.Is(err, redis.Nil) {
			return Snapshot{}, errors.Wrapf(err, "redis: get %s", path)
		}
	}

	keys, err := s.keysUnder(ctx, path)
	if err != nil {
		return Snapshot{}, err
	}
	if len(keys) == 0 {
		return Snapshot{Path: path}, nil
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "redis: mget %s", path)
	}

	tree := make(map[string]any)
	prefix := s.childPrefix(path)
	for i, k := range keys {
		str, ok := vals[i].(string)
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			return Snapshot{}, errors.Wrapf(err, "redis: decode %s", k)
		}
		segs := SplitPath(strings.TrimPrefix(k, prefix))
		if len(segs) == 0 {
			continue
		}
		setIn(tree, segs, v)
	}
	if len(tree) == 0 {
		return Snapshot{Path: path}, nil
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "encode %s", path)
	}
	return Snapshot{Path: path, Value: raw}, nil
}

// Subscribe delivers from a dedicated goroutine per listener.
func (s *RedisRealtimeStore) Subscribe(path string, onChange func(Snapshot), onError func(error)) Unsubscribe {
	path = JoinPath(path)
	ctx, cancel := context.WithCancel(context.Background())
	ps := s.client.Subscribe(ctx, s.channel())

	report := func(err error) {
		if onError != nil && ctx.Err() == nil {
			onError(err)
		}
	}
	emit := func() {
		snap, err := s.Get(ctx, path)
		if err != nil {
			report(err)
			return
		}
		if ctx.Err() == nil {
			onChange(snap)
		}
	}

	go func() {
		if _, err := ps.Receive(ctx); err != nil {
			report(errors.Wrap(err, "redis: subscribe"))
			return
		}
		emit()
		for msg := range ps.Channel() {
			if ctx.Err() != nil {
				return
			}
			if Related(path, msg.Payload) {
				emit()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = ps.Close()
		})
	}
}

func (s *RedisRealtimeStore) keysUnder(ctx context.Context, path string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, globEscape(s.childPrefix(path))+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(err, "redis: scan %s", path)
	}
	return keys, nil
}

// flatten writes every non-object value under path into out as JSON.
func flatten(path string, v any, out map[string]string) error {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range val {
			if err := flatten(JoinPath(path, k), child, out); err != nil {
				return err
			}
		}
		return nil
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return errors.Wrapf(err, "encode %s", path)
		}
		out[path] = string(raw)
		return nil
	}
}

func ancestors(path string) []string {
	segs := SplitPath(path)
	out := make([]string, 0, len(segs))
	for i := 1; i < len(segs); i++ {
		out = append(out, JoinPath(segs[:i]...))
	}
	return out
}

func globEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
