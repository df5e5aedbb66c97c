// Package redis implements types.Store on Redis.
//
// Each record is a hash holding the payload ("v") and its version ("ver").
// Conditional writes run as Lua scripts so the version check and the write
// are atomic. Versions come from a single counter per key prefix, which keeps
// them increasing even across delete and re-create.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client, redisstore.WithKeyPrefix("billing"))
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arloliu/seqtx/internal/logger"
	"github.com/arloliu/seqtx/types"
)

var _ types.Store = (*Store)(nil)

const (
	fieldValue   = "v"
	fieldVersion = "ver"

	resultMissing  = -1
	resultConflict = -2
)

// KEYS[1] record, KEYS[2] version counter; ARGV[1] value
var createScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return -2
end
local ver = redis.call("INCR", KEYS[2])
redis.call("HSET", KEYS[1], "v", ARGV[1], "ver", ver)
return ver
`)

// KEYS[1] record, KEYS[2] version counter; ARGV[1] value, ARGV[2] expected version
var updateScript = goredis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "ver")
if not cur then
  return -1
end
if cur ~= ARGV[2] then
  return -2
end
local ver = redis.call("INCR", KEYS[2])
redis.call("HSET", KEYS[1], "v", ARGV[1], "ver", ver)
return ver
`)

// Option configures the Store.
type Option func(*Store)

// WithKeyPrefix namespaces every key under prefix. Default: "seqtx".
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithLogger sets a custom logger.
func WithLogger(l types.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements types.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	prefix string
	logger types.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, prefix: "seqtx", logger: logger.NewNop()}
	for _, o := range opts {
		o(s)
	}

	return s
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}

	return nil
}

func (s *Store) recordKey(key string) string { return s.prefix + ":rec:" + key }
func (s *Store) counterKey() string         { return s.prefix + ":seq" }

// Get returns the entry stored under key.
func (s *Store) Get(ctx context.Context, key string) (types.Entry, error) {
	vals, err := s.client.HMGet(ctx, s.recordKey(key), fieldValue, fieldVersion).Result()
	if err != nil {
		return types.Entry{}, unavailable("get", err)
	}

	return decodeEntry(key, vals)
}

// Create stores value only if key does not exist.
func (s *Store) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	res, err := createScript.Run(ctx, s.client, []string{s.recordKey(key), s.counterKey()}, value).Int64()
	if err != nil {
		return 0, unavailable("create", err)
	}
	if res == resultConflict {
		return 0, fmt.Errorf("%w: %s", types.ErrKeyExists, key)
	}

	return uint64(res), nil
}

// Update replaces value only if the current version equals expected.
func (s *Store) Update(ctx context.Context, key string, value []byte, expected uint64) (uint64, error) {
	res, err := updateScript.Run(ctx, s.client,
		[]string{s.recordKey(key), s.counterKey()},
		value, strconv.FormatUint(expected, 10),
	).Int64()
	if err != nil {
		return 0, unavailable("update", err)
	}

	switch res {
	case resultMissing:
		return 0, fmt.Errorf("%w: %s", types.ErrKeyNotFound, key)
	case resultConflict:
		return 0, fmt.Errorf("%w: %s at version %d", types.ErrVersionMismatch, key, expected)
	default:
		return uint64(res), nil
	}
}

// List returns all entries whose key starts with prefix, in key order.
func (s *Store) List(ctx context.Context, prefix string) ([]types.Entry, error) {
	base := s.recordKey("")
	pattern := s.recordKey(escapeGlob(prefix)) + "*"

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), base))
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	sort.Strings(keys)

	// SCAN may return duplicates
	keys = dedupSorted(keys)

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.SliceCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HMGet(ctx, s.recordKey(key), fieldValue, fieldVersion)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, unavailable("list", err)
	}

	entries := make([]types.Entry, 0, len(keys))
	for i, key := range keys {
		e, err := decodeEntry(key, cmds[i].Val())
		if errors.Is(err, types.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("skipping malformed record", "key", key, "error", err)
			continue
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.recordKey(key)).Err(); err != nil {
		return unavailable("delete", err)
	}

	return nil
}

func decodeEntry(key string, vals []any) (types.Entry, error) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return types.Entry{}, fmt.Errorf("%w: %s", types.ErrKeyNotFound, key)
	}

	value, ok := vals[0].(string)
	if !ok {
		return types.Entry{}, fmt.Errorf("unexpected value type %T for %s", vals[0], key)
	}
	verStr, ok := vals[1].(string)
	if !ok {
		return types.Entry{}, fmt.Errorf("unexpected version type %T for %s", vals[1], key)
	}
	ver, err := strconv.ParseUint(verStr, 10, 64)
	if err != nil {
		return types.Entry{}, fmt.Errorf("invalid version for %s: %w", key, err)
	}

	return types.Entry{Key: key, Value: []byte(value), Version: ver}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %w", op, types.ErrStoreUnavailable, err)
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}

func dedupSorted(keys []string) []string {
	out := keys[:0]
	for i, k := range keys {
		if i == 0 || k != keys[i-1] {
			out = append(out, k)
		}
	}

	return out
}
