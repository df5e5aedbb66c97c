// Package natskv provides a types.Store backed by a NATS JetStream KeyValue bucket.
//
// Versions are JetStream revisions, so conditional writes map directly onto
// KeyValue.Create and KeyValue.Update(revision). Keys must be valid NATS
// subject tokens joined by dots; the coordinator already produces keys in
// that form.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/seqtx/internal/kvutil"
	"github.com/arloliu/seqtx/internal/natsutil"
	"github.com/arloliu/seqtx/types"
)

var _ types.Store = (*Store)(nil)

// Config configures the bucket the store writes to.
type Config struct {
	// Bucket is the KV bucket name. Default: "seqtx-transactions".
	Bucket string `yaml:"bucket"`

	// Replicas is the bucket replication factor. Default: 1.
	Replicas int `yaml:"replicas"`

	// MemoryStorage keeps the bucket in memory instead of on disk.
	MemoryStorage bool `yaml:"memoryStorage"`

	// CreateAttempts bounds bucket creation retries. Default: 3.
	CreateAttempts int `yaml:"createAttempts"`
}

// DefaultBucket is the bucket used when Config.Bucket is empty.
const DefaultBucket = "seqtx-transactions"

// Store is a types.Store over a JetStream KeyValue bucket.
type Store struct {
	kv jetstream.KeyValue
}

// New creates or opens the configured bucket and returns a Store over it.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - js: JetStream context
//   - cfg: Bucket configuration; zero values take defaults
//
// Returns:
//   - *Store: Store ready for use
//   - error: Bucket creation failure wrapped with types.ErrStoreUnavailable
//
// Example:
//
//	js, _ := jetstream.New(nc)
//	st, err := natskv.New(ctx, js, natskv.Config{Bucket: "billing-tx"})
func New(ctx context.Context, js jetstream.JetStream, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.Replicas <= 0 {
		cfg.Replicas = 1
	}

	storage := jetstream.FileStorage
	if cfg.MemoryStorage {
		storage = jetstream.MemoryStorage
	}

	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "seqtx transaction records",
		History:     1,
		Replicas:    cfg.Replicas,
		Storage:     storage,
	}, cfg.CreateAttempts)
	if err != nil {
		return nil, natsutil.UnavailableStore("ensure bucket", err)
	}

	return NewFromKV(kv), nil
}

// NewFromKV wraps an existing KV bucket.
func NewFromKV(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// Get returns the entry stored under key.
func (s *Store) Get(ctx context.Context, key string) (types.Entry, error) {
	e, err := s.kv.Get(ctx, key)
	if err != nil {
		if isMissing(err) {
			return types.Entry{}, fmt.Errorf("%w: %s", types.ErrKeyNotFound, key)
		}

		return types.Entry{}, natsutil.UnavailableStore("get", err)
	}

	return types.Entry{Key: key, Value: e.Value(), Version: e.Revision()}, nil
}

// Create stores value only if key does not exist.
func (s *Store) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Create(ctx, key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, fmt.Errorf("%w: %s", types.ErrKeyExists, key)
		}

		return 0, natsutil.UnavailableStore("create", err)
	}

	return rev, nil
}

// Update replaces value only if the current revision equals expected.
//
// JetStream reports a wrong revision and a missing key with the same error,
// so a failed update is followed by a Get to tell them apart.
func (s *Store) Update(ctx context.Context, key string, value []byte, expected uint64) (uint64, error) {
	rev, err := s.kv.Update(ctx, key, value, expected)
	if err == nil {
		return rev, nil
	}

	if !isWrongRevision(err) {
		return 0, natsutil.UnavailableStore("update", err)
	}

	if _, getErr := s.kv.Get(ctx, key); getErr != nil && isMissing(getErr) {
		return 0, fmt.Errorf("%w: %s", types.ErrKeyNotFound, key)
	}

	return 0, fmt.Errorf("%w: %s at revision %d", types.ErrVersionMismatch, key, expected)
}

// List returns all live entries whose key starts with prefix, in key order.
func (s *Store) List(ctx context.Context, prefix string) ([]types.Entry, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}

		return nil, natsutil.UnavailableStore("list", err)
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for key := range lister.Keys() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	entries := make([]types.Entry, 0, len(keys))
	for _, key := range keys {
		e, err := s.Get(ctx, key)
		if errors.Is(err, types.ErrKeyNotFound) {
			// deleted between listing and reading
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil && !isMissing(err) {
		return natsutil.UnavailableStore("delete", err)
	}

	return nil
}

// CompactDeletes drops delete markers older than olderThan, or all of them
// when olderThan is zero. Called after coordinator.Clear to reclaim space.
func (s *Store) CompactDeletes(ctx context.Context, olderThan time.Duration) error {
	// a negative threshold removes every marker regardless of age
	threshold := jetstream.DeleteMarkersOlderThan(-1)
	if olderThan > 0 {
		threshold = jetstream.DeleteMarkersOlderThan(olderThan)
	}
	if err := s.kv.PurgeDeletes(ctx, threshold); err != nil {
		return natsutil.UnavailableStore("purge", err)
	}

	return nil
}

func isMissing(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}

func isWrongRevision(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
		return true
	}

	return errors.Is(err, jetstream.ErrKeyExists)
}
