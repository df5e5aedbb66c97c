package types

import "context"

// Entry is a versioned value held by a Store.
type Entry struct {
	// Key is the full key of the entry.
	Key string

	// Value is the stored payload.
	Value []byte

	// Version increases on every successful write of the key.
	Version uint64
}

// Store is the atomic conditional persistence the coordinator is built on.
//
// Implementations must support "does not exist" (Create) and "exists with
// version V" (Update) preconditions. Known outcomes are reported with the
// sentinel errors ErrKeyNotFound, ErrKeyExists and ErrVersionMismatch; every
// other failure must wrap ErrStoreUnavailable so callers can retry it.
//
// Available adapters:
//   - store/memory: in-process map, for tests and single-process jobs
//   - store/natskv: NATS JetStream KeyValue
//   - store/redis: Redis
type Store interface {
	// Get returns the entry stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (Entry, error)

	// Create stores value under key only if the key does not exist.
	// Returns ErrKeyExists otherwise.
	Create(ctx context.Context, key string, value []byte) (uint64, error)

	// Update replaces the value only if the current version equals expected.
	// Returns ErrVersionMismatch when it does not, ErrKeyNotFound when the key is missing.
	Update(ctx context.Context, key string, value []byte, expected uint64) (uint64, error)

	// List returns all entries whose key starts with prefix, in key order.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
