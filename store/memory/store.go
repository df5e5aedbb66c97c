// Package memory provides an in-memory types.Store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/arloliu/seqtx/types"
)

var _ types.Store = (*Store)(nil)

type entry struct {
	value   []byte
	version uint64
}

// Store is a fully in-memory implementation of types.Store.
// Safe for concurrent access. Intended for unit testing and single-process jobs.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	seq     uint64

	// failures makes the next N operations fail with ErrStoreUnavailable.
	failures int
}

// New returns a new empty Store.
func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

// FailNext makes the next n operations fail with types.ErrStoreUnavailable.
// Used to simulate infrastructure outages in tests.
func (s *Store) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = n
}

// Get implements types.Store.
func (s *Store) Get(_ context.Context, key string) (types.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injected("get"); err != nil {
		return types.Entry{}, err
	}

	e, ok := s.entries[key]
	if !ok {
		return types.Entry{}, types.ErrKeyNotFound
	}

	return types.Entry{Key: key, Value: clone(e.value), Version: e.version}, nil
}

// Create implements types.Store.
func (s *Store) Create(_ context.Context, key string, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injected("create"); err != nil {
		return 0, err
	}

	if _, ok := s.entries[key]; ok {
		return 0, types.ErrKeyExists
	}

	s.seq++
	s.entries[key] = entry{value: clone(value), version: s.seq}

	return s.seq, nil
}

// Update implements types.Store.
func (s *Store) Update(_ context.Context, key string, value []byte, expected uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injected("update"); err != nil {
		return 0, err
	}

	e, ok := s.entries[key]
	if !ok {
		return 0, types.ErrKeyNotFound
	}
	if e.version != expected {
		return 0, types.ErrVersionMismatch
	}

	s.seq++
	s.entries[key] = entry{value: clone(value), version: s.seq}

	return s.seq, nil
}

// List implements types.Store.
func (s *Store) List(_ context.Context, prefix string) ([]types.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injected("list"); err != nil {
		return nil, err
	}

	result := make([]types.Entry, 0)
	for k, e := range s.entries {
		if strings.HasPrefix(k, prefix) {
			result = append(result, types.Entry{Key: k, Value: clone(e.value), Version: e.version})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })

	return result, nil
}

// Delete implements types.Store.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injected("delete"); err != nil {
		return err
	}
	delete(s.entries, key)

	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// injected must be called with s.mu held.
func (s *Store) injected(op string) error {
	if s.failures <= 0 {
		return nil
	}
	s.failures--

	return fmt.Errorf("memory %s: %w", op, types.ErrStoreUnavailable)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}

	return append([]byte(nil), b...)
}
