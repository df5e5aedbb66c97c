// Package storetest provides a conformance suite for types.Store implementations.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/seqtx/types"
)

// Run executes the conformance suite against stores produced by newStore.
//
// newStore is called once per subtest and must return an empty store.
// Keys used by the suite only contain characters valid for every adapter.
//
// Example:
//
//	func TestConformance(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) types.Store { return memory.New() })
//	}
func Run(t *testing.T, newStore func(t *testing.T) types.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "missing.head")
		require.ErrorIs(t, err, types.ErrKeyNotFound)
	})

	t.Run("CreateOnce", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		v, err := s.Create(ctx, "s1.head", []byte("a"))
		require.NoError(t, err)
		require.NotZero(t, v)

		_, err = s.Create(ctx, "s1.head", []byte("b"))
		require.ErrorIs(t, err, types.ErrKeyExists)

		e, err := s.Get(ctx, "s1.head")
		require.NoError(t, err)
		require.Equal(t, []byte("a"), e.Value)
		require.Equal(t, v, e.Version)
	})

	t.Run("UpdateGuardedByVersion", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		v1, err := s.Create(ctx, "s1.head", []byte("a"))
		require.NoError(t, err)

		v2, err := s.Update(ctx, "s1.head", []byte("b"), v1)
		require.NoError(t, err)
		require.Greater(t, v2, v1)

		_, err = s.Update(ctx, "s1.head", []byte("c"), v1)
		require.ErrorIs(t, err, types.ErrVersionMismatch)

		e, err := s.Get(ctx, "s1.head")
		require.NoError(t, err)
		require.Equal(t, []byte("b"), e.Value)
		require.Equal(t, v2, e.Version)
	})

	t.Run("ListByPrefix", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		for i := range 3 {
			_, err := s.Create(ctx, fmt.Sprintf("s1.tx.%02d", i), []byte{byte(i)})
			require.NoError(t, err)
		}
		_, err := s.Create(ctx, "s2.tx.00", []byte("other"))
		require.NoError(t, err)

		entries, err := s.List(ctx, "s1.tx.")
		require.NoError(t, err)
		require.Len(t, entries, 3)
		for i, e := range entries {
			require.Equal(t, fmt.Sprintf("s1.tx.%02d", i), e.Key)
			require.Equal(t, []byte{byte(i)}, e.Value)
		}

		empty, err := s.List(ctx, "nothing.")
		require.NoError(t, err)
		require.Empty(t, empty)
	})

	t.Run("DeleteThenCreate", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.Create(ctx, "s1.head", []byte("a"))
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "s1.head"))

		_, err = s.Get(ctx, "s1.head")
		require.ErrorIs(t, err, types.ErrKeyNotFound)

		_, err = s.Create(ctx, "s1.head", []byte("again"))
		require.NoError(t, err)
	})

	t.Run("ConcurrentUpdateSingleWinner", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		v, err := s.Create(ctx, "race.head", []byte("0"))
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := s.Update(ctx, "race.head", []byte{byte(i)}, v); err == nil {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()

		require.Equal(t, int32(1), wins.Load())
	})
}
