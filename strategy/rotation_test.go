package strategy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/seqtx/types"
)

func TestRotation_AdvancesSharedCursor(t *testing.T) {
	rot := NewRotation([]string{"s1", "s2", "s3"})
	require.Equal(t, 3, rot.Len())

	require.Equal(t, []string{"s1", "s2", "s3"}, rot.Candidates("", nil))
	require.Equal(t, []string{"s2", "s3", "s1"}, rot.Candidates("", nil))
	require.Equal(t, []string{"s3", "s1", "s2"}, rot.Candidates("", nil))
	require.Equal(t, []string{"s1", "s2", "s3"}, rot.Candidates("", nil))
}

func TestRotation_PreferAndSkip(t *testing.T) {
	rot := NewRotation([]string{"s1", "s2", "s3", "s4"})
	leased := map[string]bool{"s3": true}
	skip := func(id string) bool { return leased[id] }

	require.Equal(t, []string{"s2", "s1", "s4"}, rot.Candidates("s2", skip))

	// a skipped preference is ignored
	require.Equal(t, []string{"s2", "s4", "s1"}, rot.Candidates("s3", skip))
}

func TestRotation_AllSkipped(t *testing.T) {
	rot := NewRotation([]string{"s1", "s2"})

	require.Empty(t, rot.Candidates("s1", func(string) bool { return true }))
}

func TestRotation_Empty(t *testing.T) {
	rot := NewRotation(nil)

	require.Empty(t, rot.Candidates("", nil))
}

func TestRotation_ConcurrentCallersCoverEverySeries(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	rot := NewRotation(ids)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		first = map[string]int{}
	)
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := rot.Candidates("", nil)
			mu.Lock()
			first[c[0]]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, 10, first[id], id)
	}
}

func TestRotation_NextNeverRotatesAway(t *testing.T) {
	rot := NewRotation([]string{"s1", "s2", "s3"})
	held := map[string]string{}
	skipFor := func(owner string) func(string) bool {
		return func(id string) bool {
			holder, ok := held[id]
			return ok && holder != owner
		}
	}

	// A takes s1 and keeps it while B works through four transactions.
	a := rot.Next(types.StickyNever, LastResult{}, skipFor("A"))
	require.NotEmpty(t, a)
	held[a[0]] = "A"

	var last LastResult
	for turn := range 4 {
		got := rot.Next(types.StickyNever, last, skipFor("B"))
		require.NotEmpty(t, got)
		require.NotEqual(t, a[0], got[0], "turn %d", turn)
		if last.SeriesID != "" {
			require.NotEqual(t, last.SeriesID, got[0], "turn %d: %v", turn, got)
			require.Equal(t, last.SeriesID, got[len(got)-1], "turn %d: %v", turn, got)
		}
		last = LastResult{SeriesID: got[0], OpenRange: true, Outcome: types.OutcomeSucceeded}
	}
}

func TestRotation_NextLastResortIsPreviousSeries(t *testing.T) {
	rot := NewRotation([]string{"s1", "s2"})
	skip := func(id string) bool { return id == "s2" }

	last := LastResult{SeriesID: "s1", OpenRange: true, Outcome: types.OutcomeSucceeded}
	require.Equal(t, []string{"s1"}, rot.Next(types.StickyNever, last, skip))
}

func TestRotation_NextStickyStays(t *testing.T) {
	rot := NewRotation([]string{"s1", "s2", "s3"})
	last := LastResult{SeriesID: "s2", OpenRange: true, Outcome: types.OutcomeNoData}

	require.Equal(t, "s2", rot.Next(types.StickyWhenOpenRangeSucceededOrNoData, last, nil)[0])

	got := rot.Next(types.StickyWhenOpenRangeSucceeded, last, nil)
	require.Len(t, got, 3)
	require.Equal(t, "s2", got[2])
}
