package coordinator

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/seqtx/store/memory"
	seqtest "github.com/arloliu/seqtx/testing"
	"github.com/arloliu/seqtx/types"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCoordinator(t *testing.T) (*Coordinator, *memory.Store, *seqtest.FakeClock) {
	t.Helper()

	st := memory.New()
	clock := seqtest.NewFakeClock(epoch)
	c := New(st, WithClock(clock.Now), WithLogger(seqtest.NewTestLogger(t)))

	return c, st, clock
}

func claimReq(series types.Series, processor string, timeout time.Time) types.ClaimRequest {
	return types.ClaimRequest{
		Series:      series,
		ProcessorID: processor,
		Timeout:     timeout,
		AllowNew:    true,
		AllowRetry:  true,
	}
}

func TestClaimNext_NewRange(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	ctx := context.Background()
	s := types.Series{ID: "s1", From: "0", To: "1000"}

	tx, err := c.ClaimNext(ctx, claimReq(s, "p1", clock.Now().Add(time.Minute)))
	require.NoError(t, err)
	require.Equal(t, "s1", tx.SeriesID)
	require.NotEmpty(t, tx.ID)
	require.Equal(t, "0", tx.StartPosition)
	require.Equal(t, types.OpenPosition, tx.EndPosition)
	require.Equal(t, types.TransactionInProgress, tx.State)
	require.Equal(t, 1, tx.Attempts)
	require.False(t, tx.OpenRange)
	require.False(t, tx.IsRetry())
	require.NotZero(t, tx.Version)

	open, err := c.ClaimNext(ctx, claimReq(types.Series{ID: "s2", From: "5"}, "p1", clock.Now().Add(time.Minute)))
	require.NoError(t, err)
	require.True(t, open.OpenRange)
	require.Equal(t, "5", open.StartPosition)
}

func TestClaimNext_BusyWhileLeaseLive(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	ctx := context.Background()
	s := types.Series{ID: "s1", From: "0"}

	_, err := c.ClaimNext(ctx, claimReq(s, "p1", clock.Now().Add(time.Minute)))
	require.NoError(t, err)

	_, err = c.ClaimNext(ctx, claimReq(s, "p2", clock.Now().Add(time.Minute)))
	require.ErrorIs(t, err, types.ErrSeriesBusy)
	require.True(t, types.IsNothingToClaim(err))

	// the owner itself cannot claim a second range either
	_, err = c.ClaimNext(ctx, claimReq(s, "p1", clock.Now().Add(time.Minute)))
	require.ErrorIs(t, err, types.ErrSeriesBusy)
}

func TestClaimNext_TakeoverOnlyAfterExpiry(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	ctx := context.Background()
	s := types.Series{ID: "s1", From: "0"}

	first, err := c.ClaimNext(ctx, claimReq(s, "p1", clock.Now().Add(10*time.Second)))
	require.NoError(t, err)
	_, err = c.SetEndPosition(ctx, first.Ref(), "300")
	require.NoError(t, err)

	clock.Advance(10*time.Second - time.Millisecond)
	_, err = c.ClaimNext(ctx, claimReq(s, "p2", clock.Now().Add(time.Minute)))
	require.ErrorIs(t, err, types.ErrSeriesBusy)

	clock.Advance(time.Millisecond)
	taken, err := c.ClaimNext(ctx, claimReq(s, "p2", clock.Now().Add(time.Minute)))
	require.NoError(t, err)
	require.Equal(t, first.ID, taken.ID)
	require.Equal(t, "p2", taken.ProcessorID)
	require.Equal(t, 2, taken.Attempts)
	require.True(t, taken.IsRetry())
	require.Equal(t, "0", taken.StartPosition)
	require.Equal(t, "300", taken.EndPosition)

	// the original owner's writes are discarded
	_, err = c.Finish(ctx, first.Ref(), "300")
	require.ErrorIs(t, err, types.ErrLostOwnership)
	_, err = c.Renew(ctx, first.Ref(), clock.Now().Add(time.Hour))
	require.ErrorIs(t, err, types.ErrLostOwnership)

	done, err := c.Finish(ctx, taken.Ref(), types.OpenPosition)
	require.NoError(t, err)
	require.Equal(t, types.TransactionSucceeded, done.State)
	require.Equal(t, 2, done.Attempts)
}

func TestClaimNext_ExpiredLeaseCannotBeFinishedByOwner(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	ctx := context.Background()

	tx, err := c.ClaimNext(ctx, claimReq(types.Series{ID: "s1", From: "0"}, "p1", clock.Now().Add(time.Second)))
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = c.Finish(ctx, tx.Ref(), "10")
	require.ErrorIs(t, err, types.ErrLostOwnership)
}

func TestAbort_RetryReplaysSameRange(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	ctx := context.Background()
	s := types.Series{ID: "s1", From: "0", To: "1000"}

	tx, err := c.ClaimNext(ctx, claimReq(s, "p1", clock.Now().Add(time.Minute)))
	require.NoError(t, err)
	tx, err = c.SetEndPosition(ctx, tx.Ref(), "300")
	require.NoError(t, err)

	aborted, err := c.Abort(ctx, tx.Ref())
	require.NoError(t, err)
	require.Equal(t, types.TransactionFailed, aborted.State)

	// a second resolution loses
	_, err = c.Abort(ctx, tx.Ref())
	require.ErrorIs(t, err, types.ErrLostOwnership)

	noRetry := claimReq(s, "p2", clock.Now().Add(time.Minute))
	noRetry.AllowRetry = false
	_, err = c.ClaimNext(ctx, noRetry)
	require.ErrorIs(t, err, types.ErrNotAdmitted)

	retry, err := c.ClaimNext(ctx, claimReq(s, "p2", clock.Now().Add(time.Minute)))
	require.NoError(t, err)
	require.Equal(t, tx.ID, retry.ID)
	require.Equal(t, 2, retry.Attempts)
	require.Equal(t, "0", retry.StartPosition)
	require.Equal(t, "300", retry.EndPosition)

	_, err = c.Finish(ctx, retry.Ref(), "200")
	require.ErrorIs(t, err, types.ErrInvalidTransition)

	done, err := c.Finish(ctx, retry.Ref(), "300")
	require.NoError(t, err)
	require.Equal(t, 2, done.Attempts)

	head, err := c.Series(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "300", head.Cursor)
	require.Equal(t, int64(1), head.Committed)
}

func TestClaimNext_RetryLimit(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	ctx := context.Background()
	s := types.Series{ID: "s1", From: "0"}

	req := claimReq(s, "p1", clock.Now().Add(time.Minute))
	req.MaxAttempts = 2

	for range 2 {
		tx, err := c.ClaimNext(ctx, req)
		require.NoError(t, err)
		_, err = c.Abort(ctx, tx.Ref())
		require.NoError(t, err)
	}

	_, err := c.ClaimNext(ctx, req)
	require.ErrorIs(t, err, types.ErrRetryLimitReached)

	req.MaxAttempts = 0
	tx, err := c.ClaimNext(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 3, tx.Attempts)
}

func TestClaimNext_NewNotAdmitted(t *testing.T) {
	c, _, clock := newTestCoordinator(t)

	req := claimReq(types.Series{ID: "s1", From: "0"}, "p1", clock.Now().Add(time.Minute))
	req.AllowNew = false

	_, err := c.ClaimNext(context.Background(), req)
	require.ErrorIs(t, err, types.ErrNotAdmitted)
}

func TestFinish_SequentialRangesUntilDrained(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	ctx := context.Background()
	s := types.Series{ID: "s1", From: "0", To: "1000"}

	for {
		tx, err := c.ClaimNext(ctx, claimReq(s, "p1", clock.Now().Add(time.Minute)))
		if err != nil {
			require.ErrorIs(t, err, types.ErrSeriesDrained)
			break
		}

		start, _ := strconv.Atoi(tx.StartPosition)
		end := min(start+300, 1000)
		_, err = c.Finish(ctx, tx.Ref(), strconv.Itoa(end))
		require.NoError(t, err)
	}

	history, err := c.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 4)

	want := [][2]string{{"0", "300"}, {"300", "600"}, {"600", "900"}, {"900", "1000"}}
	for i, tx := range history {
		require.Equal(t, want[i][0], tx.StartPosition)
		require.Equal(t, want[i][1], tx.EndPosition)
		require.Equal(t, 1, tx.Attempts)
		require.Equal(t, types.TransactionSucceeded, tx.State)
		if i > 0 {
			require.Equal(t, history[i-1].EndPosition, tx.StartPosition)
		}
	}

	head, err := c.Series(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "1000", head.Cursor)
	require.Equal(t, int64(4), head.Committed)
}

func TestFinish_NoDataCommitsZeroProgress(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	ctx := context.Background()
	s := types.Series{ID: "s1", From: "42"}

	tx, err := c.ClaimNext(ctx, claimReq(s, "p1", clock.Now().Add(time.Minute)))
	require.NoError(t, err)

	done, err := c.Finish(ctx, tx.Ref(), types.OpenPosition)
	require.NoError(t, err)
	require.Equal(t, "42", done.EndPosition)

	history, err := c.History(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, history)

	next, err := c.ClaimNext(ctx, claimReq(s, "p1", clock.Now().Add(time.Minute)))
	require.NoError(t, err)
	require.NotEqual(t, tx.ID, next.ID)
	require.Equal(t, "42", next.StartPosition)
	require.Equal(t, 1, next.Attempts)
}

func TestFinish_EndBeforeStartRejected(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	ctx := context.Background()

	tx, err := c.ClaimNext(ctx, claimReq(types.Series{ID: "s1", From: "100"}, "p1", clock.Now().Add(time.Minute)))
	require.NoError(t, err)

	_, err = c.Finish(ctx, tx.Ref(), "99")
	require.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = c.SetEndPosition(ctx, tx.Ref(), "50")
	require.ErrorIs(t, err, types.ErrInvalidTransition)
}

func TestRenewAndDetail_AdvanceVersion(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	ctx := context.Background()

	tx, err := c.ClaimNext(ctx, claimReq(types.Series{ID: "s1", From: "0"}, "p1", clock.Now().Add(time.Minute)))
	require.NoError(t, err)

	_, err = c.Renew(ctx, tx.Ref(), clock.Now())
	require.ErrorIs(t, err, types.ErrInvalidTransition)

	renewed, err := c.Renew(ctx, tx.Ref(), clock.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, clock.Now().Add(time.Hour), renewed.Timeout)
	require.Greater(t, renewed.Version, tx.Version)

	// a stale reference is refused even for the owner
	_, err = c.UpdateDetail(ctx, tx.Ref(), []byte("x"))
	require.ErrorIs(t, err, types.ErrLostOwnership)

	detailed, err := c.UpdateDetail(ctx, renewed.Ref(), []byte(`{"offset":12}`))
	require.NoError(t, err)
	require.Equal(t, []byte(`{"offset":12}`), detailed.Detail)

	// detail survives an abort and a retry claim
	_, err = c.Abort(ctx, detailed.Ref())
	require.NoError(t, err)
	retry, err := c.ClaimNext(ctx, claimReq(types.Series{ID: "s1", From: "0"}, "p2", clock.Now().Add(time.Minute)))
	require.NoError(t, err)
	require.Equal(t, []byte(`{"offset":12}`), retry.Detail)
}

func TestClaimNext_ConcurrentClaimersSingleOwner(t *testing.T) {
	c, _, clock := newTestCoordinator(t)
	ctx := context.Background()
	s := types.Series{ID: "hot", From: "0"}

	const claimers = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		owners []string
		errs   []error
	)

	for i := range claimers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "p" + strconv.Itoa(i)
			tx, err := c.ClaimNext(ctx, claimReq(s, id, clock.Now().Add(time.Minute)))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			owners = append(owners, tx.ProcessorID)
		}(i)
	}
	wg.Wait()

	require.Len(t, owners, 1)
	require.Len(t, errs, claimers-1)
	for _, err := range errs {
		require.True(t, types.IsNothingToClaim(err), "unexpected error: %v", err)
	}

	head, err := c.Series(ctx, "hot")
	require.NoError(t, err)
	require.Equal(t, owners[0], head.Current.ProcessorID)
}

func TestSeries_UnknownIsZero(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	head, err := c.Series(context.Background(), "never")
	require.NoError(t, err)
	require.Equal(t, "never", head.SeriesID)
	require.Zero(t, head.Version)
	require.Nil(t, head.Current)
}

func TestStoreUnavailablePropagates(t *testing.T) {
	c, st, clock := newTestCoordinator(t)

	st.FailNext(1)
	_, err := c.ClaimNext(context.Background(), claimReq(types.Series{ID: "s1", From: "0"}, "p1", clock.Now().Add(time.Minute)))
	require.ErrorIs(t, err, types.ErrStoreUnavailable)
	require.True(t, types.IsInfrastructureError(err))
	require.False(t, types.IsNothingToClaim(err))
}

func TestNamespaceAndUnsafeIDs(t *testing.T) {
	st := memory.New()
	clock := seqtest.NewFakeClock(epoch)
	ctx := context.Background()

	a := New(st, WithClock(clock.Now), WithNamespace("job-a"))
	b := New(st, WithClock(clock.Now), WithNamespace("job-b"))
	s := types.Series{ID: "orders.eu/west *", From: "0"}

	_, err := a.ClaimNext(ctx, claimReq(s, "p1", clock.Now().Add(time.Minute)))
	require.NoError(t, err)

	// same series id in another namespace is independent
	_, err = b.ClaimNext(ctx, claimReq(s, "p1", clock.Now().Add(time.Minute)))
	require.NoError(t, err)

	entries, err := st.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Regexp(t, `^job-[ab]\.x[0-9a-f]{32}\.head$`, e.Key)
	}
}

func TestClear(t *testing.T) {
	c, st, clock := newTestCoordinator(t)
	ctx := context.Background()
	s := types.Series{ID: "s1", From: "0"}

	tx, err := c.ClaimNext(ctx, claimReq(s, "p1", clock.Now().Add(time.Minute)))
	require.NoError(t, err)
	_, err = c.Finish(ctx, tx.Ref(), "10")
	require.NoError(t, err)
	require.Equal(t, 2, st.Len())

	require.NoError(t, c.Clear(ctx, "s1"))
	require.Equal(t, 0, st.Len())

	again, err := c.ClaimNext(ctx, claimReq(s, "p1", clock.Now().Add(time.Minute)))
	require.NoError(t, err)
	require.Equal(t, "0", again.StartPosition)
}

func TestToken(t *testing.T) {
	require.Equal(t, "orders-1_eu", token("orders-1_eu"))
	require.Regexp(t, `^x[0-9a-f]{32}$`, token("a.b"))
	require.Equal(t, token("a.b"), token("a.b"))
	require.NotEqual(t, token("a.b"), token("a.c"))

	hashed := token("a.b")
	require.NotEqual(t, hashed, token(hashed))
}
