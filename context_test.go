package seqtx

import (
	"context"
	"testing"
	"time"

	"github.com/arloliu/seqtx/backoff"
	"github.com/arloliu/seqtx/coordinator"
	"github.com/arloliu/seqtx/internal/metrics"
	"github.com/arloliu/seqtx/store/memory"
	"github.com/stretchr/testify/require"
)

// gatedCoordinator holds every Renew until release is closed.
type gatedCoordinator struct {
	*coordinator.Coordinator
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCoordinator) Renew(ctx context.Context, ref TransactionRef, timeout time.Time) (*Transaction, error) {
	g.entered <- struct{}{}
	<-g.release

	return g.Coordinator.Renew(ctx, ref, timeout)
}

func newTestHandle(t *testing.T, coord Coordinator, onResolved func(*Transaction, Outcome)) *txHandle {
	t.Helper()

	ctx := context.Background()
	series := Series{ID: "s1", From: "0"}
	tx, err := coord.ClaimNext(ctx, ClaimRequest{
		Series:      series,
		ProcessorID: "worker-0",
		Timeout:     time.Now().Add(time.Minute),
		AllowNew:    true,
		AllowRetry:  true,
	})
	require.NoError(t, err)

	r := &retrier{
		strategy:  backoff.NewConstant(time.Millisecond),
		opTimeout: 5 * time.Second,
		metrics:   metrics.NewNop(),
	}

	return newTxHandle(ctx, coord, r, time.Now, tx, onResolved)
}

func TestTxHandle_AccessorsDoNotWaitForRenewal(t *testing.T) {
	gate := &gatedCoordinator{
		Coordinator: coordinator.New(memory.New()),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	h := newTestHandle(t, gate, nil)
	pc := newProcessingContext(context.Background(), h, "worker-0")
	before := pc.Timeout()

	renewed := make(chan bool, 1)
	go func() { renewed <- pc.RenewTimeoutAfter(2 * time.Minute) }()

	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("renewal never reached the coordinator")
	}

	read := make(chan string, 1)
	go func() {
		_, held := h.Timeout()
		if held {
			read <- pc.SeriesID() + "@" + pc.StartPosition()
		}
	}()

	select {
	case got := <-read:
		require.Equal(t, "s1@0", got)
	case <-time.After(time.Second):
		t.Fatal("accessors blocked behind an in-flight renewal")
	}
	require.False(t, h.isResolved())

	close(gate.release)
	require.True(t, <-renewed)
	require.True(t, pc.Timeout().After(before))
}

func TestTxHandle_SynchronousFinisherOutcome(t *testing.T) {
	var resolved []Outcome
	h := newTestHandle(t, coordinator.New(memory.New()), func(_ *Transaction, outcome Outcome) {
		resolved = append(resolved, outcome)
	})
	pc := newProcessingContext(context.Background(), h, "worker-0")

	_, done := h.resolution()
	require.False(t, done)

	f := pc.Finisher()
	require.True(t, h.isDetached())
	require.True(t, f.Finish())
	require.False(t, f.Abort())

	outcome, done := h.resolution()
	require.True(t, done)
	require.Equal(t, OutcomeSucceeded, outcome)
	require.Equal(t, []Outcome{OutcomeSucceeded}, resolved)
}

func TestTxHandle_AbandonWinsOverLateResolve(t *testing.T) {
	h := newTestHandle(t, coordinator.New(memory.New()), nil)

	require.True(t, h.abandon(OutcomeLost))
	require.False(t, h.abandon(OutcomeFailed))
	require.ErrorIs(t, h.finish(OpenPosition, OutcomeSucceeded), errResolved)

	outcome, done := h.resolution()
	require.True(t, done)
	require.Equal(t, OutcomeLost, outcome)

	_, held := h.Timeout()
	require.False(t, held)
}
