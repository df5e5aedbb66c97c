package jetstream

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	seqtest "github.com/arloliu/seqtx/testing"
	"github.com/arloliu/seqtx/types"
)

func newTestSupplier(t *testing.T, count int, series ...string) *Supplier {
	t.Helper()

	_, nc := seqtest.StartEmbeddedNATS(t)
	js := seqtest.CreateSeriesStream(t, nc, "EVENTS", "events", count, series...)

	sup, err := New(js, Config{
		Stream:  "EVENTS",
		Subject: func(id string) string { return "events." + id },
	})
	require.NoError(t, err)

	return sup
}

func TestSupplier_PullBatches(t *testing.T) {
	sup := newTestSupplier(t, 10, "a")
	ctx := context.Background()

	res, err := sup.Pull(ctx, types.PullRequest{SeriesID: "a", MaxItems: 4, MaxWait: time.Second})
	require.NoError(t, err)
	require.Len(t, res.Items, 4)
	require.Equal(t, "1", res.Items[0].Position)
	require.Equal(t, "5", res.Reached)

	msg, ok := res.Items[0].Data.(jetstream.Msg)
	require.True(t, ok)
	require.Equal(t, []byte("0"), msg.Data())

	res, err = sup.Pull(ctx, types.PullRequest{SeriesID: "a", From: res.Reached, MaxItems: 100, MaxWait: 200 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, res.Items, 6)
	require.Equal(t, "11", res.Reached)
}

func TestSupplier_FiltersBySeriesAndBound(t *testing.T) {
	// sequences: a -> 1..3, b -> 4..6
	sup := newTestSupplier(t, 3, "a", "b")
	ctx := context.Background()

	res, err := sup.Pull(ctx, types.PullRequest{SeriesID: "b", From: "1", MaxItems: 10, MaxWait: 200 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	require.Equal(t, "4", res.Items[0].Position)
	require.Equal(t, "7", res.Reached)

	res, err = sup.Pull(ctx, types.PullRequest{SeriesID: "b", From: "1", To: "6", MaxItems: 10, MaxWait: 200 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.Equal(t, "6", res.Reached)

	// nothing of "a" lies in [4, 6): the range is skipped as a whole
	res, err = sup.Pull(ctx, types.PullRequest{SeriesID: "a", From: "4", To: "6", MaxItems: 10, MaxWait: 200 * time.Millisecond})
	require.NoError(t, err)
	require.Empty(t, res.Items)
	require.Contains(t, []string{"4", "6"}, res.Reached)
}

func TestSupplier_EmptyOpenRange(t *testing.T) {
	sup := newTestSupplier(t, 2, "a")

	res, err := sup.Pull(context.Background(), types.PullRequest{SeriesID: "a", From: "3", MaxItems: 10, MaxWait: 100 * time.Millisecond})
	require.NoError(t, err)
	require.Empty(t, res.Items)
	require.Equal(t, "3", res.Reached)
}

func TestNew_RequiresStream(t *testing.T) {
	_, err := New(nil, Config{})
	require.Error(t, err)
}

func TestParseSequence(t *testing.T) {
	n, err := parseSequence("", 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	n, err = parseSequence("0", 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	_, err = parseSequence("-3", 1)
	require.Error(t, err)
}
