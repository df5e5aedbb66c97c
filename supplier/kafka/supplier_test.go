package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/seqtx/types"
)

// newMockSupplier expects exactly one partition consumer on orders/partition
// and yields count messages with offsets 0..count-1.
func newMockSupplier(t *testing.T, partition int32, count int) (*Supplier, *mocks.PartitionConsumer) {
	t.Helper()

	consumer := mocks.NewConsumer(t, mocks.NewTestConfig())
	pc := consumer.ExpectConsumePartition("orders", partition, mocks.AnyOffset)
	for i := range count {
		pc.YieldMessage(&sarama.ConsumerMessage{Value: []byte{byte(i)}})
	}

	return New(consumer, Config{}), pc
}

func TestSupplier_PullMaxItems(t *testing.T) {
	sup, _ := newMockSupplier(t, 0, 5)

	res, err := sup.Pull(context.Background(), types.PullRequest{
		SeriesID: "orders:0", From: "0", MaxItems: 3, MaxWait: time.Second,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	require.Equal(t, "0", res.Items[0].Position)
	require.Equal(t, "3", res.Reached)

	msg, ok := res.Items[2].Data.(*sarama.ConsumerMessage)
	require.True(t, ok)
	require.Equal(t, []byte{2}, msg.Value)
	require.Equal(t, "orders", msg.Topic)
}

func TestSupplier_PullStopsAtUpperBound(t *testing.T) {
	sup, _ := newMockSupplier(t, 1, 5)

	res, err := sup.Pull(context.Background(), types.PullRequest{
		SeriesID: "orders:1", From: "0", To: "2", MaxItems: 100, MaxWait: time.Second,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.Equal(t, "2", res.Reached)
}

func TestSupplier_PullWaitsThenReturnsWhatIsAvailable(t *testing.T) {
	sup, _ := newMockSupplier(t, 2, 2)

	start := time.Now()
	res, err := sup.Pull(context.Background(), types.PullRequest{
		SeriesID: "orders:2", From: "0", MaxItems: 10, MaxWait: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.Equal(t, "2", res.Reached)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestSupplier_PartitionErrorIsUnavailable(t *testing.T) {
	sup, pc := newMockSupplier(t, 3, 0)
	pc.YieldError(sarama.ErrNotLeaderForPartition)

	_, err := sup.Pull(context.Background(), types.PullRequest{
		SeriesID: "orders:3", From: "0", MaxItems: 10, MaxWait: time.Second,
	})
	require.ErrorIs(t, err, types.ErrSupplierUnavailable)
	require.True(t, types.IsInfrastructureError(err))
}

func TestSupplier_EmptyRangeSkipsConsumer(t *testing.T) {
	consumer := mocks.NewConsumer(t, mocks.NewTestConfig())
	sup := New(consumer, Config{})

	res, err := sup.Pull(context.Background(), types.PullRequest{SeriesID: "orders:0", From: "5", To: "5"})
	require.NoError(t, err)
	require.Empty(t, res.Items)
	require.Equal(t, "5", res.Reached)
}

func TestParseSeriesID(t *testing.T) {
	topic, p, err := ParseSeriesID("billing.events:12")
	require.NoError(t, err)
	require.Equal(t, "billing.events", topic)
	require.Equal(t, int32(12), p)

	_, _, err = ParseSeriesID("no-partition")
	require.ErrorIs(t, err, types.ErrUnknownSeries)

	_, _, err = ParseSeriesID("topic:x")
	require.ErrorIs(t, err, types.ErrUnknownSeries)
}

func TestNew_CustomPartitionMapping(t *testing.T) {
	consumer := mocks.NewConsumer(t, mocks.NewTestConfig())
	pc := consumer.ExpectConsumePartition("events", 7, mocks.AnyOffset)
	pc.YieldMessage(&sarama.ConsumerMessage{Value: []byte("x")})

	sup := New(consumer, Config{
		Partition: func(string) (string, int32, error) { return "events", 7, nil },
	})

	res, err := sup.Pull(context.Background(), types.PullRequest{SeriesID: "anything", MaxItems: 1, MaxWait: time.Second})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Equal(t, "1", res.Reached)
}
