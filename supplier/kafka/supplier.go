// Package kafka provides a types.Supplier reading series from Kafka partitions.
//
// Each series is one topic partition and positions are partition offsets.
// The supplier does not use consumer groups: offsets are committed by the
// coordinator as series cursors, not by Kafka.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/arloliu/seqtx/types"
)

// DefaultMaxWait is used when a pull request carries no MaxWait.
const DefaultMaxWait = 500 * time.Millisecond

// Config configures the supplier.
type Config struct {
	// Brokers is the bootstrap broker list for NewFromBrokers.
	Brokers []string `yaml:"brokers"`

	// Version is the Kafka protocol version, e.g. "3.6.0". Optional.
	Version string `yaml:"version"`

	// Partition maps a series id to its topic partition.
	// Default: ParseSeriesID, which expects "<topic>:<partition>".
	Partition func(seriesID string) (topic string, partition int32, err error) `yaml:"-"`
}

// Supplier pulls series data from Kafka partitions.
type Supplier struct {
	consumer  sarama.Consumer
	partition func(string) (string, int32, error)
	owned     bool
}

var _ types.Supplier = (*Supplier)(nil)

// New creates a supplier over an existing consumer. The caller keeps ownership of consumer.
//
// Parameters:
//   - consumer: Sarama consumer (sarama.NewConsumer, or mocks.NewConsumer in tests)
//   - cfg: Series to partition mapping; Brokers and Version are ignored
//
// Returns:
//   - *Supplier: Supplier ready for use
func New(consumer sarama.Consumer, cfg Config) *Supplier {
	partition := cfg.Partition
	if partition == nil {
		partition = ParseSeriesID
	}

	return &Supplier{consumer: consumer, partition: partition}
}

// NewFromBrokers connects a new consumer to cfg.Brokers. Close releases it.
//
// Example:
//
//	sup, err := kafka.NewFromBrokers(kafka.Config{Brokers: []string{"localhost:9092"}})
//	if err != nil { /* handle */ }
//	defer sup.Close()
func NewFromBrokers(cfg Config) (*Supplier, error) {
	sc := sarama.NewConfig()
	sc.Consumer.Return.Errors = true
	if cfg.Version != "" {
		ver, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("kafka version: %w", err)
		}
		sc.Version = ver
	}

	consumer, err := sarama.NewConsumer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("%w: kafka consumer: %w", types.ErrSupplierUnavailable, err)
	}

	s := New(consumer, cfg)
	s.owned = true

	return s, nil
}

// Close closes the consumer when it was created by NewFromBrokers.
func (s *Supplier) Close() error {
	if !s.owned {
		return nil
	}

	return s.consumer.Close()
}

// ParseSeriesID splits "<topic>:<partition>".
func ParseSeriesID(seriesID string) (string, int32, error) {
	idx := strings.LastIndexByte(seriesID, ':')
	if idx <= 0 {
		return "", 0, fmt.Errorf("%w: %q is not <topic>:<partition>", types.ErrUnknownSeries, seriesID)
	}

	p, err := strconv.ParseInt(seriesID[idx+1:], 10, 32)
	if err != nil || p < 0 {
		return "", 0, fmt.Errorf("%w: %q has an invalid partition", types.ErrUnknownSeries, seriesID)
	}

	return seriesID[:idx], int32(p), nil
}

// Pull consumes the partition from From until MaxItems messages, the To
// offset, or MaxWait, whichever comes first. An empty From means offset 0.
func (s *Supplier) Pull(ctx context.Context, req types.PullRequest) (types.PullResult, error) {
	topic, partition, err := s.partition(req.SeriesID)
	if err != nil {
		return types.PullResult{}, err
	}

	from, err := parseOffset(req.From, 0)
	if err != nil {
		return types.PullResult{}, err
	}
	to, err := parseOffset(req.To, -1)
	if err != nil {
		return types.PullResult{}, err
	}

	none := types.PullResult{Reached: strconv.FormatInt(from, 10)}
	if to >= 0 && from >= to {
		return none, nil
	}

	pc, err := s.consumer.ConsumePartition(topic, partition, from)
	if err != nil {
		switch {
		case errors.Is(err, sarama.ErrOffsetOutOfRange):
			// nothing written at from yet
			return none, nil
		case errors.Is(err, sarama.ErrUnknownTopicOrPartition):
			return types.PullResult{}, fmt.Errorf("%w: %s: %w", types.ErrUnknownSeries, req.SeriesID, err)
		default:
			return types.PullResult{}, fmt.Errorf("%w: consume %s/%d: %w", types.ErrSupplierUnavailable, topic, partition, err)
		}
	}
	defer func() { _ = pc.Close() }()

	maxWait := req.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	errCh := pc.Errors()
	var items []types.Item
	for req.MaxItems <= 0 || len(items) < req.MaxItems {
		select {
		case <-ctx.Done():
			return types.PullResult{}, ctx.Err()

		case <-timer.C:
			return result(items, from), nil

		case cerr, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if cerr != nil {
				return types.PullResult{}, fmt.Errorf("%w: %w", types.ErrSupplierUnavailable, cerr)
			}

		case msg, ok := <-pc.Messages():
			if !ok {
				return result(items, from), nil
			}
			if to >= 0 && msg.Offset >= to {
				if len(items) == 0 {
					return types.PullResult{Reached: strconv.FormatInt(to, 10)}, nil
				}

				return result(items, from), nil
			}
			items = append(items, types.Item{Position: strconv.FormatInt(msg.Offset, 10), Data: msg})
			if to >= 0 && msg.Offset+1 >= to {
				return result(items, from), nil
			}
		}
	}

	return result(items, from), nil
}

func result(items []types.Item, from int64) types.PullResult {
	if len(items) == 0 {
		return types.PullResult{Reached: strconv.FormatInt(from, 10)}
	}

	last := items[len(items)-1].Data.(*sarama.ConsumerMessage).Offset

	return types.PullResult{Items: items, Reached: strconv.FormatInt(last+1, 10)}
}

func parseOffset(p types.Position, def int64) (int64, error) {
	if p == types.OpenPosition {
		return def, nil
	}

	n, err := strconv.ParseInt(p, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid offset %q: must be a non-negative integer", p)
	}

	return n, nil
}
