// Package jetstream provides a types.Supplier reading series from a NATS JetStream stream.
//
// Each series is one subject of the stream and positions are stream sequence
// numbers. Because sequences are shared by all subjects of the stream, the
// positions of one series are increasing but not contiguous.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/seqtx/internal/natsutil"
	"github.com/arloliu/seqtx/types"
)

// DefaultMaxWait is used when a pull request carries no MaxWait.
const DefaultMaxWait = 500 * time.Millisecond

// Config configures the supplier.
type Config struct {
	// Stream is the stream name.
	Stream string

	// Subject maps a series id to its subject. Default: "<stream>.<seriesID>".
	Subject func(seriesID string) string
}

// Supplier pulls series data from a JetStream stream through short-lived ordered consumers.
type Supplier struct {
	js      jetstream.JetStream
	stream  string
	subject func(string) string
}

var _ types.Supplier = (*Supplier)(nil)

// New creates a JetStream supplier.
//
// Parameters:
//   - js: JetStream context
//   - cfg: Stream and subject mapping
//
// Returns:
//   - *Supplier: Supplier ready for use
//   - error: When cfg.Stream is empty
//
// Example:
//
//	sup, err := jssupplier.New(js, jssupplier.Config{
//	    Stream:  "EVENTS",
//	    Subject: func(id string) string { return "events." + id },
//	})
func New(js jetstream.JetStream, cfg Config) (*Supplier, error) {
	if cfg.Stream == "" {
		return nil, errors.New("jetstream supplier: stream name is required")
	}

	subject := cfg.Subject
	if subject == nil {
		stream := cfg.Stream
		subject = func(id string) string { return stream + "." + id }
	}

	return &Supplier{js: js, stream: cfg.Stream, subject: subject}, nil
}

// Pull fetches the messages of the series subject with sequence in [From, To).
//
// An empty From starts at sequence 1. When the first message found is already
// at or beyond To, Reached is To: the subject has nothing in the range.
func (s *Supplier) Pull(ctx context.Context, req types.PullRequest) (types.PullResult, error) {
	from, err := parseSequence(req.From, 1)
	if err != nil {
		return types.PullResult{}, err
	}
	to, err := parseSequence(req.To, 0)
	if err != nil {
		return types.PullResult{}, err
	}

	reachedNone := types.PullResult{Reached: strconv.FormatUint(from, 10)}
	if to > 0 && from >= to {
		return reachedNone, nil
	}

	maxItems := req.MaxItems
	if maxItems <= 0 {
		maxItems = 1000
	}
	maxWait := req.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	cons, err := s.js.OrderedConsumer(ctx, s.stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{s.subject(req.SeriesID)},
		DeliverPolicy:  jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:    from,
	})
	if err != nil {
		if errors.Is(err, jetstream.ErrStreamNotFound) {
			return types.PullResult{}, fmt.Errorf("%w: stream %s: %w", types.ErrUnknownSeries, s.stream, err)
		}

		return types.PullResult{}, natsutil.Unavailable(types.ErrSupplierUnavailable, "ordered consumer", err)
	}

	batch, err := cons.Fetch(maxItems, jetstream.FetchMaxWait(maxWait))
	if err != nil {
		return types.PullResult{}, natsutil.Unavailable(types.ErrSupplierUnavailable, "fetch", err)
	}

	var (
		items  []types.Item
		last   uint64
		beyond bool
	)
	for msg := range batch.Messages() {
		meta, err := msg.Metadata()
		if err != nil {
			return types.PullResult{}, fmt.Errorf("message metadata: %w", err)
		}

		seq := meta.Sequence.Stream
		if to > 0 && seq >= to {
			// keep draining the batch; later messages are beyond as well
			beyond = true
			continue
		}

		items = append(items, types.Item{Position: strconv.FormatUint(seq, 10), Data: msg})
		last = seq
	}

	if err := batch.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) && !errors.Is(err, context.DeadlineExceeded) {
		return types.PullResult{}, natsutil.Unavailable(types.ErrSupplierUnavailable, "fetch", err)
	}

	switch {
	case len(items) > 0:
		return types.PullResult{Items: items, Reached: strconv.FormatUint(last+1, 10)}, nil
	case beyond:
		return types.PullResult{Reached: strconv.FormatUint(to, 10)}, nil
	default:
		return reachedNone, nil
	}
}

func parseSequence(p types.Position, def uint64) (uint64, error) {
	if p == types.OpenPosition {
		return def, nil
	}

	n, err := strconv.ParseUint(p, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stream sequence %q: %w", p, err)
	}
	if n == 0 {
		// sequences start at 1
		n = 1
	}

	return n, nil
}
