package supplier

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/arloliu/seqtx/types"
)

// Slice serves per-series in-memory records.
//
// The position of a record is its index in the series, so a series holding
// n records spans positions [0, n). Append grows a series while processors
// are running, which lets tests exercise open-ended ranges.
type Slice struct {
	mu      sync.Mutex
	series  map[string][]any
	changed chan struct{}
}

var _ types.Supplier = (*Slice)(nil)

// NewSlice creates a supplier over the given records keyed by series id.
//
// Parameters:
//   - data: Initial records per series; the map and slices are copied
//
// Returns:
//   - *Slice: Initialized supplier
//
// Example:
//
//	sup := supplier.NewSlice(map[string][]any{
//	    "orders": {"o-1", "o-2", "o-3"},
//	})
func NewSlice(data map[string][]any) *Slice {
	s := &Slice{
		series:  make(map[string][]any, len(data)),
		changed: make(chan struct{}),
	}
	for id, records := range data {
		s.series[id] = append([]any(nil), records...)
	}

	return s
}

// NewRange creates a supplier whose series each hold count records whose
// data is their own integer position.
func NewRange(count int, seriesIDs ...string) *Slice {
	data := make(map[string][]any, len(seriesIDs))
	for _, id := range seriesIDs {
		records := make([]any, count)
		for i := range records {
			records[i] = i
		}
		data[id] = records
	}

	return NewSlice(data)
}

// Append adds records to the end of a series, creating it if needed, and
// wakes pulls waiting for data.
func (s *Slice) Append(seriesID string, records ...any) {
	s.mu.Lock()
	s.series[seriesID] = append(s.series[seriesID], records...)
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// Len returns the number of records of a series.
func (s *Slice) Len(seriesID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.series[seriesID])
}

// Pull returns the records in [From, To), at most MaxItems of them.
//
// When no record is available yet the call waits up to MaxWait for Append.
// An empty From means position 0.
func (s *Slice) Pull(ctx context.Context, req types.PullRequest) (types.PullResult, error) {
	from, err := parsePosition(req.From, 0)
	if err != nil {
		return types.PullResult{}, err
	}
	to, err := parsePosition(req.To, -1)
	if err != nil {
		return types.PullResult{}, err
	}

	var deadline <-chan time.Time
	if req.MaxWait > 0 {
		timer := time.NewTimer(req.MaxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		items, changed, known := s.read(req.SeriesID, from, to, req.MaxItems)
		if !known {
			return types.PullResult{}, fmt.Errorf("%w: %s", types.ErrUnknownSeries, req.SeriesID)
		}
		if len(items) > 0 || deadline == nil || (to >= 0 && from >= to) {
			return types.PullResult{Items: items, Reached: strconv.Itoa(from + len(items))}, nil
		}

		select {
		case <-ctx.Done():
			return types.PullResult{}, ctx.Err()
		case <-deadline:
			return types.PullResult{Reached: strconv.Itoa(from)}, nil
		case <-changed:
		}
	}
}

func (s *Slice) read(seriesID string, from, to, maxItems int) ([]types.Item, <-chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.series[seriesID]
	if !ok {
		return nil, nil, false
	}

	end := len(records)
	if to >= 0 && to < end {
		end = to
	}
	if maxItems > 0 && from+maxItems < end {
		end = from + maxItems
	}

	var items []types.Item
	for i := from; i < end; i++ {
		items = append(items, types.Item{Position: strconv.Itoa(i), Data: records[i]})
	}

	return items, s.changed, true
}

// parsePosition parses an integer position; the empty position yields def.
func parsePosition(p types.Position, def int) (int, error) {
	if p == types.OpenPosition {
		return def, nil
	}

	n, err := strconv.Atoi(p)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid position %q: must be a non-negative integer", p)
	}

	return n, nil
}
