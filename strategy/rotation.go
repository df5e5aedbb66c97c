package strategy

import (
	"sync"

	"github.com/arloliu/seqtx/types"
)

// Rotation is a round-robin order over the series of a job.
//
// One Rotation is shared by all processors of a job. Every call to Candidates
// advances the shared cursor by one, so concurrent processors begin their
// search at different series. It is safe for concurrent use.
type Rotation struct {
	mu     sync.Mutex
	ids    []string
	cursor int
}

// NewRotation creates a rotation over ids in the given order.
//
// Parameters:
//   - ids: Series ids; the slice is copied
//
// Returns:
//   - *Rotation: Initialized rotation
//
// Example:
//
//	rot := strategy.NewRotation([]string{"s1", "s2", "s3"})
//	order := rot.Candidates("", nil) // [s1 s2 s3], next call starts at s2
func NewRotation(ids []string) *Rotation {
	return &Rotation{ids: append([]string(nil), ids...)}
}

// Len returns the number of series in the rotation.
func (r *Rotation) Len() int {
	return len(r.ids)
}

// Candidates returns the series to try in order.
//
// The algorithm:
//  1. If prefer is set and not skipped, it comes first
//  2. The remaining series follow in rotation order starting at the cursor
//  3. Series for which skip returns true are left out
//
// Parameters:
//   - prefer: Series to try first (sticky choice), "" for none
//   - skip: Reports series to leave out (leased elsewhere, drained); nil skips none
//
// Returns:
//   - []string: Candidate series, possibly empty
func (r *Rotation) Candidates(prefer string, skip func(string) bool) []string {
	return r.candidates(prefer, "", skip)
}

// Next returns the candidates of a processor that just resolved last.
//
// When the sticky mode keeps the processor on last.SeriesID, that series
// comes first. Otherwise it moves to the end of the order, so it is tried
// again only when every other series is skipped.
//
// Parameters:
//   - mode: Sticky mode of the job
//   - last: Result of the processor's previous transaction, zero for none
//   - skip: Reports series to leave out; nil skips none
//
// Returns:
//   - []string: Candidate series, possibly empty
func (r *Rotation) Next(mode types.StickyMode, last LastResult, skip func(string) bool) []string {
	if Stay(mode, last) {
		return r.candidates(last.SeriesID, "", skip)
	}

	return r.candidates("", last.SeriesID, skip)
}

func (r *Rotation) candidates(prefer, avoid string, skip func(string) bool) []string {
	r.mu.Lock()
	start := r.cursor
	if len(r.ids) > 0 {
		r.cursor = (r.cursor + 1) % len(r.ids)
	}
	r.mu.Unlock()

	out := make([]string, 0, len(r.ids))
	preferred := false
	if prefer != "" && (skip == nil || !skip(prefer)) {
		out = append(out, prefer)
		preferred = true
	}

	deferred := false
	for i := range r.ids {
		id := r.ids[(start+i)%len(r.ids)]
		if preferred && id == prefer {
			continue
		}
		if skip != nil && skip(id) {
			continue
		}
		if id == avoid {
			deferred = true
			continue
		}
		out = append(out, id)
	}
	if deferred {
		out = append(out, avoid)
	}

	return out
}
