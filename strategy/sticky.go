package strategy

import "github.com/arloliu/seqtx/types"

// LastResult describes the transaction a processor just resolved.
type LastResult struct {
	// SeriesID is the series of the transaction.
	SeriesID string

	// OpenRange reports that the range was claimed without an upper bound.
	OpenRange bool

	// Outcome is how the transaction was resolved.
	Outcome types.Outcome
}

// Stay reports whether mode keeps the processor on last.SeriesID.
//
//	| Mode                                 | Stay when                              |
//	|--------------------------------------|----------------------------------------|
//	| StickyNever                          | never                                  |
//	| StickyWhenOpenRangeSucceeded         | open range finished successfully       |
//	| StickyWhenOpenRangeSucceededOrNoData | as above, or the range yielded no data |
func Stay(mode types.StickyMode, last LastResult) bool {
	if last.SeriesID == "" {
		return false
	}

	succeededOpen := last.OpenRange && last.Outcome == types.OutcomeSucceeded

	switch mode {
	case types.StickyWhenOpenRangeSucceeded:
		return succeededOpen
	case types.StickyWhenOpenRangeSucceededOrNoData:
		return succeededOpen || last.Outcome == types.OutcomeNoData
	default:
		return false
	}
}

// Prefer returns the series to try first under mode, or "".
func Prefer(mode types.StickyMode, last LastResult) string {
	if Stay(mode, last) {
		return last.SeriesID
	}

	return ""
}
