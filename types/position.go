package types

import (
	"strconv"
	"strings"
)

// Position is an opaque, totally-ordered token meaningful only within a series.
//
// Suppliers decide the encoding. Positions that parse as base-10 integers are
// compared numerically, all other positions lexicographically. The empty
// position is used as "open" when it appears as an upper bound.
type Position = string

// OpenPosition marks an unbounded upper position.
const OpenPosition Position = ""

// ComparePositions orders two positions.
//
// Returns:
//   - int: -1 if a < b, 0 if equal, +1 if a > b
func ComparePositions(a, b Position) int {
	if a == b {
		return 0
	}

	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(a, b)
}

// PositionReached reports whether cursor has reached the upper bound limit.
// An open limit is never reached.
func PositionReached(cursor, limit Position) bool {
	if limit == OpenPosition {
		return false
	}

	return ComparePositions(cursor, limit) >= 0
}
