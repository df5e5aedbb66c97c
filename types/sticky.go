package types

import "fmt"

// StickyMode decides whether a processor stays on its current series after resolving a transaction.
type StickyMode int

const (
	// StickyNever always rotates to the next series.
	StickyNever StickyMode = iota

	// StickyWhenOpenRangeSucceeded stays when the just-finished range was open and succeeded.
	StickyWhenOpenRangeSucceeded

	// StickyWhenOpenRangeSucceededOrNoData also stays when the range yielded no data.
	StickyWhenOpenRangeSucceededOrNoData
)

// String returns the configuration form of the sticky mode.
func (m StickyMode) String() string {
	switch m {
	case StickyNever:
		return "never"
	case StickyWhenOpenRangeSucceeded:
		return "open-range-succeeded"
	case StickyWhenOpenRangeSucceededOrNoData:
		return "open-range-succeeded-or-no-data"
	default:
		return fmt.Sprintf("StickyMode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m StickyMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *StickyMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "never":
		*m = StickyNever
	case "open-range-succeeded":
		*m = StickyWhenOpenRangeSucceeded
	case "open-range-succeeded-or-no-data":
		*m = StickyWhenOpenRangeSucceededOrNoData
	default:
		return fmt.Errorf("%w: unknown sticky mode %q", ErrInvalidConfig, string(text))
	}

	return nil
}

// RetryLimitMode selects how MaxRetryingTransactions and MaxTransactionAttempts bound retries.
type RetryLimitMode int

const (
	// RetryLimitConcurrent caps the number of concurrently open retried transactions.
	RetryLimitConcurrent RetryLimitMode = iota

	// RetryLimitAttempts additionally caps the number of attempts per transaction.
	RetryLimitAttempts
)

// String returns the configuration form of the retry limit mode.
func (m RetryLimitMode) String() string {
	switch m {
	case RetryLimitConcurrent:
		return "concurrent"
	case RetryLimitAttempts:
		return "attempts"
	default:
		return fmt.Sprintf("RetryLimitMode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m RetryLimitMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *RetryLimitMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "concurrent":
		*m = RetryLimitConcurrent
	case "attempts":
		*m = RetryLimitAttempts
	default:
		return fmt.Errorf("%w: unknown retry limit mode %q", ErrInvalidConfig, string(text))
	}

	return nil
}
