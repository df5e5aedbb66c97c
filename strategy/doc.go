// Package strategy provides the series selection policies of the engine.
//
// Selection has two parts:
//
//   - Rotation: a stable round-robin order over all series of a job, shared
//     by its processors so that they start their searches at different series
//   - Stay: the sticky policy deciding whether a processor tries the series it
//     just finished again before rotating
//
// # Sticky Modes
//
// StickyNever:
//   - Always rotate to the next series
//   - Spreads processors evenly over series
//
// StickyWhenOpenRangeSucceeded:
//   - Stay after an open-ended range finished successfully
//   - Keeps a processor tailing a live series while it has data
//
// StickyWhenOpenRangeSucceededOrNoData:
//   - Also stay when the range yielded no data
//   - Useful when few series receive data in bursts
package strategy
