package types

import "context"

// Hooks defines callbacks for processing lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// so that they never block a processor loop. Hooks receive the job context,
// which is cancelled when the job stops.
//
// IMPORTANT: Hook execution behavior:
//   - Hooks run concurrently and may not complete before Stop() returns
//   - Hook errors are logged but don't fail processing
//
// Example:
//
//	hooks := &seqtx.Hooks{
//	    OnTransactionResolved: func(ctx context.Context, tx *seqtx.Transaction, outcome seqtx.Outcome) error {
//	        if outcome == seqtx.OutcomeFailed && tx.Attempts > 5 {
//	            alert(tx)
//	        }
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnStateChanged is called when a processor changes state.
	OnStateChanged func(ctx context.Context, processorID string, from, to ProcessorState) error

	// OnTransactionResolved is called after a claimed transaction was finished,
	// aborted, lost or detached.
	OnTransactionResolved func(ctx context.Context, tx *Transaction, outcome Outcome) error

	// OnError is called when a recoverable error occurs.
	OnError func(ctx context.Context, err error) error
}
