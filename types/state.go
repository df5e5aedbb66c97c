package types

// ProcessorState represents the lifecycle state of a processor.
//
// States follow a defined progression:
//
//	StateNew → StateStarted → StateRunning → StateStopping → StateFinished
//
// StateStarted is entered only after the job-wide start barrier is released.
// A processor that drains every series moves from StateRunning directly to
// StateFinished.
type ProcessorState int

const (
	// StateNew is the state of a created processor that is not yet running.
	StateNew ProcessorState = iota

	// StateStarted indicates the start barrier was released.
	StateStarted

	// StateRunning indicates the processor is executing its claim loop.
	StateRunning

	// StateStopping indicates a stop was requested and the in-hand transaction is being resolved.
	StateStopping

	// StateFinished is terminal.
	StateFinished
)

// String returns the string representation of the state.
func (s ProcessorState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateStarted:
		return "STARTED"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Phase is the sub-state of a running processor.
type Phase int

const (
	// PhaseIdle means the processor is between iterations or sleeping.
	PhaseIdle Phase = iota

	// PhaseAcquiring means the processor is selecting a series and claiming.
	PhaseAcquiring

	// PhaseProcessing means the processor is pulling data or running the handler.
	PhaseProcessing

	// PhaseFinishing means the processor is resolving the in-hand transaction.
	PhaseFinishing
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseAcquiring:
		return "ACQUIRING"
	case PhaseProcessing:
		return "PROCESSING"
	case PhaseFinishing:
		return "FINISHING"
	default:
		return "UNKNOWN"
	}
}

// Outcome describes how a claimed transaction ended from a processor's point of view.
type Outcome int

const (
	// OutcomeSucceeded means the range was committed.
	OutcomeSucceeded Outcome = iota + 1

	// OutcomeFailed means the range was aborted.
	OutcomeFailed

	// OutcomeNoData means an open range was committed with zero progress.
	OutcomeNoData

	// OutcomeLost means the lease was taken over before the owner resolved it.
	OutcomeLost

	// OutcomeDetached means the handler took the finisher and resolves the transaction itself.
	OutcomeDetached
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeNoData:
		return "no_data"
	case OutcomeLost:
		return "lost"
	case OutcomeDetached:
		return "detached"
	default:
		return "unknown"
	}
}
