package seqtx

import (
	"sync"
)

// admission accounts the job-wide number of open new and retried transactions.
//
// Before a claim the processor does not know whether the series will yield a
// new range or a retry, so a reservation takes every kind of slot still free
// and settles on one of them once the claim result is known. Tentative
// reservations count against the caps, which keeps the caps strict.
type admission struct {
	mu         sync.Mutex
	maxNew     int
	maxRetry   int
	inProgress int
	retrying   int
	metrics    MetricsCollector
}

func newAdmission(maxNew, maxRetry int, m MetricsCollector) *admission {
	return &admission{maxNew: maxNew, maxRetry: maxRetry, metrics: m}
}

// reserve takes all free slot kinds. The returned ticket may allow neither.
func (a *admission) reserve() *ticket {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := &ticket{a: a}
	if a.inProgress < a.maxNew {
		a.inProgress++
		t.newSlot = true
	}
	if a.retrying < a.maxRetry {
		a.retrying++
		t.retrySlot = true
	}
	a.publishLocked()

	return t
}

// counts returns the current number of open new and retried transactions.
func (a *admission) counts() (inProgress, retrying int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.inProgress, a.retrying
}

func (a *admission) give(newSlot, retrySlot bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if newSlot {
		a.inProgress--
	}
	if retrySlot {
		a.retrying--
	}
	a.publishLocked()
}

func (a *admission) publishLocked() {
	a.metrics.RecordAdmission(a.inProgress, a.retrying)
}

// ticket is a reservation of admission slots.
type ticket struct {
	a         *admission
	mu        sync.Mutex
	newSlot   bool
	retrySlot bool
}

// allowNew reports whether a new range may be claimed.
func (t *ticket) allowNew() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.newSlot
}

// allowRetry reports whether a failed or expired range may be claimed.
func (t *ticket) allowRetry() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.retrySlot
}

// settle keeps the slot matching the claimed transaction and gives back the other.
func (t *ticket) settle(retry bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	giveNew, giveRetry := false, false
	if retry && t.newSlot {
		giveNew, t.newSlot = true, false
	}
	if !retry && t.retrySlot {
		giveRetry, t.retrySlot = true, false
	}
	t.a.give(giveNew, giveRetry)
}

// release gives back every slot still held. Releasing twice is a no-op.
func (t *ticket) release() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.newSlot && !t.retrySlot {
		return
	}
	t.a.give(t.newSlot, t.retrySlot)
	t.newSlot, t.retrySlot = false, false
}
