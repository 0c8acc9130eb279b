package converter

import (
	"sync"
)

// Aggregator accumulates outcomes for a fixed number of planned tasks.
// Safe for concurrent use. Only the controller's coordinating goroutine records;
// snapshots may be taken from anywhere.
type Aggregator struct {
	mu        sync.RWMutex
	total     int
	succeeded int
	failed    int
	outcomes  []Outcome
	done      chan struct{}
}

// NewAggregator creates an Aggregator expecting total outcomes. A total of zero
// is complete immediately.
func NewAggregator(total int) *Aggregator {
	a := &Aggregator{
		total:    max(0, total),
		outcomes: make([]Outcome, 0, max(0, total)),
		done:     make(chan struct{}),
	}
	if a.total == 0 {
		close(a.done)
	}
	return a
}

// Record adds one outcome. It returns false and changes nothing once every
// expected outcome has been recorded.
func (a *Aggregator) Record(out Outcome) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.outcomes) >= a.total {
		return false
	}
	a.outcomes = append(a.outcomes, out)
	if out.Success {
		a.succeeded++
	} else {
		a.failed++
	}
	if len(a.outcomes) == a.total {
		close(a.done)
	}
	return true
}

// Snapshot returns the current counters. Completed always equals Succeeded+Failed.
func (a *Aggregator) Snapshot() Counts {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Counts{
		Total:     a.total,
		Succeeded: a.succeeded,
		Failed:    a.failed,
		Completed: a.succeeded + a.failed,
	}
}

// Done is closed once every expected outcome has been recorded.
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}

// Outcomes returns a copy of the recorded outcomes in arrival order.
func (a *Aggregator) Outcomes() []Outcome {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Outcome, len(a.outcomes))
	copy(out, a.outcomes)
	return out
}

// Failures returns the recorded negative outcomes in arrival order.
func (a *Aggregator) Failures() []Outcome {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var failures []Outcome
	for _, o := range a.outcomes {
		if !o.Success {
			failures = append(failures, o)
		}
	}
	return failures
}
