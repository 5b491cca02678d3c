// Package circuit trips after a run of consecutive failures so callers can
// switch to a recovery path.
package circuit

import "sync"

// State represents the breaker state.
type State int

const (
	// StateClosed means failures are below the threshold.
	StateClosed State = iota
	// StateOpen means the threshold was reached and recovery should run.
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Breaker counts consecutive failures. After threshold failures in a row it
// opens; any success closes it and clears the count. A zero threshold
// disables the breaker: it never opens.
type Breaker struct {
	mu           sync.Mutex
	name         string
	state        State
	failureCount int
	threshold    int
}

// New creates a breaker that opens after threshold consecutive failures.
func New(name string, threshold int) *Breaker {
	if threshold < 0 {
		threshold = 0
	}
	return &Breaker{name: name, threshold: threshold}
}

// Name returns the breaker's name for logging/metrics.
func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) Threshold() int {
	return b.threshold
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// RecordFailure counts a failure and reports whether this one opened the
// breaker. It reports true only on the transition.
func (b *Breaker) RecordFailure() (opened bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	if b.threshold == 0 || b.state == StateOpen {
		return false
	}
	if b.failureCount >= b.threshold {
		b.state = StateOpen
		return true
	}
	return false
}

// RecordSuccess closes the breaker and clears the failure run.
func (b *Breaker) RecordSuccess() {
	b.Reset()
}

// Reset closes the breaker with a zero count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
}
