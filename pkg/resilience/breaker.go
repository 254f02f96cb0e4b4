package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/orbsec/organization-service/pkg/faults"
)

// State is the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker short-circuits a call
var ErrCircuitOpen = faults.New(faults.Rejected, "circuit breaker", "circuit is open")

// outcome of one attempt as seen by the breaker
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeIgnored
)

// outcomeOf maps an attempt error onto the breaker's view. Domain failures
// mean the dependency answered, so they count as successes. Rejections and
// caller cancellations say nothing about the dependency.
func outcomeOf(err error) outcome {
	if err == nil {
		return outcomeSuccess
	}
	if errors.Is(err, errCallerCanceled) {
		return outcomeIgnored
	}
	kind := faults.KindOf(err)
	switch {
	case kind.Domain():
		return outcomeSuccess
	case kind == faults.Rejected:
		return outcomeIgnored
	default:
		return outcomeFailure
	}
}

// ticket identifies an admitted call. Results recorded against a ticket
// from an earlier generation are discarded.
type ticket struct {
	generation uint64
	state      State
}

// CircuitBreaker tracks the failure ratio of the last WindowSize outcomes
// and short-circuits calls while the ratio is above threshold.
type CircuitBreaker struct {
	mu sync.Mutex

	windowSize       int
	minimumCalls     int
	threshold        float64
	openTimeout      time.Duration
	halfOpenMaxCalls int

	state      State
	generation uint64
	openedAt   time.Time

	// ring buffer of closed-state outcomes, true means failure
	window   []bool
	next     int
	count    int
	failures int

	halfOpenInFlight  int
	halfOpenSuccesses int

	now           func() time.Time
	onStateChange func(from, to State)
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(cfg Config, now func() time.Time, onStateChange func(from, to State)) *CircuitBreaker {
	cfg = cfg.WithDefaults()
	if now == nil {
		now = time.Now
	}
	cb := &CircuitBreaker{
		now:           now,
		onStateChange: onStateChange,
	}
	cb.apply(cfg)
	cb.window = make([]bool, cb.windowSize)
	return cb
}

func (cb *CircuitBreaker) apply(cfg Config) {
	cb.minimumCalls = cfg.MinimumCalls
	cb.threshold = cfg.FailureRateThreshold
	cb.openTimeout = cfg.OpenTimeout
	cb.halfOpenMaxCalls = cfg.HalfOpenMaxCalls
	cb.windowSize = cfg.WindowSize
}

// Reconfigure updates thresholds in place. A window size change clears the
// recorded outcomes; the current state is kept.
func (cb *CircuitBreaker) Reconfigure(cfg Config) {
	cfg = cfg.WithDefaults()
	cb.mu.Lock()
	defer cb.mu.Unlock()

	resize := cfg.WindowSize != cb.windowSize
	cb.apply(cfg)
	if resize {
		cb.window = make([]bool, cb.windowSize)
		cb.resetWindow()
	}
}

// State returns the current state, moving from open to half-open when the
// cool-down has elapsed
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	return cb.state
}

// Open reports whether calls are currently being short-circuited
func (cb *CircuitBreaker) Open() bool {
	return cb.State() == StateOpen
}

// FailureRate returns the failure ratio over the recorded window
func (cb *CircuitBreaker) FailureRate() float64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.count == 0 {
		return 0
	}
	return float64(cb.failures) / float64(cb.count)
}

// allow admits a call or returns ErrCircuitOpen
func (cb *CircuitBreaker) allow() (ticket, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance()
	switch cb.state {
	case StateOpen:
		return ticket{}, ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenInFlight+cb.halfOpenSuccesses >= cb.halfOpenMaxCalls {
			return ticket{}, ErrCircuitOpen
		}
		cb.halfOpenInFlight++
	}
	return ticket{generation: cb.generation, state: cb.state}, nil
}

// record registers the outcome of a call admitted with t
func (cb *CircuitBreaker) record(t ticket, o outcome) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if t.generation != cb.generation {
		return
	}

	switch cb.state {
	case StateClosed:
		if o == outcomeIgnored {
			return
		}
		cb.push(o == outcomeFailure)
		if cb.count >= cb.minimumCalls && float64(cb.failures)/float64(cb.count) >= cb.threshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.halfOpenInFlight--
		switch o {
		case outcomeFailure:
			cb.transition(StateOpen)
		case outcomeSuccess:
			cb.halfOpenSuccesses++
			if cb.halfOpenSuccesses >= cb.halfOpenMaxCalls {
				cb.transition(StateClosed)
			}
		}
	}
}

// advance performs the timed open to half-open transition. Caller holds mu.
func (cb *CircuitBreaker) advance() {
	if cb.state == StateOpen && !cb.now().Before(cb.openedAt.Add(cb.openTimeout)) {
		cb.transition(StateHalfOpen)
	}
}

// transition moves to a new state. Caller holds mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.generation++
	cb.halfOpenInFlight = 0
	cb.halfOpenSuccesses = 0

	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.resetWindow()
	}

	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}

func (cb *CircuitBreaker) push(failure bool) {
	if cb.count == cb.windowSize {
		if cb.window[cb.next] {
			cb.failures--
		}
	} else {
		cb.count++
	}
	cb.window[cb.next] = failure
	if failure {
		cb.failures++
	}
	cb.next = (cb.next + 1) % cb.windowSize
}

func (cb *CircuitBreaker) resetWindow() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.next = 0
	cb.count = 0
	cb.failures = 0
}
