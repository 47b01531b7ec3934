// Package circuitbreaker implements the circuit breaker resilience pattern
// used to guard outbound calls to upstream sources and external services.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrOpen is returned by Execute when the circuit is open and the call was
// rejected without being attempted.
var ErrOpen = errors.New("circuit breaker: circuit open")

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures a Simple circuit breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures while Closed
	// that trips the circuit to Open.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays Open before allowing a
	// probe request through in HalfOpen.
	ResetTimeout time.Duration
	// SuccessThreshold is the number of consecutive successes required in
	// HalfOpen before the circuit returns to Closed.
	SuccessThreshold int
	// OperationTimeout bounds every call passed to Execute; a timeout counts
	// as a failure.
	OperationTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
		OperationTimeout: 30 * time.Second,
	}
}

// Breaker is the interface satisfied by both Simple and NoOp, so callers can
// be configured to disable circuit-breaking entirely without branching.
type Breaker interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
	State() State
	Stats() Stats
}

// Stats is a point-in-time snapshot of a breaker's counters, safe to read
// without holding the breaker's internal lock.
type Stats struct {
	State              State
	ConsecutiveFailures int
	ConsecutiveSuccesses int
	TotalRequests      int64
	TotalSuccesses     int64
	TotalFailures      int64
	LastFailureAt      time.Time
	LastStateChangeAt  time.Time
}

// Simple is a mutex-guarded, three-state circuit breaker. Closed allows all
// calls; FailureThreshold consecutive failures trips it Open; after
// ResetTimeout it moves to HalfOpen and allows exactly one in-flight probe at
// a time; SuccessThreshold consecutive probe successes close it again, any
// probe failure reopens it.
type Simple struct {
	cfg Config

	mu                sync.RWMutex
	state             State
	consecFailures    int
	consecSuccesses   int
	halfOpenInFlight  bool
	lastFailureAt     time.Time
	lastStateChangeAt time.Time
	// probeLimiter paces how often an Open breaker admits a HalfOpen probe,
	// at most once per ResetTimeout, so a storm of callers hitting Allow()
	// concurrently doesn't all tip into HalfOpen at once.
	probeLimiter *rate.Limiter

	totalRequests  int64
	totalSuccesses int64
	totalFailures  int64
}

// NewSimple creates a Simple circuit breaker in the Closed state.
func NewSimple(cfg Config) *Simple {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig().ResetTimeout
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultConfig().OperationTimeout
	}
	return &Simple{
		cfg:               cfg,
		state:             Closed,
		lastStateChangeAt: time.Now(),
		probeLimiter:      rate.NewLimiter(rate.Every(cfg.ResetTimeout), 1),
	}
}

// Allow reports whether a call should be attempted right now. A HalfOpen
// breaker admits exactly one concurrent probe; callers that are refused
// should treat it the same as a refused Open call.
func (b *Simple) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.lastStateChangeAt) < b.cfg.ResetTimeout {
			return false
		}
		if !b.probeLimiter.Allow() {
			return false
		}
		b.transition(HalfOpen)
		b.halfOpenInFlight = true
		return true
	case HalfOpen:
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful call outcome.
func (b *Simple) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	b.totalSuccesses++
	b.consecFailures = 0

	switch b.state {
	case HalfOpen:
		b.halfOpenInFlight = false
		b.consecSuccesses++
		if b.consecSuccesses >= b.cfg.SuccessThreshold {
			b.transition(Closed)
		}
	case Closed:
		b.consecSuccesses++
	}
}

// RecordFailure reports a failed call outcome.
func (b *Simple) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	b.totalFailures++
	b.consecSuccesses = 0
	b.lastFailureAt = time.Now()

	switch b.state {
	case Closed:
		b.consecFailures++
		if b.consecFailures >= b.cfg.FailureThreshold {
			b.transition(Open)
		}
	case HalfOpen:
		b.halfOpenInFlight = false
		b.transition(Open)
	}
}

// transition must be called with mu held.
func (b *Simple) transition(to State) {
	b.state = to
	b.lastStateChangeAt = time.Now()
	if to == Closed {
		b.consecFailures = 0
		b.consecSuccesses = 0
	}
	if to == Open {
		b.consecSuccesses = 0
	}
}

// State returns the current state.
func (b *Simple) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats returns a consistent snapshot of the breaker's counters.
func (b *Simple) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		State:                 b.state,
		ConsecutiveFailures:   b.consecFailures,
		ConsecutiveSuccesses:  b.consecSuccesses,
		TotalRequests:         b.totalRequests,
		TotalSuccesses:        b.totalSuccesses,
		TotalFailures:         b.totalFailures,
		LastFailureAt:         b.lastFailureAt,
		LastStateChangeAt:     b.lastStateChangeAt,
	}
}

// ForceOpen manually trips the breaker, used by the circuit-breaker
// management API's force-override endpoint.
func (b *Simple) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Open)
}

// ForceClosed manually resets the breaker to Closed.
func (b *Simple) ForceClosed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Closed)
}

// NoOp is a Breaker that never opens; it is used when circuit breaking is
// disabled for a given service profile.
type NoOp struct {
	mu    sync.RWMutex
	total int64
}

// NewNoOp creates a breaker that always allows calls through.
func NewNoOp() *NoOp { return &NoOp{} }

func (b *NoOp) Allow() bool { return true }

func (b *NoOp) RecordSuccess() {
	b.mu.Lock()
	b.total++
	b.mu.Unlock()
}

func (b *NoOp) RecordFailure() {
	b.mu.Lock()
	b.total++
	b.mu.Unlock()
}

func (b *NoOp) State() State { return Closed }

func (b *NoOp) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{State: Closed, TotalRequests: b.total, TotalSuccesses: b.total}
}

// Execute runs fn under the breaker's protection: if the breaker refuses the
// call, ErrOpen is returned without invoking fn. The call is bounded by the
// breaker's OperationTimeout when b is a *Simple; a timeout is recorded as a
// failure. The zero value of T is returned alongside any error.
func Execute[T any](ctx context.Context, b Breaker, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if !b.Allow() {
		return zero, ErrOpen
	}

	if timeout <= 0 {
		timeout = DefaultConfig().OperationTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := fn(callCtx)
	if err != nil {
		b.RecordFailure()
		return zero, err
	}
	b.RecordSuccess()
	return result, nil
}
