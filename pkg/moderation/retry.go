package moderation

import (
	"context"
	"math/rand"
	"sync"
	"time"

	logutil "github.com/duskward/wardencore/pkg/logging"
)

// BreakerState is one of the three circuit-breaker states (§4.E).
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// RetryPolicy holds the exponential-backoff and circuit-breaker parameters
// for one operation class (§4.E).
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            float64 // uniform fraction, e.g. 0.2 = +/-20%

	FailureThreshold int           // consecutive failures to trip Open
	SuccessThreshold int           // consecutive successes in HalfOpen to close
	OpenDuration     time.Duration // time before a HalfOpen trial is admitted
}

// DefaultRetryPolicies returns the per-class defaults used unless overridden
// by configuration (§6).
func DefaultRetryPolicies() map[OperationClass]RetryPolicy {
	base := RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.2,
		FailureThreshold:  5,
		SuccessThreshold:  2,
		OpenDuration:      30 * time.Second,
	}
	database := base
	database.MaxAttempts = 4
	database.InitialBackoff = 100 * time.Millisecond
	database.MaxBackoff = 2 * time.Second
	database.FailureThreshold = 8

	return map[OperationClass]RetryPolicy{
		ClassBanKick:  base,
		ClassTimeout:  base,
		ClassMessages: base,
		ClassDatabase: database,
		ClassAPIOther: base,
	}
}

// CircuitBreaker implements the three-state breaker for a single operation
// class (§4.E). Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	policy RetryPolicy
	state  BreakerState

	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time

	tripCount int
}

// NewCircuitBreaker builds a breaker starting Closed.
func NewCircuitBreaker(policy RetryPolicy) *CircuitBreaker {
	return &CircuitBreaker{policy: policy, state: Closed}
}

// ErrCircuitOpen is returned by Retrier.Do when the class's breaker is Open
// and open_duration has not yet elapsed.
var ErrCircuitOpen = NewError(KindCircuitOpen, "circuit breaker open, try again later", nil)

// allow reports whether a call may proceed, transitioning Open->HalfOpen
// when open_duration has elapsed.
func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.policy.OpenDuration {
			b.state = HalfOpen
			b.consecutiveSuccesses = 0
			return true
		}
		return false
	case HalfOpen:
		return true
	}
	return true
}

func (b *CircuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	switch b.state {
	case HalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.policy.SuccessThreshold {
			b.state = Closed
		}
	case Open:
		// Shouldn't happen (allow() gates this), defensively reset.
		b.state = Closed
	}
}

func (b *CircuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveSuccesses = 0
	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = time.Now()
		b.tripCount++
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.policy.FailureThreshold {
			b.state = Open
			b.openedAt = time.Now()
			b.tripCount++
		}
	}
}

// State returns the breaker's current state, for the Audit Monitor.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// TripCount returns the number of times this breaker has opened.
func (b *CircuitBreaker) TripCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripCount
}

// Retrier classifies and retries calls per operation class, each fronted by
// its own CircuitBreaker (§4.E).
type Retrier struct {
	mu       sync.Mutex
	policies map[OperationClass]RetryPolicy
	breakers map[OperationClass]*CircuitBreaker
	logger   *logutil.Logger
	onTrip   func(class OperationClass)
}

// NewRetrier builds a Retrier over policies (falling back to
// DefaultRetryPolicies for any class not present). onTrip, if non-nil, is
// invoked every time a class's breaker trips Open, so the Audit Monitor can
// record it (§4.H).
func NewRetrier(policies map[OperationClass]RetryPolicy, onTrip func(OperationClass)) *Retrier {
	if policies == nil {
		policies = DefaultRetryPolicies()
	}
	return &Retrier{
		policies: policies,
		breakers: make(map[OperationClass]*CircuitBreaker),
		logger:   logutil.WithField("component", "retrier"),
		onTrip:   onTrip,
	}
}

func (r *Retrier) breakerFor(class OperationClass) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[class]; ok {
		return b
	}
	policy, ok := r.policies[class]
	if !ok {
		policy = DefaultRetryPolicies()[ClassAPIOther]
	}
	b := NewCircuitBreaker(policy)
	r.breakers[class] = b
	return b
}

// Breaker exposes the breaker for class, for inspection by the Audit Monitor.
func (r *Retrier) Breaker(class OperationClass) *CircuitBreaker {
	return r.breakerFor(class)
}

// Op is a unit of work submitted to the Retrier. The Retrier classifies any
// returned error with isTransient to decide whether to retry; a
// non-*AdapterError, non-*ModerationError error is treated as
// non-transient.
type Op func(ctx context.Context, attempt int) error

// Do executes fn under class's circuit breaker and retry policy. It retries
// transient failures with exponential backoff plus jitter, honoring a
// server-supplied RateLimited retry-after verbatim before the next attempt.
// Permanent errors and context cancellation are not retried.
func (r *Retrier) Do(ctx context.Context, class OperationClass, fn Op) error {
	breaker := r.breakerFor(class)
	policy := breaker.policy

	if !breaker.allow() {
		return ErrCircuitOpen
	}

	var lastErr error
	backoff := policy.InitialBackoff

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return NewError(KindCancelled, "cancelled", err)
		}

		err := fn(ctx, attempt)
		if err == nil {
			breaker.recordSuccess()
			return nil
		}
		lastErr = err

		transient := isTransient(err)
		if ae, ok := err.(*AdapterError); ok && ae.Kind == AdapterRateLimited && ae.RetryAfter > policy.MaxBackoff {
			transient = false
		}
		if !transient {
			breaker.recordFailure()
			if r.onTrip != nil && breaker.State() == Open {
				r.onTrip(class)
			}
			return err
		}

		if attempt == policy.MaxAttempts {
			break
		}

		wait := backoff
		if ae, ok := err.(*AdapterError); ok && ae.Kind == AdapterRateLimited && ae.RetryAfter > 0 {
			wait = ae.RetryAfter
		} else if policy.Jitter > 0 {
			jitter := 1 + (rand.Float64()*2-1)*policy.Jitter
			wait = time.Duration(float64(backoff) * jitter)
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return NewError(KindCancelled, "cancelled during backoff", ctx.Err())
		}

		backoff = time.Duration(float64(backoff) * policy.BackoffMultiplier)
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	breaker.recordFailure()
	if r.onTrip != nil && breaker.State() == Open {
		r.onTrip(class)
	}
	return NewError(KindTransient, "retries exhausted", lastErr)
}

// isTransient reports whether err is of a retryable kind: adapter rate
// limits, timeouts and 5xx responses, and ModerationErrors of
// KindTransient. Everything else is permanent, including 4xx other than
// 429, cancellation, and AdapterUnknown (which is how the adapter reports
// non-REST failures such as a dropped connection). Do additionally treats
// a rate limit whose retry-after exceeds the policy's MaxBackoff as
// permanent.
func isTransient(err error) bool {
	switch e := err.(type) {
	case *AdapterError:
		return e.Transient()
	case *ModerationError:
		return e.Kind == KindTransient
	default:
		return false
	}
}
