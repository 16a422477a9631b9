package moderation

import (
	"context"
	"time"
)

// DeadlineProfile declares the four per-phase budgets the Timeout Harness
// enforces for one operation class (§4.F).
type DeadlineProfile struct {
	OperationTotal     time.Duration // wall-clock cap for one Discord action incl. retries
	DMBudget           time.Duration // cap for a best-effort DM
	DatabaseBudget     time.Duration // cap for the persistence transaction
	APIBudget          time.Duration // cap for a single Discord API call

	MaxExtendAttempts int     // extra extensions allowed for non-critical classes
	ExtendFactor      float64 // multiplier applied per extension, typically 1.5-2.0
}

// DefaultDeadlineProfiles returns the per-class defaults (§6).
func DefaultDeadlineProfiles() map[OperationClass]DeadlineProfile {
	base := DeadlineProfile{
		OperationTotal:    10 * time.Second,
		DMBudget:          3 * time.Second,
		DatabaseBudget:    5 * time.Second,
		APIBudget:         8 * time.Second,
		MaxExtendAttempts: 0,
		ExtendFactor:      1.0,
	}
	messages := base
	messages.MaxExtendAttempts = 2
	messages.ExtendFactor = 1.5

	return map[OperationClass]DeadlineProfile{
		ClassBanKick:  base,
		ClassTimeout:  base,
		ClassMessages: messages,
		ClassDatabase: base,
		ClassAPIOther: base,
	}
}

// TimeoutHarness selects deadline profiles per operation class and derives
// per-phase contexts from a parent context (§4.F).
type TimeoutHarness struct {
	profiles map[OperationClass]DeadlineProfile
}

// NewTimeoutHarness builds a harness over profiles, falling back to
// DefaultDeadlineProfiles for any class not present.
func NewTimeoutHarness(profiles map[OperationClass]DeadlineProfile) *TimeoutHarness {
	if profiles == nil {
		profiles = DefaultDeadlineProfiles()
	}
	return &TimeoutHarness{profiles: profiles}
}

// Profile returns the deadline profile for class.
func (h *TimeoutHarness) Profile(class OperationClass) DeadlineProfile {
	if p, ok := h.profiles[class]; ok {
		return p
	}
	return DefaultDeadlineProfiles()[ClassAPIOther]
}

// WithDM derives a context bounded by class's dm_budget. Callers must treat
// a context deadline exceeded on this context as graceful degradation
// (dm_sent=false), never as a hard failure (§4.F).
func (h *TimeoutHarness) WithDM(parent context.Context, class OperationClass) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, h.Profile(class).DMBudget)
}

// WithDatabase derives a context bounded by class's database_budget.
func (h *TimeoutHarness) WithDatabase(parent context.Context, class OperationClass) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, h.Profile(class).DatabaseBudget)
}

// WithAPI derives a context bounded by class's api_budget, used per attempt
// inside the Retrier.
func (h *TimeoutHarness) WithAPI(parent context.Context, class OperationClass) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, h.Profile(class).APIBudget)
}

// Extend returns the budget to use for the nth extension (1-based) of
// class's operation_total, honoring max_extend_attempts. ok is false once
// the class's extension budget is exhausted, telling the caller to give up
// rather than extend further.
func (h *TimeoutHarness) Extend(class OperationClass, attemptsUsed int) (budget time.Duration, ok bool) {
	p := h.Profile(class)
	if attemptsUsed >= p.MaxExtendAttempts {
		return 0, false
	}
	factor := p.ExtendFactor
	if factor <= 0 {
		factor = 1
	}
	extended := p.OperationTotal
	for i := 0; i <= attemptsUsed; i++ {
		extended = time.Duration(float64(extended) * factor)
	}
	return extended, true
}

// IsDeadlineExceeded reports whether err is exactly a context deadline,
// used to distinguish graceful DM degradation from other failures.
func IsDeadlineExceeded(err error) bool {
	return err == context.DeadlineExceeded
}
