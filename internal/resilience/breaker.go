// Package resilience provides the runaway-loop circuit breaker for agent
// executions. The breaker is deliberately independent of budget accounting:
// budget exhaustion is a billing event, a breaker trip is a safety event,
// and a small per-task spend ceiling can stop an infinite retry loop long
// before the budget runs out.
package resilience

import "time"

// Reason identifies which ceiling tripped the breaker.
type Reason string

const (
	ReasonBudgetExceeded     Reason = "budget_exceeded"
	ReasonRetryLimitExceeded Reason = "retry_limit_exceeded"
	ReasonTimeLimitExceeded  Reason = "time_limit_exceeded"
)

// Limits holds the breaker ceilings. Zero values are replaced by defaults
// via WithDefaults.
type Limits struct {
	MaxSpend    int64         `json:"max_spend"`
	MaxRetries  uint32        `json:"max_retries"`
	MaxWallTime time.Duration `json:"max_wall_time"`
}

// DefaultLimits returns the stock breaker configuration: 3 retries,
// 5 minutes of wall clock, and a 10000-unit per-task spend ceiling.
func DefaultLimits() Limits {
	return Limits{
		MaxSpend:    10000,
		MaxRetries:  3,
		MaxWallTime: 5 * time.Minute,
	}
}

// WithDefaults fills zero fields from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxSpend == 0 {
		l.MaxSpend = d.MaxSpend
	}
	if l.MaxRetries == 0 {
		l.MaxRetries = d.MaxRetries
	}
	if l.MaxWallTime == 0 {
		l.MaxWallTime = d.MaxWallTime
	}
	return l
}

// Verdict is the breaker's decision. Computed, never stored.
type Verdict struct {
	Tripped bool   `json:"tripped"`
	Reason  Reason `json:"reason,omitempty"`
}

// Evaluate decides whether an execution must be aborted regardless of
// remaining budget. Ceilings are checked in priority order (spend, then
// retries, then wall clock) and only the first crossed ceiling is
// reported even if several are.
func Evaluate(spend int64, retryCount uint32, startedAt, now time.Time, limits Limits) Verdict {
	if spend > limits.MaxSpend {
		return Verdict{Tripped: true, Reason: ReasonBudgetExceeded}
	}
	if retryCount > limits.MaxRetries {
		return Verdict{Tripped: true, Reason: ReasonRetryLimitExceeded}
	}
	if now.Sub(startedAt) > limits.MaxWallTime {
		return Verdict{Tripped: true, Reason: ReasonTimeLimitExceeded}
	}
	return Verdict{}
}
