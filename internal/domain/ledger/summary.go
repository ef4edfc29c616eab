package ledger

import "time"

// FinalStatus is the terminal state of an execution.
type FinalStatus string

const (
	StatusCompleted FinalStatus = "completed"
	StatusAborted   FinalStatus = "aborted"
)

// Metrics aggregates transaction amounts and counts by category.
type Metrics struct {
	TokenCost        int64 `json:"token_cost"`
	ToolCost         int64 `json:"tool_cost"`
	ExternalCost     int64 `json:"external_cost"`
	PenaltyCost      int64 `json:"penalty_cost"`
	TokenCharges     int   `json:"token_charges"`
	ToolCalls        int   `json:"tool_calls"`
	ExternalRequests int   `json:"external_requests"`
	Penalties        int   `json:"penalties"`
	HoldsFinalized   int   `json:"holds_finalized"`
	HoldsRefunded    int   `json:"holds_refunded"`
	HoldsPending     int   `json:"holds_pending"`
}

// Summary is the immutable terminal snapshot produced when an execution
// closes. It is handed verbatim to the audit-history collaborator; this
// engine does not persist it. Holds still pending at close are surfaced as
// pending for the caller to detect, never force-resolved.
type Summary struct {
	ExecutionID    string        `json:"execution_id"`
	AgentCategory  string        `json:"agent_category"`
	FinalStatus    FinalStatus   `json:"final_status"`
	BudgetLimit    int64         `json:"budget_limit"`
	FinalizedSpend int64         `json:"finalized_spend"`
	HeldSpend      int64         `json:"held_spend"`
	Exceeded       bool          `json:"exceeded"`
	ExceededAt     *time.Time    `json:"exceeded_at,omitempty"`
	OpenedAt       time.Time     `json:"opened_at"`
	ClosedAt       time.Time     `json:"closed_at"`
	Transactions   []Transaction `json:"transactions"`
	Metrics        Metrics       `json:"metrics"`
}
