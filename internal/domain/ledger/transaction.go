package ledger

import "time"

// Kind classifies one unit of accounting activity.
type Kind string

const (
	KindToken    Kind = "token"
	KindToolCall Kind = "tool_call"
	KindExternal Kind = "external_request"
	KindPenalty  Kind = "penalty"
	KindHold     Kind = "hold"
	KindRefund   Kind = "refund"
)

// HoldStatus tracks the single permitted transition of a hold transaction:
// pending, then exactly once to finalized or refunded.
type HoldStatus string

const (
	HoldPending   HoldStatus = "pending"
	HoldFinalized HoldStatus = "finalized"
	HoldRefunded  HoldStatus = "refunded"
)

// Transaction records one cost event against an execution. Immutable after
// creation except the single status transition on holds.
type Transaction struct {
	ID          string            `json:"id"`
	ExecutionID string            `json:"execution_id"`
	Kind        Kind              `json:"kind"`
	Amount      int64             `json:"amount"`
	Status      HoldStatus        `json:"status,omitempty"`  // holds only
	TaskID      string            `json:"task_id,omitempty"` // holds only
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Hold is the handle returned when speculative work is reserved. The
// verifier's decision resolves it through the meter service.
type Hold struct {
	ID          string `json:"id"`
	ExecutionID string `json:"execution_id"`
	TaskID      string `json:"task_id"`
	Amount      int64  `json:"amount"`
}
