package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventCostCharged     = "cost.charged"
	EventBudgetWarning   = "budget.warning"
	EventBudgetExceeded  = "budget.exceeded"
	EventHoldOpened      = "hold.opened"
	EventHoldResolved    = "hold.resolved"
	EventExecutionClosed = "execution.closed"
)

// CostChargedEvent is broadcast for every recorded eager charge.
type CostChargedEvent struct {
	ExecutionID string `json:"execution_id"`
	Kind        string `json:"kind"`
	Amount      int64  `json:"amount"`
	Remaining   int64  `json:"remaining"`
}

// BudgetEvent is broadcast when an execution reaches its warning threshold
// or crosses its budget limit.
type BudgetEvent struct {
	ExecutionID string `json:"execution_id"`
	Spend       int64  `json:"spend"`
	Limit       int64  `json:"limit"`
}

// HoldEvent is broadcast when a hold is opened or resolved.
type HoldEvent struct {
	HoldID      string `json:"hold_id"`
	ExecutionID string `json:"execution_id"`
	TaskID      string `json:"task_id,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
	Outcome     string `json:"outcome,omitempty"` // "finalized" or "refunded"
}

// ExecutionClosedEvent is broadcast when an execution's account is closed
// out into a summary.
type ExecutionClosedEvent struct {
	ExecutionID string `json:"execution_id"`
	FinalStatus string `json:"final_status"`
	Spend       int64  `json:"spend"`
	HeldSpend   int64  `json:"held_spend"`
	Exceeded    bool   `json:"exceeded"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
