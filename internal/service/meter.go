package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	oteladapter "github.com/RedBackRubbish/torbit/internal/adapter/otel"
	"github.com/RedBackRubbish/torbit/internal/adapter/ws"
	"github.com/RedBackRubbish/torbit/internal/domain"
	"github.com/RedBackRubbish/torbit/internal/domain/ledger"
	"github.com/RedBackRubbish/torbit/internal/domain/pricing"
	"github.com/RedBackRubbish/torbit/internal/history"
	"github.com/RedBackRubbish/torbit/internal/port/auditsink"
	"github.com/RedBackRubbish/torbit/internal/port/broadcast"
	"github.com/RedBackRubbish/torbit/internal/resilience"
)

// MeterService is the accounting facade other subsystems call. It chains the
// pure cost calculator into the per-execution budget ledger, owns the live
// account registry, and closes executions out into immutable summaries.
//
// Accounts are independent; the registry lock only guards the map itself,
// so concurrent executions never serialize against each other.
type MeterService struct {
	mu       sync.RWMutex
	accounts map[string]*ledger.Account
	holdIdx  map[string]string // hold id -> execution id

	table         *pricing.Table
	defaultLimit  int64
	breakerLimits resilience.Limits
	ring          *history.Ring

	sink    auditsink.Sink        // optional
	hub     broadcast.Broadcaster // optional
	metrics *oteladapter.Metrics  // optional

	now func() time.Time // for testing
}

// ChargeResult reports one recorded cost event. When BudgetExceeded is set
// the charge still landed (the triggering operation already happened); the
// caller must stop issuing further eager work.
type ChargeResult struct {
	Transaction    ledger.Transaction  `json:"transaction"`
	Calculation    pricing.Calculation `json:"calculation"`
	Status         ledger.Status       `json:"status"`
	BudgetExceeded bool                `json:"budget_exceeded"`
}

// NewMeterService creates the facade. Zero breaker limits are filled with
// defaults; sink, hub and metrics are attached afterward via Set*.
func NewMeterService(table *pricing.Table, defaultLimit int64, limits resilience.Limits, ring *history.Ring) *MeterService {
	return &MeterService{
		accounts:      make(map[string]*ledger.Account),
		holdIdx:       make(map[string]string),
		table:         table,
		defaultLimit:  defaultLimit,
		breakerLimits: limits.WithDefaults(),
		ring:          ring,
		now:           time.Now,
	}
}

// SetAuditSink attaches the outbound audit-history collaborator.
func (s *MeterService) SetAuditSink(sink auditsink.Sink) { s.sink = sink }

// SetBroadcaster attaches the live event hub.
func (s *MeterService) SetBroadcaster(hub broadcast.Broadcaster) { s.hub = hub }

// SetMetrics attaches OpenTelemetry instruments.
func (s *MeterService) SetMetrics(m *oteladapter.Metrics) { s.metrics = m }

// Open creates the budget account for a new execution. The requested limit
// (or the configured default when zero) is scaled by the agent-category
// multiplier. A duplicate execution id is an error, never an overwrite.
func (s *MeterService) Open(ctx context.Context, executionID, agentCategory string, requestedLimit int64) (ledger.Status, error) {
	if executionID == "" {
		return ledger.Status{}, fmt.Errorf("execution id is required: %w", domain.ErrValidation)
	}
	if requestedLimit < 0 {
		return ledger.Status{}, fmt.Errorf("budget limit must be >= 0: %w", domain.ErrValidation)
	}
	if requestedLimit == 0 {
		requestedLimit = s.defaultLimit
	}
	limit := s.table.AdjustedLimit(requestedLimit, agentCategory)

	s.mu.Lock()
	if _, ok := s.accounts[executionID]; ok {
		s.mu.Unlock()
		return ledger.Status{}, fmt.Errorf("execution %s: %w", executionID, domain.ErrAlreadyExists)
	}
	acct := ledger.NewAccount(executionID, agentCategory, limit)
	s.accounts[executionID] = acct
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ExecutionsOpened.Add(ctx, 1)
	}
	slog.Info("execution opened",
		"execution_id", executionID,
		"agent_category", agentCategory,
		"budget_limit", limit,
	)
	return acct.Snapshot(), nil
}

// AccountTokens prices and records model token usage.
func (s *MeterService) AccountTokens(ctx context.Context, executionID string, inputTokens, outputTokens int64) (ChargeResult, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return ChargeResult{}, fmt.Errorf("token counts must be >= 0: %w", domain.ErrValidation)
	}
	acct, err := s.account(executionID)
	if err != nil {
		return ChargeResult{}, err
	}
	calc := s.table.TokenCost(inputTokens, outputTokens, acct.Snapshot().AgentCategory)
	return s.charge(ctx, acct, ledger.KindToken, calc, map[string]string{
		"input_tokens":  strconv.FormatInt(inputTokens, 10),
		"output_tokens": strconv.FormatInt(outputTokens, 10),
	})
}

// AccountToolCall prices and records one tool invocation.
func (s *MeterService) AccountToolCall(ctx context.Context, executionID, tool string) (ChargeResult, error) {
	if tool == "" {
		return ChargeResult{}, fmt.Errorf("tool name is required: %w", domain.ErrValidation)
	}
	acct, err := s.account(executionID)
	if err != nil {
		return ChargeResult{}, err
	}
	calc := s.table.ToolCost(tool, acct.Snapshot().AgentCategory)
	return s.charge(ctx, acct, ledger.KindToolCall, calc, map[string]string{"tool": tool})
}

// AccountExternalRequest prices and records requests to an external provider.
func (s *MeterService) AccountExternalRequest(ctx context.Context, executionID, provider string, count int64) (ChargeResult, error) {
	if provider == "" {
		return ChargeResult{}, fmt.Errorf("provider name is required: %w", domain.ErrValidation)
	}
	if count < 1 {
		return ChargeResult{}, fmt.Errorf("request count must be >= 1: %w", domain.ErrValidation)
	}
	acct, err := s.account(executionID)
	if err != nil {
		return ChargeResult{}, err
	}
	calc := s.table.ExternalCost(provider, count, acct.Snapshot().AgentCategory)
	return s.charge(ctx, acct, ledger.KindExternal, calc, map[string]string{
		"provider":      provider,
		"request_count": strconv.FormatInt(count, 10),
	})
}

// ApplyPenalty records a penalty scaled by current spend and severity.
// A zero-amount penalty (penalties disabled, or severity 0) has no side
// effects and records nothing.
func (s *MeterService) ApplyPenalty(ctx context.Context, executionID string, severity float64) (ChargeResult, error) {
	if severity < 0 {
		return ChargeResult{}, fmt.Errorf("severity must be >= 0: %w", domain.ErrValidation)
	}
	acct, err := s.account(executionID)
	if err != nil {
		return ChargeResult{}, err
	}
	calc := s.table.PenaltyCost(acct.TotalSpend(), severity)
	if calc.Amount == 0 {
		return ChargeResult{Calculation: calc, Status: acct.Snapshot()}, nil
	}
	return s.charge(ctx, acct, ledger.KindPenalty, calc, map[string]string{
		"severity": strconv.FormatFloat(severity, 'f', -1, 64),
	})
}

// OpenHold reserves cost for speculative work pending verifier approval.
// No budget check happens here; admission control is the caller's job via
// Remaining.
func (s *MeterService) OpenHold(ctx context.Context, executionID string, amount int64, taskID, description string) (ledger.Hold, error) {
	if amount < 1 {
		return ledger.Hold{}, fmt.Errorf("hold amount must be >= 1: %w", domain.ErrValidation)
	}
	if taskID == "" {
		return ledger.Hold{}, fmt.Errorf("task id is required: %w", domain.ErrValidation)
	}
	acct, err := s.account(executionID)
	if err != nil {
		return ledger.Hold{}, err
	}

	hold, _ := acct.OpenHold(amount, taskID, description)

	s.mu.Lock()
	s.holdIdx[hold.ID] = executionID
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.HoldsOpened.Add(ctx, 1)
	}
	s.broadcast(ctx, ws.EventHoldOpened, ws.HoldEvent{
		HoldID:      hold.ID,
		ExecutionID: executionID,
		TaskID:      taskID,
		Amount:      amount,
	})
	return hold, nil
}

// ResolveHold applies the verifier's decision to a hold: approved work is
// finalized (billed), rejected work is refunded at zero cost. Exactly one
// resolution succeeds; a repeat, or the loser of a race, observes
// domain.ErrHoldResolved.
func (s *MeterService) ResolveHold(ctx context.Context, holdID string, approved bool) (ledger.Status, error) {
	s.mu.RLock()
	executionID, ok := s.holdIdx[holdID]
	s.mu.RUnlock()
	if !ok {
		return ledger.Status{}, fmt.Errorf("hold %s: %w", holdID, domain.ErrNotFound)
	}
	acct, err := s.account(executionID)
	if err != nil {
		return ledger.Status{}, err
	}

	exceededBefore := acct.IsExceeded()

	outcome := "refunded"
	if approved {
		outcome = "finalized"
		err = acct.FinalizeHold(holdID)
	} else {
		err = acct.RefundHold(holdID)
	}
	if err != nil {
		return ledger.Status{}, fmt.Errorf("hold %s: %w", holdID, err)
	}

	if s.metrics != nil {
		if approved {
			s.metrics.HoldsFinalized.Add(ctx, 1)
		} else {
			s.metrics.HoldsRefunded.Add(ctx, 1)
		}
	}
	status := acct.Snapshot()
	s.broadcast(ctx, ws.EventHoldResolved, ws.HoldEvent{
		HoldID:      holdID,
		ExecutionID: executionID,
		Outcome:     outcome,
	})
	if status.Exceeded && !exceededBefore {
		s.notifyExceeded(ctx, status)
	} else if status.Warning {
		s.notifyWarning(ctx, status)
	}
	slog.Info("hold resolved", "hold_id", holdID, "execution_id", executionID, "outcome", outcome)
	return status, nil
}

// Remaining returns max(0, budgetLimit - finalizedSpend - heldSpend).
func (s *MeterService) Remaining(_ context.Context, executionID string) (int64, error) {
	acct, err := s.account(executionID)
	if err != nil {
		return 0, err
	}
	return acct.Remaining(), nil
}

// Status returns a point-in-time view of an execution's account.
func (s *MeterService) Status(_ context.Context, executionID string) (ledger.Status, error) {
	acct, err := s.account(executionID)
	if err != nil {
		return ledger.Status{}, err
	}
	return acct.Snapshot(), nil
}

// CheckBreaker evaluates the runaway-loop breaker for one execution. The
// retry count is supplied by the orchestration layer; retries never happen
// inside this engine.
func (s *MeterService) CheckBreaker(ctx context.Context, executionID string, retryCount uint32) (resilience.Verdict, error) {
	acct, err := s.account(executionID)
	if err != nil {
		return resilience.Verdict{}, err
	}
	st := acct.Snapshot()
	v := resilience.Evaluate(st.FinalizedSpend+st.HeldSpend, retryCount, st.OpenedAt, s.now(), s.breakerLimits)
	if v.Tripped {
		if s.metrics != nil {
			s.metrics.BreakerTrips.Add(ctx, 1)
		}
		slog.Warn("breaker tripped",
			"execution_id", executionID,
			"reason", string(v.Reason),
			"retry_count", retryCount,
		)
	}
	return v, nil
}

// Close consumes the account and produces its immutable summary. The account
// is removed from the registry first, so a second close (or any later
// charge) fails with NotFound. The summary is retained in the history ring
// and handed verbatim to the audit sink; a sink failure is logged, never
// allowed to block the close.
func (s *MeterService) Close(ctx context.Context, executionID string, status ledger.FinalStatus) (ledger.Summary, error) {
	if status != ledger.StatusCompleted && status != ledger.StatusAborted {
		return ledger.Summary{}, fmt.Errorf("final status %q: %w", status, domain.ErrValidation)
	}

	s.mu.Lock()
	acct, ok := s.accounts[executionID]
	if !ok {
		s.mu.Unlock()
		return ledger.Summary{}, fmt.Errorf("execution %s: %w", executionID, domain.ErrNotFound)
	}
	delete(s.accounts, executionID)
	s.mu.Unlock()

	summary := acct.Close(status)

	s.mu.Lock()
	for _, tx := range summary.Transactions {
		if tx.Kind == ledger.KindHold {
			delete(s.holdIdx, tx.ID)
		}
	}
	s.mu.Unlock()

	s.ring.Add(summary)

	if s.sink != nil {
		if err := s.sink.RecordSummary(ctx, summary); err != nil {
			slog.Error("audit sink record failed", "execution_id", executionID, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.ExecutionsClosed.Add(ctx, 1)
		s.metrics.FinalSpend.Record(ctx, summary.FinalizedSpend)
	}
	s.broadcast(ctx, ws.EventExecutionClosed, ws.ExecutionClosedEvent{
		ExecutionID: executionID,
		FinalStatus: string(summary.FinalStatus),
		Spend:       summary.FinalizedSpend,
		Exceeded:    summary.Exceeded,
		HeldSpend:   summary.HeldSpend,
	})
	slog.Info("execution closed",
		"execution_id", executionID,
		"final_status", string(summary.FinalStatus),
		"finalized_spend", summary.FinalizedSpend,
		"pending_holds", summary.Metrics.HoldsPending,
	)
	return summary, nil
}

// History returns up to n recently closed summaries, newest first.
func (s *MeterService) History(_ context.Context, n int) []ledger.Summary {
	return s.ring.Recent(n)
}

// account looks up a live account by execution id.
func (s *MeterService) account(executionID string) (*ledger.Account, error) {
	s.mu.RLock()
	acct, ok := s.accounts[executionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", executionID, domain.ErrNotFound)
	}
	return acct, nil
}

// charge records an eager cost transaction and emits the surrounding
// signals (metrics, live events, audit notification on the exceeded edge).
func (s *MeterService) charge(ctx context.Context, acct *ledger.Account, kind ledger.Kind, calc pricing.Calculation, metadata map[string]string) (ChargeResult, error) {
	tx, chargeErr := acct.ChargeEager(kind, calc.Amount, calc.Reason, metadata)
	status := acct.Snapshot()

	res := ChargeResult{
		Calculation: calc,
		Status:      status,
	}
	if tx != nil {
		res.Transaction = *tx
		if s.metrics != nil {
			s.metrics.Charges.Add(ctx, 1)
			s.metrics.ChargedAmount.Add(ctx, calc.Amount)
		}
		s.broadcast(ctx, ws.EventCostCharged, ws.CostChargedEvent{
			ExecutionID: status.ExecutionID,
			Kind:        string(kind),
			Amount:      calc.Amount,
			Remaining:   status.Remaining,
		})
	}

	if chargeErr != nil {
		res.BudgetExceeded = true
		if tx != nil {
			// The triggering charge: first crossing of the limit.
			s.notifyExceeded(ctx, status)
		}
		return res, fmt.Errorf("execution %s: %w", status.ExecutionID, chargeErr)
	}

	if status.Warning {
		s.notifyWarning(ctx, status)
	}
	return res, nil
}

// notifyExceeded emits the budget-exceeded event and audit notice. Called
// only on the edge where the limit is first crossed.
func (s *MeterService) notifyExceeded(ctx context.Context, status ledger.Status) {
	s.broadcast(ctx, ws.EventBudgetExceeded, ws.BudgetEvent{
		ExecutionID: status.ExecutionID,
		Spend:       status.FinalizedSpend + status.HeldSpend,
		Limit:       status.BudgetLimit,
	})
	if s.sink != nil {
		if err := s.sink.RecordExceeded(ctx, status); err != nil {
			slog.Error("audit sink exceeded notice failed", "execution_id", status.ExecutionID, "error", err)
		}
	}
}

func (s *MeterService) notifyWarning(ctx context.Context, status ledger.Status) {
	s.broadcast(ctx, ws.EventBudgetWarning, ws.BudgetEvent{
		ExecutionID: status.ExecutionID,
		Spend:       status.FinalizedSpend + status.HeldSpend,
		Limit:       status.BudgetLimit,
	})
}

func (s *MeterService) broadcast(ctx context.Context, eventType string, payload any) {
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, eventType, payload)
	}
}
