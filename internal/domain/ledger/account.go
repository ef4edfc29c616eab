// Package ledger implements the per-execution budget account and its
// append-style transaction log, including the hold state machine that backs
// conditional billing: speculative cost is reserved as a pending hold and
// either finalized (billed) or refunded (discarded) exactly once, driven by
// a downstream verifier's decision.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RedBackRubbish/torbit/internal/domain"
)

// DefaultWarnRatio is the fraction of the budget limit at which an account
// enters the warning state.
const DefaultWarnRatio = 0.8

// Account is the mutable budget ledger for one execution. All methods are
// safe for concurrent use; a single per-account mutex guards every state
// transition, so the exactly-once hold resolution holds even when two
// callers race to resolve the same hold. No method blocks on I/O.
type Account struct {
	mu  sync.Mutex
	now func() time.Time // for testing

	executionID   string
	agentCategory string
	budgetLimit   int64
	warnThreshold int64
	openedAt      time.Time

	finalizedSpend int64
	heldSpend      int64
	exceeded       bool
	exceededAt     *time.Time

	transactions []*Transaction
	holds        map[string]*Transaction
}

// Status is a point-in-time read of an account's state.
type Status struct {
	ExecutionID    string     `json:"execution_id"`
	AgentCategory  string     `json:"agent_category"`
	BudgetLimit    int64      `json:"budget_limit"`
	FinalizedSpend int64      `json:"finalized_spend"`
	HeldSpend      int64      `json:"held_spend"`
	Remaining      int64      `json:"remaining"`
	Warning        bool       `json:"warning"`
	Exceeded       bool       `json:"exceeded"`
	ExceededAt     *time.Time `json:"exceeded_at,omitempty"`
	OpenedAt       time.Time  `json:"opened_at"`
}

// NewAccount creates an account with the given (already multiplier-adjusted)
// budget limit. The warn threshold is 80% of the limit.
func NewAccount(executionID, agentCategory string, budgetLimit int64) *Account {
	a := &Account{
		now:           time.Now,
		executionID:   executionID,
		agentCategory: agentCategory,
		budgetLimit:   budgetLimit,
		warnThreshold: int64(float64(budgetLimit) * DefaultWarnRatio),
		holds:         make(map[string]*Transaction),
	}
	a.openedAt = a.now()
	return a
}

// ChargeEager appends an irreversible cost transaction and adds its amount
// to the finalized spend. The triggering charge always lands, even when it
// pushes the account over its limit: the operation already happened and must
// be recorded. The call reports domain.ErrBudgetExceeded so the caller stops
// issuing further eager work. Once exceeded, subsequent eager charges are
// rejected without being recorded.
func (a *Account) ChargeEager(kind Kind, amount int64, description string, metadata map[string]string) (*Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.exceeded {
		return nil, domain.ErrBudgetExceeded
	}

	tx := a.append(kind, amount, description, metadata)
	a.finalizedSpend += amount
	if a.overBudgetLocked() {
		a.markExceededLocked()
		return tx, domain.ErrBudgetExceeded
	}
	return tx, nil
}

// OpenHold reserves an amount for speculative work pending verifier
// approval. It deliberately performs no budget check: admission control is
// the caller's job via Remaining; the ledger's job is bookkeeping.
func (a *Account) OpenHold(amount int64, taskID, description string) (Hold, *Transaction) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx := a.append(KindHold, amount, description, nil)
	tx.Status = HoldPending
	tx.TaskID = taskID
	a.holds[tx.ID] = tx
	a.heldSpend += amount

	return Hold{
		ID:          tx.ID,
		ExecutionID: a.executionID,
		TaskID:      taskID,
		Amount:      amount,
	}, tx
}

// FinalizeHold commits a pending hold: the amount moves from held to
// finalized spend and the user is billed. Exactly one resolution per hold
// succeeds; any second finalize or refund gets domain.ErrHoldResolved with
// no mutation. An unknown hold id gets domain.ErrNotFound.
func (a *Account) FinalizeHold(holdID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, ok := a.holds[holdID]
	if !ok {
		return domain.ErrNotFound
	}
	if tx.Status != HoldPending {
		return domain.ErrHoldResolved
	}

	tx.Status = HoldFinalized
	a.heldSpend -= tx.Amount
	a.finalizedSpend += tx.Amount
	if a.overBudgetLocked() {
		a.markExceededLocked()
	}
	return nil
}

// RefundHold discards a pending hold with zero effect on finalized spend:
// the user is never charged for rejected work. A zero-amount refund
// transaction is appended for audit traceability, distinct from the hold.
func (a *Account) RefundHold(holdID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, ok := a.holds[holdID]
	if !ok {
		return domain.ErrNotFound
	}
	if tx.Status != HoldPending {
		return domain.ErrHoldResolved
	}

	tx.Status = HoldRefunded
	a.heldSpend -= tx.Amount
	a.append(KindRefund, 0, "refund of hold "+holdID, map[string]string{
		"hold_id": holdID,
		"task_id": tx.TaskID,
	})
	return nil
}

// Remaining returns max(0, budgetLimit - finalizedSpend - heldSpend).
func (a *Account) Remaining() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remainingLocked()
}

// TotalSpend returns the current finalized spend. Used as the base for
// penalty calculations.
func (a *Account) TotalSpend() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finalizedSpend
}

// IsExceeded reports whether the account has ever gone over budget.
// The flag is sticky: once set it never resets.
func (a *Account) IsExceeded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exceeded
}

// IsWarning reports whether spend has reached 80% of the limit without the
// account being exceeded yet.
func (a *Account) IsWarning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.warningLocked()
}

// Snapshot returns a point-in-time view of the account.
func (a *Account) Snapshot() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		ExecutionID:    a.executionID,
		AgentCategory:  a.agentCategory,
		BudgetLimit:    a.budgetLimit,
		FinalizedSpend: a.finalizedSpend,
		HeldSpend:      a.heldSpend,
		Remaining:      a.remainingLocked(),
		Warning:        a.warningLocked(),
		Exceeded:       a.exceeded,
		ExceededAt:     a.exceededAt,
		OpenedAt:       a.openedAt,
	}
}

// Close produces the immutable terminal summary. Pending holds are carried
// into the summary as pending; resolving them beforehand is the caller's
// responsibility. The registry removes the account afterward, so it can
// never be charged again.
func (a *Account) Close(status FinalStatus) Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	txs := make([]Transaction, len(a.transactions))
	for i, tx := range a.transactions {
		txs[i] = *tx
	}

	return Summary{
		ExecutionID:    a.executionID,
		AgentCategory:  a.agentCategory,
		FinalStatus:    status,
		BudgetLimit:    a.budgetLimit,
		FinalizedSpend: a.finalizedSpend,
		HeldSpend:      a.heldSpend,
		Exceeded:       a.exceeded,
		ExceededAt:     a.exceededAt,
		OpenedAt:       a.openedAt,
		ClosedAt:       a.now(),
		Transactions:   txs,
		Metrics:        aggregate(txs),
	}
}

// append must be called with a.mu held.
func (a *Account) append(kind Kind, amount int64, description string, metadata map[string]string) *Transaction {
	tx := &Transaction{
		ID:          uuid.NewString(),
		ExecutionID: a.executionID,
		Kind:        kind,
		Amount:      amount,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   a.now(),
	}
	a.transactions = append(a.transactions, tx)
	return tx
}

// overBudgetLocked must be called with a.mu held.
func (a *Account) overBudgetLocked() bool {
	return a.finalizedSpend+a.heldSpend > a.budgetLimit
}

// markExceededLocked sets the sticky exceeded flag. ExceededAt never changes
// after first set. Must be called with a.mu held.
func (a *Account) markExceededLocked() {
	if a.exceeded {
		return
	}
	a.exceeded = true
	t := a.now()
	a.exceededAt = &t
}

func (a *Account) remainingLocked() int64 {
	r := a.budgetLimit - a.finalizedSpend - a.heldSpend
	if r < 0 {
		return 0
	}
	return r
}

func (a *Account) warningLocked() bool {
	return !a.exceeded && a.finalizedSpend+a.heldSpend >= a.warnThreshold
}

// aggregate computes per-category metrics from a closed transaction list.
func aggregate(txs []Transaction) Metrics {
	var m Metrics
	for i := range txs {
		tx := &txs[i]
		switch tx.Kind {
		case KindToken:
			m.TokenCost += tx.Amount
			m.TokenCharges++
		case KindToolCall:
			m.ToolCost += tx.Amount
			m.ToolCalls++
		case KindExternal:
			m.ExternalCost += tx.Amount
			m.ExternalRequests++
		case KindPenalty:
			m.PenaltyCost += tx.Amount
			m.Penalties++
		case KindHold:
			switch tx.Status {
			case HoldFinalized:
				m.HoldsFinalized++
			case HoldRefunded:
				m.HoldsRefunded++
			case HoldPending:
				m.HoldsPending++
			}
		}
	}
	return m
}
