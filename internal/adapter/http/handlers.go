package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/RedBackRubbish/torbit/internal/domain"
	"github.com/RedBackRubbish/torbit/internal/domain/ledger"
	"github.com/RedBackRubbish/torbit/internal/service"
)

// Handlers bundles the HTTP handlers around the meter service.
type Handlers struct {
	meter *service.MeterService
}

// NewHandlers creates the handler set.
func NewHandlers(meter *service.MeterService) *Handlers {
	return &Handlers{meter: meter}
}

type openRequest struct {
	ExecutionID   string `json:"execution_id"`
	AgentCategory string `json:"agent_category"`
	BudgetLimit   int64  `json:"budget_limit"`
}

// OpenExecution creates the budget account for a new execution.
func (h *Handlers) OpenExecution(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[openRequest](w, r)
	if !ok {
		return
	}

	status, err := h.meter.Open(r.Context(), req.ExecutionID, req.AgentCategory, req.BudgetLimit)
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusCreated, status)
}

type tokensRequest struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// ChargeTokens records model token usage.
func (h *Handlers) ChargeTokens(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tokensRequest](w, r)
	if !ok {
		return
	}
	res, err := h.meter.AccountTokens(r.Context(), urlParam(r, "id"), req.InputTokens, req.OutputTokens)
	h.writeChargeResult(w, res, err)
}

type toolCallRequest struct {
	Tool string `json:"tool"`
}

// ChargeToolCall records one tool invocation.
func (h *Handlers) ChargeToolCall(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[toolCallRequest](w, r)
	if !ok {
		return
	}
	res, err := h.meter.AccountToolCall(r.Context(), urlParam(r, "id"), req.Tool)
	h.writeChargeResult(w, res, err)
}

type externalRequest struct {
	Provider string `json:"provider"`
	Count    int64  `json:"count"`
}

// ChargeExternalRequest records requests to an external provider.
func (h *Handlers) ChargeExternalRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[externalRequest](w, r)
	if !ok {
		return
	}
	res, err := h.meter.AccountExternalRequest(r.Context(), urlParam(r, "id"), req.Provider, req.Count)
	h.writeChargeResult(w, res, err)
}

type penaltyRequest struct {
	Severity float64 `json:"severity"`
}

// ApplyPenalty records a spend-scaled penalty.
func (h *Handlers) ApplyPenalty(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[penaltyRequest](w, r)
	if !ok {
		return
	}
	res, err := h.meter.ApplyPenalty(r.Context(), urlParam(r, "id"), req.Severity)
	h.writeChargeResult(w, res, err)
}

// writeChargeResult maps a charge outcome to HTTP. A budget overage is not
// a transport error: the charge landed and the result carries the flag, so
// the response stays 200.
func (h *Handlers) writeChargeResult(w http.ResponseWriter, res service.ChargeResult, err error) {
	if err != nil && !errors.Is(err, domain.ErrBudgetExceeded) {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type holdRequest struct {
	Amount      int64  `json:"amount"`
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
}

// OpenHold reserves cost for speculative work.
func (h *Handlers) OpenHold(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[holdRequest](w, r)
	if !ok {
		return
	}
	hold, err := h.meter.OpenHold(r.Context(), urlParam(r, "id"), req.Amount, req.TaskID, req.Description)
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusCreated, hold)
}

type resolveRequest struct {
	Approved bool `json:"approved"`
}

// ResolveHold applies the verifier's decision to a pending hold.
func (h *Handlers) ResolveHold(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[resolveRequest](w, r)
	if !ok {
		return
	}
	status, err := h.meter.ResolveHold(r.Context(), urlParam(r, "id"), req.Approved)
	if err != nil {
		writeDomainError(w, err, "hold not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetStatus returns the point-in-time budget state of an execution.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.meter.Status(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// CheckBreaker evaluates the runaway-loop breaker for an execution. The
// orchestrator supplies its retry count as a query parameter.
func (h *Handlers) CheckBreaker(w http.ResponseWriter, r *http.Request) {
	retryCount, err := strconv.ParseUint(r.URL.Query().Get("retry_count"), 10, 32)
	if err != nil && r.URL.Query().Get("retry_count") != "" {
		writeError(w, http.StatusBadRequest, "retry_count must be a non-negative integer")
		return
	}

	verdict, err := h.meter.CheckBreaker(r.Context(), urlParam(r, "id"), uint32(retryCount))
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

type closeRequest struct {
	FinalStatus string `json:"final_status"`
}

// CloseExecution consumes the account and returns its immutable summary.
func (h *Handlers) CloseExecution(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[closeRequest](w, r)
	if !ok {
		return
	}
	summary, err := h.meter.Close(r.Context(), urlParam(r, "id"), ledger.FinalStatus(req.FinalStatus))
	if err != nil {
		writeDomainError(w, err, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// History returns recently closed execution summaries, newest first.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.meter.History(r.Context(), limit))
}
