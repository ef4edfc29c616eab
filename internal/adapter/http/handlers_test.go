package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/RedBackRubbish/torbit/internal/domain/ledger"
	"github.com/RedBackRubbish/torbit/internal/domain/pricing"
	"github.com/RedBackRubbish/torbit/internal/history"
	"github.com/RedBackRubbish/torbit/internal/resilience"
	"github.com/RedBackRubbish/torbit/internal/service"
)

func newTestRouter() chi.Router {
	table := &pricing.Table{
		InputRate:         30,
		OutputRate:        60,
		ToolBasePrice:     5,
		ProviderBasePrice: 3,
		PenaltyEnabled:    true,
		PenaltyMultiplier: 0.1,
	}
	meter := service.NewMeterService(table, 1000, resilience.Limits{}, history.NewRing(16))

	r := chi.NewRouter()
	MountRoutes(r, NewHandlers(meter))
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func openExecution(t *testing.T, r chi.Router, id string) {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/api/v1/executions",
		`{"execution_id":"`+id+`","agent_category":"default"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOpenExecution(t *testing.T) {
	r := newTestRouter()

	rec := doJSON(t, r, http.MethodPost, "/api/v1/executions",
		`{"execution_id":"exec-1","agent_category":"default","budget_limit":500}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var status ledger.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if status.BudgetLimit != 500 || status.Remaining != 500 {
		t.Errorf("status = %+v", status)
	}

	// Duplicate id conflicts.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/executions",
		`{"execution_id":"exec-1"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate open status = %d, want 409", rec.Code)
	}
}

func TestOpenExecutionValidation(t *testing.T) {
	r := newTestRouter()

	rec := doJSON(t, r, http.MethodPost, "/api/v1/executions", `{"agent_category":"default"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChargeTokens(t *testing.T) {
	r := newTestRouter()
	openExecution(t, r, "exec-1")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/executions/exec-1/tokens",
		`{"input_tokens":1000,"output_tokens":500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var res service.ChargeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// 1000 in @ 30/1k + 500 out @ 60/1k = 60
	if res.Calculation.Amount != 60 {
		t.Errorf("amount = %d, want 60", res.Calculation.Amount)
	}
	if res.BudgetExceeded {
		t.Error("unexpected budget_exceeded flag")
	}
}

func TestChargeUnknownExecution(t *testing.T) {
	r := newTestRouter()

	rec := doJSON(t, r, http.MethodPost, "/api/v1/executions/nope/tool-calls", `{"tool":"grep"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestChargeOverBudgetIs200WithFlag(t *testing.T) {
	r := newTestRouter()
	openExecution(t, r, "exec-1")

	// 50000 input tokens @ 30/1k = 1500 > 1000.
	rec := doJSON(t, r, http.MethodPost, "/api/v1/executions/exec-1/tokens",
		`{"input_tokens":50000,"output_tokens":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var res service.ChargeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.BudgetExceeded {
		t.Error("expected budget_exceeded flag")
	}
	if !res.Status.Exceeded {
		t.Error("expected exceeded status")
	}
}

func TestHoldLifecycle(t *testing.T) {
	r := newTestRouter()
	openExecution(t, r, "exec-1")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/executions/exec-1/holds",
		`{"amount":200,"task_id":"task-1","description":"speculative work"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open hold status = %d: %s", rec.Code, rec.Body.String())
	}
	var hold ledger.Hold
	if err := json.Unmarshal(rec.Body.Bytes(), &hold); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/holds/"+hold.ID+"/resolve", `{"approved":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", rec.Code, rec.Body.String())
	}
	var status ledger.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if status.FinalizedSpend != 200 || status.HeldSpend != 0 {
		t.Errorf("status = %+v", status)
	}

	// Second resolution conflicts.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/holds/"+hold.ID+"/resolve", `{"approved":false}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("second resolve status = %d, want 409", rec.Code)
	}
}

func TestResolveUnknownHold(t *testing.T) {
	r := newTestRouter()

	rec := doJSON(t, r, http.MethodPost, "/api/v1/holds/no-such/resolve", `{"approved":true}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCheckBreaker(t *testing.T) {
	r := newTestRouter()
	openExecution(t, r, "exec-1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions/exec-1/breaker?retry_count=5", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var verdict resilience.Verdict
	if err := json.Unmarshal(rec.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !verdict.Tripped || verdict.Reason != resilience.ReasonRetryLimitExceeded {
		t.Errorf("verdict = %+v, want retry trip", verdict)
	}
}

func TestCloseAndHistory(t *testing.T) {
	r := newTestRouter()
	openExecution(t, r, "exec-1")

	doJSON(t, r, http.MethodPost, "/api/v1/executions/exec-1/tool-calls", `{"tool":"grep"}`)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/executions/exec-1/close", `{"final_status":"completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("close status = %d: %s", rec.Code, rec.Body.String())
	}
	var sum ledger.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sum.FinalizedSpend != 5 {
		t.Errorf("finalized = %d, want 5", sum.FinalizedSpend)
	}

	// Second close: the account is gone.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/executions/exec-1/close", `{"final_status":"completed"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second close status = %d, want 404", rec.Code)
	}

	// History serves the summary newest-first.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", http.NoBody)
	hrec := httptest.NewRecorder()
	r.ServeHTTP(hrec, req)
	if hrec.Code != http.StatusOK {
		t.Fatalf("history status = %d", hrec.Code)
	}
	var sums []ledger.Summary
	if err := json.Unmarshal(hrec.Body.Bytes(), &sums); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(sums) != 1 || sums[0].ExecutionID != "exec-1" {
		t.Errorf("history = %+v", sums)
	}
}

func TestCloseInvalidStatus(t *testing.T) {
	r := newTestRouter()
	openExecution(t, r, "exec-1")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/executions/exec-1/close", `{"final_status":"paused"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
