package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/RedBackRubbish/torbit/internal/domain/ledger"
	"github.com/RedBackRubbish/torbit/internal/resilience"
)

type mockStatusReader struct {
	statuses map[string]ledger.Status
}

func (m *mockStatusReader) Status(_ context.Context, id string) (ledger.Status, error) {
	if s, ok := m.statuses[id]; ok {
		return s, nil
	}
	return ledger.Status{}, errors.New("not found")
}

type mockBreakerReader struct {
	verdict resilience.Verdict
}

func (m *mockBreakerReader) CheckBreaker(_ context.Context, _ string, _ uint32) (resilience.Verdict, error) {
	return m.verdict, nil
}

type mockHistoryReader struct {
	summaries []ledger.Summary
}

func (m *mockHistoryReader) History(_ context.Context, n int) []ledger.Summary {
	if n < len(m.summaries) {
		return m.summaries[:n]
	}
	return m.summaries
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestNewServer(t *testing.T) {
	s := NewServer(ServerConfig{Addr: ":0", Name: "test", Version: "0.1.0"}, ServerDeps{})
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.MCPServer() == nil {
		t.Fatal("MCPServer() returned nil")
	}
}

func TestHandleGetBudgetStatus(t *testing.T) {
	s := NewServer(ServerConfig{Name: "test", Version: "0.1.0"}, ServerDeps{
		StatusReader: &mockStatusReader{statuses: map[string]ledger.Status{
			"exec-1": {ExecutionID: "exec-1", BudgetLimit: 1000, FinalizedSpend: 300, Remaining: 700},
		}},
	})

	result, err := s.handleGetBudgetStatus(context.Background(),
		callRequest("get_budget_status", map[string]any{"execution_id": "exec-1"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	var status ledger.Status
	if err := json.Unmarshal([]byte(text.Text), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if status.Remaining != 700 {
		t.Errorf("remaining = %d, want 700", status.Remaining)
	}
}

func TestHandleGetBudgetStatusMissingID(t *testing.T) {
	s := NewServer(ServerConfig{Name: "test", Version: "0.1.0"}, ServerDeps{
		StatusReader: &mockStatusReader{},
	})

	result, err := s.handleGetBudgetStatus(context.Background(),
		callRequest("get_budget_status", map[string]any{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing execution_id")
	}
}

func TestHandleCheckBreaker(t *testing.T) {
	s := NewServer(ServerConfig{Name: "test", Version: "0.1.0"}, ServerDeps{
		BreakerReader: &mockBreakerReader{verdict: resilience.Verdict{
			Tripped: true,
			Reason:  resilience.ReasonRetryLimitExceeded,
		}},
	})

	result, err := s.handleCheckBreaker(context.Background(),
		callRequest("check_breaker", map[string]any{
			"execution_id": "exec-1",
			"retry_count":  float64(5),
		}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	text := result.Content[0].(mcplib.TextContent)
	var verdict resilience.Verdict
	if err := json.Unmarshal([]byte(text.Text), &verdict); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !verdict.Tripped || verdict.Reason != resilience.ReasonRetryLimitExceeded {
		t.Errorf("verdict = %+v", verdict)
	}
}

func TestHandleListRecentExecutions(t *testing.T) {
	s := NewServer(ServerConfig{Name: "test", Version: "0.1.0"}, ServerDeps{
		HistoryReader: &mockHistoryReader{summaries: []ledger.Summary{
			{ExecutionID: "exec-2"},
			{ExecutionID: "exec-1"},
		}},
	})

	result, err := s.handleListRecentExecutions(context.Background(),
		callRequest("list_recent_executions", map[string]any{"limit": float64(1)}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	text := result.Content[0].(mcplib.TextContent)
	var sums []ledger.Summary
	if err := json.Unmarshal([]byte(text.Text), &sums); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(sums) != 1 || sums[0].ExecutionID != "exec-2" {
		t.Errorf("summaries = %+v", sums)
	}
}

func TestHandlersWithoutDeps(t *testing.T) {
	s := NewServer(ServerConfig{Name: "test", Version: "0.1.0"}, ServerDeps{})

	result, _ := s.handleGetBudgetStatus(context.Background(),
		callRequest("get_budget_status", map[string]any{"execution_id": "exec-1"}))
	if !result.IsError {
		t.Error("expected error result without status reader")
	}

	result, _ = s.handleCheckBreaker(context.Background(),
		callRequest("check_breaker", map[string]any{"execution_id": "exec-1"}))
	if !result.IsError {
		t.Error("expected error result without breaker reader")
	}

	result, _ = s.handleListRecentExecutions(context.Background(),
		callRequest("list_recent_executions", map[string]any{}))
	if !result.IsError {
		t.Error("expected error result without history reader")
	}
}
