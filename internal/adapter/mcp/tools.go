package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.getBudgetStatusTool(),
		s.checkBreakerTool(),
		s.listRecentExecutionsTool(),
	)
}

func (s *Server) getBudgetStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_budget_status",
		mcplib.WithDescription("Get the current budget state of a running execution: limit, spend, held amount, remaining"),
		mcplib.WithString("execution_id",
			mcplib.Required(),
			mcplib.Description("The execution ID to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetBudgetStatus,
	}
}

func (s *Server) checkBreakerTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("check_breaker",
		mcplib.WithDescription("Evaluate the runaway-loop circuit breaker for an execution"),
		mcplib.WithString("execution_id",
			mcplib.Required(),
			mcplib.Description("The execution ID to check"),
		),
		mcplib.WithNumber("retry_count",
			mcplib.Description("The orchestrator's current retry count for this execution"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCheckBreaker,
	}
}

func (s *Server) listRecentExecutionsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_recent_executions",
		mcplib.WithDescription("List summaries of recently closed executions, newest first"),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of summaries to return (default 10)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListRecentExecutions,
	}
}

func (s *Server) handleGetBudgetStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.StatusReader == nil {
		return mcplib.NewToolResultError("status reader not configured"), nil
	}
	args := req.GetArguments()
	executionID, ok := args["execution_id"].(string)
	if !ok || executionID == "" {
		return mcplib.NewToolResultError("execution_id is required"), nil
	}
	status, err := s.deps.StatusReader.Status(ctx, executionID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get status for %s", executionID), err,
		), nil
	}
	data, err := json.Marshal(status)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal status", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleCheckBreaker(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.BreakerReader == nil {
		return mcplib.NewToolResultError("breaker reader not configured"), nil
	}
	args := req.GetArguments()
	executionID, ok := args["execution_id"].(string)
	if !ok || executionID == "" {
		return mcplib.NewToolResultError("execution_id is required"), nil
	}
	var retryCount uint32
	if raw, ok := args["retry_count"].(float64); ok && raw > 0 {
		retryCount = uint32(raw)
	}
	verdict, err := s.deps.BreakerReader.CheckBreaker(ctx, executionID, retryCount)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to check breaker for %s", executionID), err,
		), nil
	}
	data, err := json.Marshal(verdict)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal verdict", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleListRecentExecutions(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.HistoryReader == nil {
		return mcplib.NewToolResultError("history reader not configured"), nil
	}
	limit := 10
	if raw, ok := req.GetArguments()["limit"].(float64); ok && raw > 0 {
		limit = int(raw)
	}
	summaries := s.deps.HistoryReader.History(ctx, limit)
	data, err := json.Marshal(summaries)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal summaries", err), nil
	}
	return toolResultJSON(string(data)), nil
}
