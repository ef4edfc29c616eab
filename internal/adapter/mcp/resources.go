package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"torbit://history",
			"Execution History",
			mcplib.WithResourceDescription("Summaries of recently closed executions"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleHistoryResource,
	)
}

func (s *Server) handleHistoryResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.HistoryReader == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"history reader not configured"}`,
			},
		}, nil
	}
	summaries := s.deps.HistoryReader.History(ctx, 50)
	data, err := json.Marshal(summaries)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
