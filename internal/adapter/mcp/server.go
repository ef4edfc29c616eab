// Package mcp exposes read-only budget tools over the Model Context
// Protocol, so an agent can ask about its own remaining budget mid-run.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/RedBackRubbish/torbit/internal/domain/ledger"
	"github.com/RedBackRubbish/torbit/internal/resilience"
)

// StatusReader reads the live budget state of an execution.
type StatusReader interface {
	Status(ctx context.Context, executionID string) (ledger.Status, error)
}

// BreakerReader evaluates the runaway-loop breaker for an execution.
type BreakerReader interface {
	CheckBreaker(ctx context.Context, executionID string, retryCount uint32) (resilience.Verdict, error)
}

// HistoryReader lists recently closed execution summaries.
type HistoryReader interface {
	History(ctx context.Context, n int) []ledger.Summary
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
}

// ServerDeps are the read-only collaborators the tools call into.
type ServerDeps struct {
	StatusReader  StatusReader
	BreakerReader BreakerReader
	HistoryReader HistoryReader
}

// Server hosts the MCP tools over streamable HTTP.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
}

// NewServer creates the MCP server and registers all tools.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Start serves MCP over streamable HTTP in a background goroutine.
func (s *Server) Start() error {
	handler := mcpserver.NewStreamableHTTPServer(s.mcpServer)
	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: handler,
	}

	go func() {
		slog.Info("mcp server listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the MCP HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// toolResultJSON wraps a JSON string as a successful tool result.
func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
