// Package mcpserver exposes agent runs and approvals as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harun/quill/pkg/agent"
	"github.com/harun/quill/pkg/ledger"
	"github.com/harun/quill/pkg/skills"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

const (
	ToolRunAgent       = "run_agent"
	ToolGetLedgerEntry = "get_ledger_entry"
	ToolApproveEntry   = "approve_entry"
)

// Runner executes plan-lane runs.
type Runner interface {
	Run(ctx context.Context, req agent.RunRequest) (*agent.RunResponse, error)
}

// Approver releases withheld actions.
type Approver interface {
	Approve(ctx context.Context, entryID string) (*agent.ApprovalResult, error)
}

// Ledger is the read surface of the ledger.
type Ledger interface {
	Get(ctx context.Context, id string) (ledger.Entry, error)
	URL(id string) string
}

// Config holds the MCP server configuration.
type Config struct {
	Name     string
	Version  string
	Runner   Runner
	Approver Approver
	Ledger   Ledger
	Logger   zerolog.Logger
}

// Server wraps the mcp-go server with agent handlers.
type Server struct {
	server   *server.MCPServer
	runner   Runner
	approver Approver
	ledger   Ledger
	logger   zerolog.Logger
}

// New builds the server and registers its tools.
func New(cfg Config) (*Server, error) {
	if cfg.Runner == nil || cfg.Approver == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("runner, approver and ledger are required")
	}
	if cfg.Name == "" {
		cfg.Name = "quill"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		server: server.NewMCPServer(
			cfg.Name,
			cfg.Version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		runner:   cfg.Runner,
		approver: cfg.Approver,
		ledger:   cfg.Ledger,
		logger:   cfg.Logger.With().Str("component", "mcp").Logger(),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	s.server.AddTool(mcp.NewTool(ToolRunAgent,
		mcp.WithDescription("Run the marketing agent on a request and return its response, tool activity and ledger records"),
		mcp.WithString("message", mcp.Required(), mcp.Description("Natural-language request")),
		mcp.WithString("tenant_id", mcp.Description("Tenant to act for; defaults to the configured tenant")),
		mcp.WithString("track", mcp.Description("Content track"), mcp.Enum(string(skills.TrackNewsletter), string(skills.TrackSocial), string(skills.TrackPressRelease))),
	), s.handleRunAgent)

	s.server.AddTool(mcp.NewTool(ToolGetLedgerEntry,
		mcp.WithDescription("Read a ledger entry by id"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Ledger entry id")),
	), s.handleGetLedgerEntry)

	s.server.AddTool(mcp.NewTool(ToolApproveEntry,
		mcp.WithDescription("Approve a ledger entry and execute its withheld actions"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Ledger entry id")),
	), s.handleApproveEntry)
}

// ServeStdio blocks serving MCP over stdin and stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info().Msg("Starting MCP server with stdio transport")
	return server.ServeStdio(s.server)
}

func (s *Server) handleRunAgent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.runner.Run(ctx, agent.RunRequest{
		Message:  message,
		TenantID: request.GetString("tenant_id", ""),
		Track:    request.GetString("track", ""),
	})
	if err != nil {
		return s.toolError(ToolRunAgent, err), nil
	}
	return jsonResult(resp)
}

func (s *Server) handleGetLedgerEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entry, err := s.ledger.Get(ctx, id)
	if err != nil {
		return s.toolError(ToolGetLedgerEntry, err), nil
	}
	return jsonResult(struct {
		ledger.Entry
		URL string `json:"url,omitempty"`
	}{entry, s.ledger.URL(entry.ID)})
}

func (s *Server) handleApproveEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.approver.Approve(ctx, id)
	if err != nil {
		return s.toolError(ToolApproveEntry, err), nil
	}
	return jsonResult(result)
}

// toolError reports failures as tool results so the client model can read them.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	var cfgErr *agent.ConfigurationError
	if errors.As(err, &cfgErr) || !isClientError(err) {
		s.logger.Error().Err(err).Str("tool", tool).Msg("MCP tool failed")
	}
	return mcp.NewToolResultError(err.Error())
}

func isClientError(err error) bool {
	return errors.Is(err, agent.ErrInvalidRequest) ||
		errors.Is(err, agent.ErrNotAwaitingApproval) ||
		errors.Is(err, ledger.ErrNotFound)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
