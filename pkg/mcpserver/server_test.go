package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/harun/quill/pkg/agent"
	"github.com/harun/quill/pkg/ledger"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	req agent.RunRequest
	err error
}

func (f *fakeRunner) Run(ctx context.Context, req agent.RunRequest) (*agent.RunResponse, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &agent.RunResponse{Response: "Drafted.", Tools: []agent.ToolActivity{}}, nil
}

type fakeApprover struct {
	err error
}

func (f *fakeApprover) Approve(ctx context.Context, id string) (*agent.ApprovalResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &agent.ApprovalResult{Entry: ledger.Entry{ID: id, Status: ledger.StatusScheduled}}, nil
}

func newTestServer(t *testing.T, runner *fakeRunner, approver *fakeApprover) (*Server, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(ledger.NewMemoryStore(), ledger.Options{PublicBaseURL: "https://ops.test/ledger", Logger: zerolog.Nop()})
	s, err := New(Config{Runner: runner, Approver: approver, Ledger: l, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return s, l
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNew(t *testing.T) {
	t.Run("should require collaborators", func(t *testing.T) {
		_, err := New(Config{Runner: &fakeRunner{}})
		assert.Error(t, err)
	})
}

func TestHandleRunAgent(t *testing.T) {
	t.Run("should pass arguments through", func(t *testing.T) {
		runner := &fakeRunner{}
		s, _ := newTestServer(t, runner, &fakeApprover{})

		result, err := s.handleRunAgent(context.Background(), callRequest(ToolRunAgent, map[string]interface{}{
			"message":   "Draft the spring newsletter",
			"tenant_id": "acme",
			"track":     "social",
		}))
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, agent.RunRequest{Message: "Draft the spring newsletter", TenantID: "acme", Track: "social"}, runner.req)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &body))
		assert.Equal(t, "Drafted.", body["response"])
	})

	t.Run("should reject a missing message", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeRunner{}, &fakeApprover{})
		result, err := s.handleRunAgent(context.Background(), callRequest(ToolRunAgent, map[string]interface{}{}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("should surface run errors as tool errors", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeRunner{err: &agent.ModelError{Provider: "openai", Err: agent.ErrEmptyCompletion}}, &fakeApprover{})
		result, err := s.handleRunAgent(context.Background(), callRequest(ToolRunAgent, map[string]interface{}{"message": "x"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "openai")
	})
}

func TestHandleGetLedgerEntry(t *testing.T) {
	s, l := newTestServer(t, &fakeRunner{}, &fakeApprover{})
	entry, err := l.Open(context.Background(), ledger.OpenParams{Lane: ledger.LaneReview, TenantID: "acme", Title: "Launch"})
	require.NoError(t, err)

	t.Run("should return the entry with its url", func(t *testing.T) {
		result, err := s.handleGetLedgerEntry(context.Background(), callRequest(ToolGetLedgerEntry, map[string]interface{}{"id": entry.ID}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &body))
		assert.Equal(t, "in_progress", body["status"])
		assert.Equal(t, "https://ops.test/ledger/"+entry.ID, body["url"])
	})

	t.Run("should report unknown ids", func(t *testing.T) {
		result, err := s.handleGetLedgerEntry(context.Background(), callRequest(ToolGetLedgerEntry, map[string]interface{}{"id": "OUT-000000-XXXX"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

func TestHandleApproveEntry(t *testing.T) {
	t.Run("should return the approval result", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeRunner{}, &fakeApprover{})
		result, err := s.handleApproveEntry(context.Background(), callRequest(ToolApproveEntry, map[string]interface{}{"id": "CMP-261015-K7QZ"}))
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Contains(t, resultText(t, result), `"scheduled"`)
	})

	t.Run("should report entries not awaiting approval", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeRunner{}, &fakeApprover{err: agent.ErrNotAwaitingApproval})
		result, err := s.handleApproveEntry(context.Background(), callRequest(ToolApproveEntry, map[string]interface{}{"id": "CMP-261015-K7QZ"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}
