package agent

import (
	"github.com/harun/quill/pkg/ledger"
)

// RunRequest is the inbound runAgent operation.
type RunRequest struct {
	Message  string `json:"message"`
	TenantID string `json:"tenantId,omitempty"`
	Track    string `json:"track,omitempty"`
}

// RunResponse is returned for every run that reached the model, including
// runs with failed tool calls.
type RunResponse struct {
	Response string         `json:"response"`
	Tools    []ToolActivity `json:"tools"`
	Records  *Records       `json:"records,omitempty"`
}

// Records links the run to its durable state.
type Records struct {
	OutputURL    string        `json:"outputUrl,omitempty"`
	LedgerID     string        `json:"ledgerId,omitempty"`
	LedgerURL    string        `json:"ledgerUrl,omitempty"`
	LedgerStatus ledger.Status `json:"ledgerStatus,omitempty"`
}

// ToolActivity is the outcome of one attempted or withheld tool call.
type ToolActivity struct {
	Name    string                 `json:"name"`
	OK      bool                   `json:"ok"`
	Summary string                 `json:"summary"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// URL returns the activity's url data field, if any.
func (a ToolActivity) URL() string {
	if u, ok := a.Data["url"].(string); ok {
		return u
	}
	return ""
}

// Requirement is a side effect requested by the model in a plan.
type Requirement struct {
	Tool             string                 `json:"tool"`
	Input            map[string]interface{} `json:"input"`
	ApprovalRequired bool                   `json:"approvalRequired"`
}

// ClientConfig is the per-tenant routing data for a run.
type ClientConfig struct {
	TenantID            string `json:"tenant_id" mapstructure:"tenant_id"`
	ArchiveParentID     string `json:"archive_parent_id" mapstructure:"archive_parent_id"`
	NotificationChannel string `json:"notification_channel,omitempty" mapstructure:"notification_channel"`
	BrandVoice          string `json:"brand_voice,omitempty" mapstructure:"brand_voice"`
	SendSchedule        string `json:"send_schedule,omitempty" mapstructure:"send_schedule"`
	Timezone            string `json:"timezone,omitempty" mapstructure:"timezone"`
}

// ToolCall represents a tool invocation
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AuthProfile represents authentication credentials for LLM providers
type AuthProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // "anthropic", "openai"
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url,omitempty" mapstructure:"base_url"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// AgentMessage represents a message in the conversation
type AgentMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}
