package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for the agent run ID
	RunIDKey ContextKey = "run_id"
	// TenantIDKey is the context key for the tenant the run acts for
	TenantIDKey ContextKey = "tenant_id"
	// LedgerIDKey is the context key for the ledger entry the run tracks
	LedgerIDKey ContextKey = "ledger_id"
	// RequestIDKey is the context key for the inbound request ID
	RequestIDKey ContextKey = "request_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	RunID     string
	TenantID  string
	LedgerID  string
	RequestID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

func withValue(ctx context.Context, key ContextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func getValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withValue(ctx, TraceIDKey, traceID)
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return withValue(ctx, RunIDKey, runID)
}

// WithTenantID adds a tenant ID to the context
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return withValue(ctx, TenantIDKey, tenantID)
}

// WithLedgerID adds a ledger entry ID to the context
func WithLedgerID(ctx context.Context, ledgerID string) context.Context {
	return withValue(ctx, LedgerIDKey, ledgerID)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, RequestIDKey, requestID)
}

func GetTraceID(ctx context.Context) string   { return getValue(ctx, TraceIDKey) }
func GetRunID(ctx context.Context) string     { return getValue(ctx, RunIDKey) }
func GetTenantID(ctx context.Context) string  { return getValue(ctx, TenantIDKey) }
func GetLedgerID(ctx context.Context) string  { return getValue(ctx, LedgerIDKey) }
func GetRequestID(ctx context.Context) string { return getValue(ctx, RequestIDKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		RunID:     GetRunID(ctx),
		TenantID:  GetTenantID(ctx),
		LedgerID:  GetLedgerID(ctx),
		RequestID: GetRequestID(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.RunID != "" {
		ctx = WithRunID(ctx, tc.RunID)
	}
	if tc.TenantID != "" {
		ctx = WithTenantID(ctx, tc.TenantID)
	}
	if tc.LedgerID != "" {
		ctx = WithLedgerID(ctx, tc.LedgerID)
	}
	if tc.RequestID != "" {
		ctx = WithRequestID(ctx, tc.RequestID)
	}
	return ctx
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// NewRunContext starts a run: it keeps an existing trace ID (or creates one)
// and always assigns a fresh run ID.
func NewRunContext(ctx context.Context, tenantID string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithRunID(ctx, NewRunID())
	if tenantID != "" {
		ctx = WithTenantID(ctx, tenantID)
	}
	return ctx
}
