package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithTenantID(ctx, "acme")
	ctx = WithLedgerID(ctx, "OUT-261015-K7QZ")
	ctx = WithRequestID(ctx, "req-1")

	tc := FromContext(ctx)
	if tc.TraceID != "trace-1" || tc.RunID != "run-1" || tc.TenantID != "acme" ||
		tc.LedgerID != "OUT-261015-K7QZ" || tc.RequestID != "req-1" {
		t.Errorf("unexpected trace context: %+v", tc)
	}
}

func TestGetFromEmptyContext(t *testing.T) {
	ctx := context.Background()

	if GetTraceID(ctx) != "" {
		t.Error("expected empty trace ID")
	}
	if GetTenantID(ctx) != "" {
		t.Error("expected empty tenant ID")
	}
	if GetLedgerID(ctx) != "" {
		t.Error("expected empty ledger ID")
	}
}

func TestNewRunContext(t *testing.T) {
	t.Run("keeps existing trace", func(t *testing.T) {
		parent := WithTraceID(context.Background(), "trace-parent")
		parent = WithRunID(parent, "run-old")

		ctx := NewRunContext(parent, "acme")
		if GetTraceID(ctx) != "trace-parent" {
			t.Error("trace ID should be kept")
		}
		if GetRunID(ctx) == "" || GetRunID(ctx) == "run-old" {
			t.Error("run ID should be fresh")
		}
		if GetTenantID(ctx) != "acme" {
			t.Error("tenant ID not set")
		}
	})

	t.Run("creates trace when missing", func(t *testing.T) {
		ctx := NewRunContext(context.Background(), "")
		if GetTraceID(ctx) == "" {
			t.Error("trace ID not generated")
		}
		if GetTenantID(ctx) != "" {
			t.Error("tenant ID should stay empty")
		}
	})
}

func TestNewContextRoundTrip(t *testing.T) {
	tc := &TraceContext{TraceID: "t", RunID: "r", TenantID: "acme", LedgerID: "CMP-261015-AAAA"}
	ctx := NewContext(context.Background(), tc)

	got := FromContext(ctx)
	if *got != *tc {
		t.Errorf("expected %+v, got %+v", tc, got)
	}
}
