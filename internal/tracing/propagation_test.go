package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "trace-123")
	ctx = WithTenantID(ctx, "acme")
	ctx = WithLedgerID(ctx, "OUT-261015-K7QZ")

	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"trace_id":"trace-123"`, `"tenant_id":"acme"`, `"ledger_id":"OUT-261015-K7QZ"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
	if strings.Contains(out, "run_id") {
		t.Errorf("log output should not contain empty run_id: %s", out)
	}
}

func TestMergeContext(t *testing.T) {
	source := WithTraceID(context.Background(), "trace-src")
	source = WithTenantID(source, "acme")

	target := WithTraceID(context.Background(), "trace-target")
	merged := MergeContext(target, source)

	if GetTraceID(merged) != "trace-target" {
		t.Error("existing trace ID should not be overwritten")
	}
	if GetTenantID(merged) != "acme" {
		t.Error("tenant ID should be merged")
	}
}

func TestCloneContextDetachesDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	parent = WithLedgerID(parent, "OUT-261015-K7QZ")

	<-parent.Done()
	clone := CloneContext(parent)

	if clone.Err() != nil {
		t.Error("clone should not inherit cancellation")
	}
	if GetLedgerID(clone) != "OUT-261015-K7QZ" {
		t.Error("ledger ID not cloned")
	}
}
