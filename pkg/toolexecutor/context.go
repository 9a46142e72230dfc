package toolexecutor

import "context"

// RunContext carries the tenant routing data tool handlers need. It is read
// only for the duration of a run.
type RunContext struct {
	TenantID            string
	ArchiveParentID     string
	NotificationChannel string
	SendSchedule        string
	Timezone            string
}

type runContextKey struct{}

// ContextWithRunContext attaches the run context to a context.Context for tool handlers.
func ContextWithRunContext(ctx context.Context, rc *RunContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if rc == nil {
		return ctx
	}
	return context.WithValue(ctx, runContextKey{}, rc)
}

// RunContextFromContext extracts the run context from a context.Context.
func RunContextFromContext(ctx context.Context) *RunContext {
	if ctx == nil {
		return nil
	}
	if rc, ok := ctx.Value(runContextKey{}).(*RunContext); ok {
		return rc
	}
	return nil
}
