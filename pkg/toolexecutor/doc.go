// Package toolexecutor registers and executes the structured tools the agent
// may call.
//
// Invariants:
// - Tool names are unique and, in production, limited to AllowList.
// - Parameters are schema-validated before execution.
// - Execute never panics or returns an error: every failure, including an
//   unknown tool or a timeout, is a Result with Success=false.
//
// Usage:
//
//	exec := toolexecutor.New(toolexecutor.Options{Allowed: toolexecutor.AllowList})
//	_ = toolexecutor.RegisterMarketingTools(exec, toolexecutor.Adapters{Archive: archive})
//	result := exec.Execute(ctx, toolexecutor.ToolCreateRecord, map[string]interface{}{"title": "Launch"})
package toolexecutor
