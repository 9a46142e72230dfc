// Package agent orchestrates bounded LLM runs over the tool dispatcher and
// the ledger.
//
// Invariants:
// - A plan-lane run makes exactly one model call; a tool-loop run makes at most MaxToolRounds.
// - Requirements run sequentially in emitted order; gated ones are stored as pending, never executed.
// - Only ConfigurationError and ModelError fail a run. Tool failures are ToolActivity values.
// - Linked output, pending actions and terminal status are written in one ledger update per run.
// - Only the Approver releases pending actions, at most once per entry.
//
// Usage:
//
//	orch, _ := agent.NewOrchestrator(agent.Config{
//		Provider: provider,
//		Executor: exec,
//		Ledger:   ledger,
//		Tenants:  agent.NewStaticTenants(tenants, "acme"),
//		Model:    "claude-sonnet-4-5",
//	})
//	resp, err := orch.Run(ctx, agent.RunRequest{Message: "Draft a launch newsletter", Track: "newsletter"})
package agent
