package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec

	llmCallTotal    *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	gatedRequirementsTotal *prometheus.CounterVec
	approvalsTotal         *prometheus.CounterVec

	ledgerTransitionsTotal *prometheus.CounterVec
	ledgerOpenedTotal      *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quill_agent_run_total",
					Help: "Total agent runs by lane and outcome.",
				},
				[]string{"lane", "outcome"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "quill_agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			llmCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quill_llm_call_total",
					Help: "Total LLM calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			llmCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "quill_llm_call_duration_seconds",
					Help:    "LLM call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quill_tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "quill_tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quill_tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			gatedRequirementsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quill_gated_requirements_total",
					Help: "Tool requirements withheld for approval by tool.",
				},
				[]string{"tool"},
			),
			approvalsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quill_approvals_total",
					Help: "Approval actions by lane and outcome.",
				},
				[]string{"lane", "outcome"},
			),
			ledgerTransitionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quill_ledger_transitions_total",
					Help: "Ledger status transitions by lane and target status.",
				},
				[]string{"lane", "status"},
			),
			ledgerOpenedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quill_ledger_opened_total",
					Help: "Ledger entries opened by lane.",
				},
				[]string{"lane"},
			),
		}

		prometheus.MustRegister(
			m.agentRunTotal,
			m.agentRunDuration,
			m.llmCallTotal,
			m.llmCallDuration,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.gatedRequirementsTotal,
			m.approvalsTotal,
			m.ledgerTransitionsTotal,
			m.ledgerOpenedTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordAgentRun(lane, outcome string, duration time.Duration) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(lane, outcome).Inc()
	m.agentRunDuration.WithLabelValues(lane).Observe(duration.Seconds())
}

func RecordLLMCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.llmCallTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.llmCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordGatedRequirement(tool string) {
	getMetrics().gatedRequirementsTotal.WithLabelValues(tool).Inc()
}

func RecordApproval(lane, outcome string) {
	getMetrics().approvalsTotal.WithLabelValues(lane, outcome).Inc()
}

func RecordLedgerTransition(lane, status string) {
	getMetrics().ledgerTransitionsTotal.WithLabelValues(lane, status).Inc()
}

func RecordLedgerOpened(lane string) {
	getMetrics().ledgerOpenedTotal.WithLabelValues(lane).Inc()
}
