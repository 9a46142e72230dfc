package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/harun/quill/internal/observability"
	"github.com/harun/quill/internal/tracing"
	"github.com/harun/quill/pkg/ledger"
	"github.com/harun/quill/pkg/skills"
	"github.com/harun/quill/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultRunTimeout is the wall-clock budget of one run.
	DefaultRunTimeout = 60 * time.Second

	// DefaultMaxTokens is used when Config.MaxTokens is unset.
	DefaultMaxTokens = 4096

	tracerName = "quill/agent"

	maxTitleRunes   = 80
	maxSummaryRunes = 280
	notifyTimeout   = 10 * time.Second
	finalizeTimeout = 10 * time.Second
)

// Config holds orchestrator dependencies and model settings.
type Config struct {
	Provider LLMProvider
	Executor *toolexecutor.Executor
	Ledger   *ledger.Ledger
	Tenants  TenantResolver
	// Skills is optional. Nil means no active skills.
	Skills           *skills.Library
	BaseInstructions string

	Model         string
	Temperature   float64
	MaxTokens     int
	MaxToolRounds int
	RunTimeout    time.Duration

	Logger zerolog.Logger
}

// Orchestrator turns a request into a bounded sequence of model calls and
// tool invocations, tracked by a ledger entry.
type Orchestrator struct {
	provider      LLMProvider
	executor      *toolexecutor.Executor
	ledger        *ledger.Ledger
	tenants       TenantResolver
	skills        *skills.Library
	base          string
	model         string
	temperature   float64
	maxTokens     int
	maxToolRounds int
	runTimeout    time.Duration
	logger        zerolog.Logger
}

// NewOrchestrator validates cfg and builds an Orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Tenants == nil {
		return nil, fmt.Errorf("tenant resolver is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	rounds := cfg.MaxToolRounds
	if rounds <= 0 || rounds > MaxToolRounds {
		rounds = MaxToolRounds
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}

	return &Orchestrator{
		provider:      cfg.Provider,
		executor:      cfg.Executor,
		ledger:        cfg.Ledger,
		tenants:       cfg.Tenants,
		skills:        cfg.Skills,
		base:          cfg.BaseInstructions,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxTokens:     maxTokens,
		maxToolRounds: rounds,
		runTimeout:    timeout,
		logger:        cfg.Logger.With().Str("component", "agent").Logger(),
	}, nil
}

// run is the validated, tenant-resolved state shared by both lanes.
type run struct {
	message string
	track   skills.Track
	tenant  ClientConfig
	entry   ledger.Entry
	logger  zerolog.Logger
}

// Run executes the plan lane: one model call returning a JSON plan that is
// then executed locally with approval gating.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (resp *RunResponse, err error) {
	start := time.Now()
	outcome := "error"
	defer func() { observability.RecordAgentRun(string(ledger.LaneReview), outcome, time.Since(start)) }()

	r, ctx, cancel, err := o.begin(ctx, req, ledger.LaneReview)
	if err != nil {
		outcome = errorOutcome(err)
		return nil, err
	}
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.run",
		attribute.String("agent.lane", string(ledger.LaneReview)),
		attribute.String("agent.track", string(r.track)),
	)
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	prompt := skills.BuildSystemPrompt(o.base, o.activeSkills(r.track), r.track, r.tenant.BrandVoice, o.executor.ListTools()...)
	completion, err := o.callModel(ctx, prompt, []AgentMessage{{Role: "user", Content: r.message}}, nil)
	if err != nil {
		outcome = "model_error"
		r.logger.Error().Err(err).Msg("Model call failed")
		return nil, err
	}
	if strings.TrimSpace(completion.Content) == "" {
		outcome = "model_error"
		return nil, &ModelError{Provider: o.provider.Provider(), Err: ErrEmptyCompletion}
	}

	plan := ParsePlan(completion.Content)
	r.logger.Debug().
		Int("requirements", len(plan.Requirements)).
		Bool("has_output", plan.Output != nil).
		Strs("skills_used", plan.SkillsUsed).
		Msg("Plan parsed")

	if r.entry, err = o.recordDraft(ctx, r.entry, plan); err != nil {
		return nil, err
	}

	toolCtx := toolexecutor.ContextWithRunContext(ctx, runContext(r.tenant))
	var (
		activities []ToolActivity
		pending    []ledger.PendingAction
	)
	for _, requirement := range plan.Requirements {
		activity, withheld := o.handleRequirement(toolCtx, requirement)
		activities = append(activities, activity)
		if withheld != nil {
			pending = append(pending, *withheld)
		}
	}

	var artifact *ToolActivity
	if plan.Output != nil && strings.TrimSpace(plan.Output.Body) != "" {
		a := o.persistArtifact(toolCtx, r.entry, plan.Output, r.track)
		activities = append(activities, a)
		artifact = &activities[len(activities)-1]
	}

	status := ledger.StatusCompleted
	if len(pending) > 0 {
		status = ledger.StatusInReview
	}
	patch := ledger.Patch{Status: &status}
	linkedID, linkedURL := linkedOutput(artifact, activities)
	if linkedURL != "" {
		patch.LinkedOutputID = &linkedID
		patch.LinkedOutputURL = &linkedURL
	}
	if len(pending) > 0 {
		patch.Pending = &pending
	}

	finalizeCtx, cancelFinalize := finalizeContext(ctx)
	final, err := o.ledger.Update(finalizeCtx, r.entry.ID, patch)
	cancelFinalize()
	if err != nil {
		return nil, fmt.Errorf("failed to finalize ledger entry %s: %w", r.entry.ID, err)
	}

	o.notify(ctx, r.tenant, final)

	outcome = string(final.Status)
	r.logger.Info().
		Str("status", string(final.Status)).
		Int("tools", len(activities)).
		Int("pending", len(pending)).
		Dur("duration", time.Since(start)).
		Msg("Agent run finalized")

	return &RunResponse{
		Response: plan.Response,
		Tools:    nonNil(activities),
		Records:  o.records(final),
	}, nil
}

// begin validates the request, resolves the tenant and opens the ledger
// entry. The returned context carries the run budget and tracing values.
func (o *Orchestrator) begin(ctx context.Context, req RunRequest, lane ledger.Lane) (*run, context.Context, context.CancelFunc, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, nil, nil, fmt.Errorf("%w: message must not be empty", ErrInvalidRequest)
	}
	track, err := skills.ParseTrack(req.Track)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	tenant, err := o.tenants.Resolve(ctx, req.TenantID)
	if err != nil {
		return nil, nil, nil, &ConfigurationError{TenantID: req.TenantID, Err: err}
	}
	if strings.TrimSpace(tenant.ArchiveParentID) == "" {
		return nil, nil, nil, &ConfigurationError{TenantID: tenant.TenantID, Field: "archive_parent_id"}
	}

	ctx = tracing.NewRunContext(ctx, tenant.TenantID)
	ctx, cancel := context.WithTimeout(ctx, o.runTimeout)

	entry, err := o.ledger.Open(ctx, ledger.OpenParams{
		Lane:     lane,
		TenantID: tenant.TenantID,
		Title:    truncateRunes(firstLine(message), maxTitleRunes),
		Tags:     []string{string(track)},
	})
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("failed to open ledger entry: %w", err)
	}
	ctx = tracing.WithLedgerID(ctx, entry.ID)

	logger := tracing.LoggerFromContext(ctx, o.logger).With().Str("lane", string(lane)).Logger()
	logger.Info().Str("track", string(track)).Msg("Agent run started")

	return &run{
		message: message,
		track:   track,
		tenant:  tenant,
		entry:   entry,
		logger:  logger,
	}, ctx, cancel, nil
}

func (o *Orchestrator) activeSkills(track skills.Track) []skills.Skill {
	if o.skills == nil {
		return nil
	}
	return o.skills.Skills(track)
}

// callModel issues exactly one model call.
func (o *Orchestrator) callModel(ctx context.Context, system string, messages []AgentMessage, tools []ToolSpec) (*LLMResponse, error) {
	provider := o.provider.Provider()
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.llm_call",
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", o.model),
		attribute.Int("llm.messages", len(messages)),
	)
	defer span.End()

	start := time.Now()
	resp, err := o.provider.Call(ctx, LLMRequest{
		Model:        o.model,
		Messages:     messages,
		Tools:        tools,
		Temperature:  o.temperature,
		MaxTokens:    o.maxTokens,
		SystemPrompt: system,
	})
	observability.RecordLLMCall(provider, time.Since(start), err == nil && resp != nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &ModelError{Provider: provider, Err: err}
	}
	if resp == nil {
		return nil, &ModelError{Provider: provider, Err: ErrEmptyCompletion}
	}
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.input_tokens", resp.Usage.InputTokens),
			attribute.Int("llm.output_tokens", resp.Usage.OutputTokens),
		)
	}
	return resp, nil
}

// handleRequirement executes one plan requirement or withholds it. Gated
// requirements never reach the dispatcher, whether or not their adapter is
// configured.
func (o *Orchestrator) handleRequirement(ctx context.Context, req Requirement) (ToolActivity, *ledger.PendingAction) {
	if o.gated(req.Tool, req.ApprovalRequired) {
		return o.withhold(ctx, req.Tool, req.Input)
	}
	return activityFromResult(req.Tool, o.executor.Execute(ctx, req.Tool, req.Input)), nil
}

// gated reports whether a call to an allow-listed tool must wait for approval.
func (o *Orchestrator) gated(tool string, requested bool) bool {
	if !toolexecutor.IsAllowListed(tool) {
		return false
	}
	return requested || toolexecutor.AlwaysRequiresApproval(tool) || o.executor.RequiresApproval(tool)
}

func (o *Orchestrator) withhold(ctx context.Context, tool string, input map[string]interface{}) (ToolActivity, *ledger.PendingAction) {
	observability.RecordGatedRequirement(tool)
	logger := tracing.LoggerFromContext(ctx, o.logger)
	logger.Info().Str("tool", tool).Msg("Requirement withheld for approval")
	return ToolActivity{
			Name:    tool,
			OK:      true,
			Summary: awaitingApproval(tool),
		}, &ledger.PendingAction{
			Tool:  tool,
			Input: input,
		}
}

// persistArtifact writes the drafted output to the tenant archive.
func (o *Orchestrator) persistArtifact(ctx context.Context, entry ledger.Entry, out *Output, track skills.Track) ToolActivity {
	title := out.Title
	if title == "" {
		title = entry.Title
	}
	kind := out.Type
	if kind == "" {
		kind = string(track)
	}
	params := map[string]interface{}{
		"title":   title,
		"body":    out.Body,
		"summary": truncateRunes(firstLine(out.Body), maxSummaryRunes),
		"type":    kind,
	}
	return activityFromResult(toolexecutor.ToolCreateRecord, o.executor.Execute(ctx, toolexecutor.ToolCreateRecord, params))
}

// recordDraft stores what the plan drafted before any tool runs. A plan
// without an output is summarized from its response text.
func (o *Orchestrator) recordDraft(ctx context.Context, entry ledger.Entry, plan Plan) (ledger.Entry, error) {
	var patch ledger.Patch
	summarySource := plan.Response
	if out := plan.Output; out != nil {
		if out.Title != "" {
			title := truncateRunes(out.Title, maxTitleRunes)
			patch.Title = &title
		}
		if body := strings.TrimSpace(out.Body); body != "" {
			summarySource = body
		}
	}
	if text := strings.TrimSpace(summarySource); text != "" {
		summary := truncateRunes(firstLine(text), maxSummaryRunes)
		patch.Summary = &summary
	}
	if patch.IsZero() {
		return entry, nil
	}
	updated, err := o.ledger.Update(ctx, entry.ID, patch)
	if err != nil {
		return entry, fmt.Errorf("failed to record draft on ledger entry %s: %w", entry.ID, err)
	}
	return updated, nil
}

// notify posts a best-effort team notification. Failures are logged only.
func (o *Orchestrator) notify(ctx context.Context, tenant ClientConfig, entry ledger.Entry) {
	if tenant.NotificationChannel == "" || !o.executor.Has(toolexecutor.ToolPostMessage) {
		return
	}

	notifyCtx, cancel := context.WithTimeout(tracing.CloneContext(ctx), notifyTimeout)
	defer cancel()
	notifyCtx = toolexecutor.ContextWithRunContext(notifyCtx, runContext(tenant))

	result := o.executor.Execute(notifyCtx, toolexecutor.ToolPostMessage, map[string]interface{}{
		"text":    notificationText(entry, o.ledger.URL(entry.ID)),
		"channel": tenant.NotificationChannel,
	})
	if !result.Success {
		logger := tracing.LoggerFromContext(ctx, o.logger)
		logger.Warn().Str("error", result.Error).Msg("Notification failed")
	}
}

// finalizeContext detaches ctx from the run budget so the closing ledger
// write lands even when the run timed out.
func finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(tracing.CloneContext(ctx), finalizeTimeout)
}

func (o *Orchestrator) records(entry ledger.Entry) *Records {
	return &Records{
		OutputURL:    entry.LinkedOutputURL,
		LedgerID:     entry.ID,
		LedgerURL:    o.ledger.URL(entry.ID),
		LedgerStatus: entry.Status,
	}
}

func runContext(tenant ClientConfig) *toolexecutor.RunContext {
	return &toolexecutor.RunContext{
		TenantID:            tenant.TenantID,
		ArchiveParentID:     tenant.ArchiveParentID,
		NotificationChannel: tenant.NotificationChannel,
		SendSchedule:        tenant.SendSchedule,
		Timezone:            tenant.Timezone,
	}
}

func activityFromResult(name string, result toolexecutor.Result) ToolActivity {
	if !result.Success {
		return ToolActivity{Name: name, OK: false, Summary: result.Error}
	}
	summary := name + " succeeded"
	if id := result.String("id"); id != "" {
		summary = fmt.Sprintf("%s succeeded (%s)", name, id)
	}
	return ToolActivity{Name: name, OK: true, Summary: summary, Data: result.Data}
}

// linkedOutput picks the artifact's link, else the first link among the
// activities in order.
func linkedOutput(artifact *ToolActivity, activities []ToolActivity) (id, url string) {
	if artifact != nil && artifact.OK && artifact.URL() != "" {
		id, _ = artifact.Data["id"].(string)
		return id, artifact.URL()
	}
	for _, a := range activities {
		if a.OK && a.URL() != "" {
			id, _ = a.Data["id"].(string)
			return id, a.URL()
		}
	}
	return "", ""
}

func awaitingApproval(tool string) string {
	return tool + " awaiting approval"
}

func notificationText(entry ledger.Entry, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q is %s", entry.ID, entry.Title, strings.ReplaceAll(string(entry.Status), "_", " "))
	if entry.HasPending() {
		fmt.Fprintf(&b, " with %d action(s) awaiting approval", len(entry.Pending))
	}
	if link != "" {
		b.WriteString(": ")
		b.WriteString(link)
	} else if entry.LinkedOutputURL != "" {
		b.WriteString(": ")
		b.WriteString(entry.LinkedOutputURL)
	}
	return b.String()
}

func errorOutcome(err error) string {
	var cfgErr *ConfigurationError
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.As(err, &cfgErr):
		return "config_error"
	default:
		return "error"
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

func nonNil(a []ToolActivity) []ToolActivity {
	if a == nil {
		return []ToolActivity{}
	}
	return a
}
