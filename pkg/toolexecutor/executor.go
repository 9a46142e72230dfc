package toolexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/harun/quill/internal/observability"
	"github.com/harun/quill/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultTimeout bounds a single tool call.
	DefaultTimeout = 15 * time.Second

	// UnknownToolError is the error text for names outside the registry.
	UnknownToolError = "Unknown tool"

	tracerName = "quill/toolexecutor"
)

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
	// Items is the element type for array parameters.
	Items string `json:"items,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
	// RequiresApproval marks customer-facing side effects. The executor runs
	// them when asked; callers decide whether they may ask.
	RequiresApproval bool `json:"requires_approval,omitempty"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)

// Result is the uniform outcome of a tool call. It marshals to
// {"success":true, ...data} or {"success":false, "error":"..."}.
type Result struct {
	Success bool
	Data    map[string]interface{}
	Error   string
}

// MarshalJSON flattens Data next to the success flag.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Data)+2)
	if r.Success {
		for k, v := range r.Data {
			out[k] = v
		}
	} else {
		out["error"] = r.Error
	}
	out["success"] = r.Success
	return json.Marshal(out)
}

// String returns the value of a string data field, or "".
func (r Result) String(key string) string {
	if v, ok := r.Data[key].(string); ok {
		return v
	}
	return ""
}

// Options configures an Executor.
type Options struct {
	Timeout time.Duration
	// Allowed restricts registration to these names. Nil allows any name.
	Allowed []string
	Logger  *zerolog.Logger
}

// Executor validates and runs registered tools.
type Executor struct {
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
	allowed map[string]bool
	timeout time.Duration
	logger  zerolog.Logger
	mu      sync.RWMutex
}

// New creates a new Executor
func New(opts Options) *Executor {
	observability.EnsureRegistered()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	var allowed map[string]bool
	if opts.Allowed != nil {
		allowed = make(map[string]bool, len(opts.Allowed))
		for _, name := range opts.Allowed {
			allowed[name] = true
		}
	}

	return &Executor{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
		allowed: allowed,
		timeout: timeout,
		logger:  logger.With().Str("component", "toolexecutor").Logger(),
	}
}

// RegisterTool registers a new tool
func (e *Executor) RegisterTool(def ToolDefinition) error {
	if err := validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}
	if e.allowed != nil && !e.allowed[def.Name] {
		return fmt.Errorf("tool %q is not in the allow-list", def.Name)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema()))
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tools[def.Name]; exists {
		return fmt.Errorf("tool %q is already registered", def.Name)
	}
	e.tools[def.Name] = &def
	e.schemas[def.Name] = schema

	e.logger.Debug().Str("tool", def.Name).Bool("requires_approval", def.RequiresApproval).Msg("Tool registered")
	return nil
}

// GetTool returns a tool definition by name
func (e *Executor) GetTool(name string) *ToolDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tools[name]
}

// Has reports whether name is registered.
func (e *Executor) Has(name string) bool {
	return e.GetTool(name) != nil
}

// RequiresApproval reports whether the named tool is flagged as a
// customer-facing side effect. Unknown tools report false.
func (e *Executor) RequiresApproval(name string) bool {
	def := e.GetTool(name)
	return def != nil && def.RequiresApproval
}

// ListTools returns the registered tool names sorted.
func (e *Executor) ListTools() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns copies of the registered definitions sorted by name.
func (e *Executor) Definitions() []ToolDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(e.tools))
	for _, def := range e.tools {
		defs = append(defs, *def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs a tool. It never panics and never returns an error: unknown
// tools, invalid input, handler errors, panics and timeouts all come back as
// a failed Result.
func (e *Executor) Execute(ctx context.Context, toolName string, params map[string]interface{}) Result {
	startTime := time.Now()
	if params == nil {
		params = map[string]interface{}{}
	}

	e.mu.RLock()
	tool := e.tools[toolName]
	schema := e.schemas[toolName]
	e.mu.RUnlock()

	logger := tracing.LoggerFromContext(ctx, e.logger).With().Str("tool", toolName).Logger()

	if tool == nil {
		logger.Warn().Msg("Tool not found")
		observability.RecordToolExecution(toolName, time.Since(startTime), false)
		return Result{Success: false, Error: UnknownToolError}
	}

	if err := validateParameters(schema, params); err != nil {
		logger.Warn().Err(err).Msg("Parameter validation failed")
		observability.RecordToolExecution(toolName, time.Since(startTime), false)
		return Result{Success: false, Error: fmt.Sprintf("parameter validation failed: %v", err)}
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "tool.execute",
		attribute.String("tool.name", toolName),
	)
	defer span.End()

	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		data map[string]interface{}
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Tool panicked")
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		data, err := tool.Handler(timeoutCtx, params)
		done <- outcome{data: data, err: err}
	}()

	var result Result
	select {
	case out := <-done:
		if out.err != nil {
			result = Result{Success: false, Error: out.err.Error()}
		} else {
			result = Result{Success: true, Data: out.data}
		}
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			result = Result{Success: false, Error: fmt.Sprintf("tool execution cancelled: %v", ctx.Err())}
		} else {
			result = Result{Success: false, Error: fmt.Sprintf("tool execution timeout after %v", e.timeout)}
		}
	}

	duration := time.Since(startTime)
	observability.RecordToolExecution(toolName, duration, result.Success)
	span.SetAttributes(attribute.Bool("tool.success", result.Success))

	if result.Success {
		logger.Debug().Dur("duration", duration).Msg("Tool execution completed")
		observability.RecordToolAudit(ctx, toolName, tracing.GetTenantID(ctx), "success", nil)
	} else {
		span.SetStatus(codes.Error, result.Error)
		logger.Warn().Dur("duration", duration).Str("error", result.Error).Msg("Tool execution failed")
		observability.RecordToolAudit(ctx, toolName, tracing.GetTenantID(ctx), "failure", map[string]interface{}{
			"error": result.Error,
		})
	}

	return result
}

// InputSchema returns the JSON Schema object for the tool's parameters.
func (d ToolDefinition) InputSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(d.Parameters))
	required := []string{}

	for _, param := range d.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		if len(param.Enum) > 0 {
			paramSchema["enum"] = param.Enum
		}
		if param.Type == "array" {
			items := param.Items
			if items == "" {
				items = "string"
			}
			paramSchema["items"] = map[string]interface{}{"type": items}
		}

		properties[param.Name] = paramSchema
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// RequiredParameters returns the names of required parameters in order.
func (d ToolDefinition) RequiredParameters() []string {
	var names []string
	for _, p := range d.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

var validTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}

// validateToolDefinition validates a tool definition
func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
		if param.Items != "" && !validTypes[param.Items] {
			return fmt.Errorf("invalid item type %s for %s", param.Items, param.Name)
		}
	}

	return nil
}

// validateParameters validates parameters against a JSON Schema
func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errs := []string{}
		for _, err := range result.Errors() {
			errs = append(errs, err.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}
