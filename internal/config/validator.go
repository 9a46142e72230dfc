package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// MaxToolRounds is the hard ceiling on model round trips per run.
const MaxToolRounds = 8

var sendScheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateMaxToolRounds rejects round limits above the hard ceiling.
func (v *Validator) ValidateMaxToolRounds(rounds int) error {
	if rounds < 1 || rounds > MaxToolRounds {
		return fmt.Errorf("max_tool_rounds must be between 1 and %d, got %d", MaxToolRounds, rounds)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if contains(validLevels, level) {
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSendSchedule checks a five-field cron expression.
func (v *Validator) ValidateSendSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := sendScheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid send schedule %q: %w", expr, err)
	}
	return nil
}

// ValidateTimezone checks an IANA zone name.
func (v *Validator) ValidateTimezone(tz string) error {
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return nil
}

// ValidateBaseURL checks an absolute http(s) URL.
func (v *Validator) ValidateBaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid base url %q", raw)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	for i, profile := range cfg.AI.Profiles {
		if profile.Provider != "" {
			if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
				errors = append(errors, fmt.Errorf("AI profile %d (%s): %w", i, profile.ID, err))
			}
		}
		if err := v.ValidateBaseURL(profile.BaseURL); err != nil {
			errors = append(errors, fmt.Errorf("AI profile %d (%s): %w", i, profile.ID, err))
		}
	}

	if cfg.Agent.Temperature != 0 {
		if err := v.ValidateTemperature(cfg.Agent.Temperature); err != nil {
			errors = append(errors, fmt.Errorf("agent: %w", err))
		}
	}
	if cfg.Agent.MaxTokens != 0 {
		if err := v.ValidateMaxTokens(cfg.Agent.MaxTokens); err != nil {
			errors = append(errors, fmt.Errorf("agent: %w", err))
		}
	}
	if err := v.ValidateMaxToolRounds(cfg.Agent.MaxToolRounds); err != nil {
		errors = append(errors, fmt.Errorf("agent: %w", err))
	}
	if cfg.Agent.RunTimeoutSeconds < 0 || cfg.Agent.ToolTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("agent: timeouts must be >= 0"))
	}

	if err := v.ValidateBaseURL(cfg.Ledger.PublicBaseURL); err != nil {
		errors = append(errors, fmt.Errorf("ledger: %w", err))
	}
	for lane, prefix := range cfg.Ledger.Prefixes {
		if lane != "campaign" && lane != "review" {
			errors = append(errors, fmt.Errorf("ledger: unknown lane %q in prefixes", lane))
		}
		if strings.TrimSpace(prefix) == "" {
			errors = append(errors, fmt.Errorf("ledger: prefix for lane %q is empty", lane))
		}
	}

	for _, t := range cfg.Tenants {
		if err := v.ValidateSendSchedule(t.SendSchedule); err != nil {
			errors = append(errors, fmt.Errorf("tenant %s: %w", t.ID, err))
		}
		if err := v.ValidateTimezone(t.Timezone); err != nil {
			errors = append(errors, fmt.Errorf("tenant %s: %w", t.ID, err))
		}
	}

	if cfg.Server.RequestsPerMinute < 0 || cfg.Server.MaxConcurrentRuns < 0 {
		errors = append(errors, fmt.Errorf("server: rate limits must be >= 0"))
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errors = append(errors, fmt.Errorf("tracing sample_ratio must be between 0 and 1"))
	}

	return errors
}
