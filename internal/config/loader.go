package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. QUILL_LOGGING_LEVEL.
	EnvPrefix = "QUILL"
	// ConfigPathEnv overrides the config file location.
	ConfigPathEnv = "QUILL_CONFIG"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to resolve config path")
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindDefaults(v, cfg)

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set data directory if not specified
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(configPath)
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "quill.log")
	}
	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.jsonl")
	}

	return cfg, nil
}

// bindDefaults registers every scalar key so AutomaticEnv can override it.
func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("server.requests_per_minute", cfg.Server.RequestsPerMinute)
	v.SetDefault("server.max_concurrent_runs", cfg.Server.MaxConcurrentRuns)
	v.SetDefault("server.shutdown_timeout_seconds", cfg.Server.ShutdownTimeoutSeconds)

	v.SetDefault("agent.model", cfg.Agent.Model)
	v.SetDefault("agent.temperature", cfg.Agent.Temperature)
	v.SetDefault("agent.max_tokens", cfg.Agent.MaxTokens)
	v.SetDefault("agent.max_tool_rounds", cfg.Agent.MaxToolRounds)
	v.SetDefault("agent.run_timeout_seconds", cfg.Agent.RunTimeoutSeconds)
	v.SetDefault("agent.tool_timeout_seconds", cfg.Agent.ToolTimeoutSeconds)
	v.SetDefault("agent.base_instructions_file", "")
	v.SetDefault("agent.skills_dir", "")
	v.SetDefault("agent.watch_skills", false)

	v.SetDefault("ledger.backend", cfg.Ledger.Backend)
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("ledger.redis.url", "")
	v.SetDefault("ledger.public_base_url", "")
	v.SetDefault("ledger.kafka.enabled", false)
	v.SetDefault("ledger.kafka.topic", cfg.Ledger.Kafka.Topic)

	v.SetDefault("adapters.archive", cfg.Adapters.Archive)
	v.SetDefault("adapters.notion.api_key", "")
	v.SetDefault("adapters.s3.bucket", "")
	v.SetDefault("adapters.s3.region", "")
	v.SetDefault("adapters.beehiiv.api_key", "")
	v.SetDefault("adapters.beehiiv.publication_id", "")
	v.SetDefault("adapters.cloudinary.cloud_name", "")
	v.SetDefault("adapters.cloudinary.api_key", "")
	v.SetDefault("adapters.cloudinary.api_secret", "")
	v.SetDefault("adapters.slack.bot_token", "")

	v.SetDefault("default_tenant", "")
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", cfg.Tracing.SampleRatio)
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("server", cfg.Server)
	v.Set("ai", cfg.AI)
	v.Set("agent", cfg.Agent)
	v.Set("ledger", cfg.Ledger)
	v.Set("adapters", cfg.Adapters)
	v.Set("field_map", cfg.FieldMap)
	v.Set("tenants", cfg.Tenants)
	v.Set("default_tenant", cfg.DefaultTenant)
	v.Set("logging", cfg.Logging)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		// If file doesn't exist, create it
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path: the explicit path, then
// QUILL_CONFIG, then ~/.quill/quill.json.
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".quill", "quill.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
