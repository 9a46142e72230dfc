package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config represents the main Quill configuration
type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	AI       AIConfig       `json:"ai" mapstructure:"ai"`
	Agent    AgentConfig    `json:"agent" mapstructure:"agent"`
	Ledger   LedgerConfig   `json:"ledger" mapstructure:"ledger"`
	Adapters AdaptersConfig `json:"adapters" mapstructure:"adapters"`

	// FieldMap overrides logical archive field names (title, summary, ...).
	FieldMap map[string]string `json:"field_map" mapstructure:"field_map"`

	Tenants       []TenantConfig `json:"tenants" mapstructure:"tenants"`
	DefaultTenant string         `json:"default_tenant" mapstructure:"default_tenant"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host                   string   `json:"host" mapstructure:"host"`
	Port                   int      `json:"port" mapstructure:"port"`
	AllowedOrigins         []string `json:"allowed_origins" mapstructure:"allowed_origins"`
	RequestsPerMinute      int      `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrentRuns      int      `json:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
	ShutdownTimeoutSeconds int      `json:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url,omitempty" mapstructure:"base_url"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// AgentConfig holds model and run settings shared by every tenant.
type AgentConfig struct {
	Model                string  `json:"model" mapstructure:"model"`
	Temperature          float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens            int     `json:"max_tokens" mapstructure:"max_tokens"`
	MaxToolRounds        int     `json:"max_tool_rounds" mapstructure:"max_tool_rounds"`
	RunTimeoutSeconds    int     `json:"run_timeout_seconds" mapstructure:"run_timeout_seconds"`
	ToolTimeoutSeconds   int     `json:"tool_timeout_seconds" mapstructure:"tool_timeout_seconds"`
	BaseInstructionsFile string  `json:"base_instructions_file" mapstructure:"base_instructions_file"`
	SkillsDir            string  `json:"skills_dir" mapstructure:"skills_dir"`
	WatchSkills          bool    `json:"watch_skills" mapstructure:"watch_skills"`
}

// LedgerConfig selects the ledger store and its event stream.
type LedgerConfig struct {
	Backend       string            `json:"backend" mapstructure:"backend"` // memory, sqlite, postgres, redis
	DSN           string            `json:"dsn" mapstructure:"dsn"`
	Redis         RedisConfig       `json:"redis" mapstructure:"redis"`
	Prefixes      map[string]string `json:"prefixes" mapstructure:"prefixes"`
	PublicBaseURL string            `json:"public_base_url" mapstructure:"public_base_url"`
	Kafka         KafkaConfig       `json:"kafka" mapstructure:"kafka"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL       string `json:"url" mapstructure:"url"`
	KeyPrefix string `json:"key_prefix" mapstructure:"key_prefix"`
}

// KafkaConfig enables publishing ledger transitions.
type KafkaConfig struct {
	Enabled bool     `json:"enabled" mapstructure:"enabled"`
	Brokers []string `json:"brokers" mapstructure:"brokers"`
	Topic   string   `json:"topic" mapstructure:"topic"`
}

// AdaptersConfig holds credentials for the external systems tools act on.
// An adapter without credentials is not registered.
type AdaptersConfig struct {
	Archive    string           `json:"archive" mapstructure:"archive"` // notion, s3
	Notion     NotionConfig     `json:"notion" mapstructure:"notion"`
	S3         S3Config         `json:"s3" mapstructure:"s3"`
	Beehiiv    BeehiivConfig    `json:"beehiiv" mapstructure:"beehiiv"`
	Cloudinary CloudinaryConfig `json:"cloudinary" mapstructure:"cloudinary"`
	Slack      SlackConfig      `json:"slack" mapstructure:"slack"`
}

type NotionConfig struct {
	APIKey     string `json:"api_key" mapstructure:"api_key"`
	BaseURL    string `json:"base_url,omitempty" mapstructure:"base_url"`
	ParentType string `json:"parent_type,omitempty" mapstructure:"parent_type"`
}

type S3Config struct {
	Bucket          string `json:"bucket" mapstructure:"bucket"`
	Prefix          string `json:"prefix" mapstructure:"prefix"`
	Region          string `json:"region" mapstructure:"region"`
	Endpoint        string `json:"endpoint,omitempty" mapstructure:"endpoint"`
	AccessKeyID     string `json:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	UsePathStyle    bool   `json:"use_path_style" mapstructure:"use_path_style"`
	PublicBaseURL   string `json:"public_base_url,omitempty" mapstructure:"public_base_url"`
}

type BeehiivConfig struct {
	APIKey        string `json:"api_key" mapstructure:"api_key"`
	PublicationID string `json:"publication_id" mapstructure:"publication_id"`
	BaseURL       string `json:"base_url,omitempty" mapstructure:"base_url"`
}

type CloudinaryConfig struct {
	CloudName string `json:"cloud_name" mapstructure:"cloud_name"`
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	APISecret string `json:"api_secret" mapstructure:"api_secret"`
	BaseURL   string `json:"base_url,omitempty" mapstructure:"base_url"`
}

type SlackConfig struct {
	BotToken string `json:"bot_token" mapstructure:"bot_token"`
	BaseURL  string `json:"base_url,omitempty" mapstructure:"base_url"`
}

// TenantConfig is the per-client routing the agent acts with.
type TenantConfig struct {
	ID                  string `json:"id" mapstructure:"id"`
	ArchiveParentID     string `json:"archive_parent_id" mapstructure:"archive_parent_id"`
	NotificationChannel string `json:"notification_channel" mapstructure:"notification_channel"`
	BrandVoice          string `json:"brand_voice" mapstructure:"brand_voice"`
	SendSchedule        string `json:"send_schedule" mapstructure:"send_schedule"`
	Timezone            string `json:"timezone" mapstructure:"timezone"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	AuditFile  string `json:"audit_file" mapstructure:"audit_file"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size"`       // MB
	MaxAge     int    `json:"max_age" mapstructure:"max_age"`         // days
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"` // rolled files per log, audit log included
	Compress   bool   `json:"compress" mapstructure:"compress"`
	Redaction  bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

var (
	validProviders      = []string{"anthropic", "openai"}
	validLedgerBackends = []string{"memory", "sqlite", "postgres", "redis"}
	validArchives       = []string{"notion", "s3"}
)

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   8080,
			AllowedOrigins:         []string{"*"},
			ShutdownTimeoutSeconds: 30,
		},
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Agent: AgentConfig{
			Model:              "claude-sonnet-4-5",
			Temperature:        0.4,
			MaxTokens:          4096,
			MaxToolRounds:      8,
			RunTimeoutSeconds:  60,
			ToolTimeoutSeconds: 15,
		},
		Ledger: LedgerConfig{
			Backend: "memory",
			Prefixes: map[string]string{
				"campaign": "CMP",
				"review":   "OUT",
			},
			Kafka: KafkaConfig{
				Topic: "quill.ledger",
			},
		},
		Adapters: AdaptersConfig{
			Archive: "notion",
			Notion: NotionConfig{
				ParentType: "database_id",
			},
		},
		FieldMap: map[string]string{},
		Tenants:  []TenantConfig{},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:     7,
			MaxBackups: 10,
			Compress:   true,
			Redaction:  true,
		},
		Tracing: TracingConfig{
			ServiceName: "quill",
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Tenant returns the tenant with id, or the default tenant when id is empty.
func (c *Config) Tenant(id string) (TenantConfig, bool) {
	if id == "" {
		id = c.DefaultTenant
	}
	for _, t := range c.Tenants {
		if t.ID == id {
			return t, true
		}
	}
	return TenantConfig{}, false
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Require at least one AI profile
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.Provider == "" {
			return fmt.Errorf("AI profile %s: provider is required", profile.ID)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
		if !contains(validProviders, profile.Provider) {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: %s)", profile.ID, profile.Provider, strings.Join(validProviders, ", "))
		}
	}

	if c.Agent.Model == "" {
		return fmt.Errorf("agent model is required")
	}

	if !contains(validLedgerBackends, c.Ledger.Backend) {
		return fmt.Errorf("invalid ledger backend %q (must be: %s)", c.Ledger.Backend, strings.Join(validLedgerBackends, ", "))
	}
	switch c.Ledger.Backend {
	case "sqlite", "postgres":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger dsn is required for the %s backend", c.Ledger.Backend)
		}
	case "redis":
		if c.Ledger.Redis.URL == "" {
			return fmt.Errorf("ledger redis url is required for the redis backend")
		}
	}
	if c.Ledger.Kafka.Enabled && (len(c.Ledger.Kafka.Brokers) == 0 || c.Ledger.Kafka.Topic == "") {
		return fmt.Errorf("ledger kafka requires brokers and a topic when enabled")
	}

	if c.Adapters.Archive != "" && !contains(validArchives, c.Adapters.Archive) {
		return fmt.Errorf("invalid archive adapter %q (must be: %s)", c.Adapters.Archive, strings.Join(validArchives, ", "))
	}

	seen := make(map[string]bool, len(c.Tenants))
	for i, t := range c.Tenants {
		if t.ID == "" {
			return fmt.Errorf("tenant %d: id is required", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("tenant %s: duplicate id", t.ID)
		}
		seen[t.ID] = true
	}
	if c.DefaultTenant != "" && !seen[c.DefaultTenant] {
		return fmt.Errorf("default tenant %s is not configured", c.DefaultTenant)
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
