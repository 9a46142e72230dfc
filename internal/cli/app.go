package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/harun/quill/internal/config"
	"github.com/harun/quill/internal/logger"
	"github.com/harun/quill/internal/observability"
	"github.com/harun/quill/internal/tracing"
	"github.com/harun/quill/pkg/adapters"
	"github.com/harun/quill/pkg/agent"
	"github.com/harun/quill/pkg/ledger"
	"github.com/harun/quill/pkg/skills"
	"github.com/harun/quill/pkg/toolexecutor"
	"github.com/rs/zerolog"
)

const defaultBaseInstructions = `You are the marketing operations agent for a content team.
You turn requests into drafts and the platform actions needed to ship them.
Keep drafts on brand, concise and ready for review.`

// App holds the wired runtime shared by every command.
type App struct {
	Config       *config.Config
	Logger       *logger.Logger
	Ledger       *ledger.Ledger
	Executor     *toolexecutor.Executor
	Skills       *skills.Library
	Orchestrator *agent.Orchestrator
	Approver     *agent.Approver
	Profile      agent.AuthProfile

	tracingEnabled bool
}

// appOptions tweaks construction per command.
type appOptions struct {
	// stderr sends console logs to stderr so stdout stays clean.
	stderr bool
	// offline skips provider selection for commands that never call a model.
	offline bool
}

// loadConfig reads the config file and applies the --log-level flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newApp wires the configured stores, adapters and agent.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*App, error) {
	if !opts.offline {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logCfg := logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Console:    true,
		Stderr:     opts.stderr,
		Pretty:     !opts.stderr,
		Redaction:  cfg.Logging.Redaction,
		MaxSize:    cfg.Logging.MaxSize,
		MaxAge:     cfg.Logging.MaxAge,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := log.GetZerolog()

	for _, problem := range config.NewValidator().ValidateConfig(cfg) {
		zl.Warn().Err(problem).Msg("Configuration warning")
	}

	observability.EnsureRegistered()
	if err := observability.InitAuditLogger(cfg.Logging.AuditFile, logCfg.Rotation()); err != nil {
		zl.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
	}

	app := &App{Config: cfg, Logger: log}
	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio); err != nil {
			zl.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			app.tracingEnabled = true
		}
	}

	app.Ledger, err = buildLedger(ctx, cfg, zl)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Executor = toolexecutor.New(toolexecutor.Options{
		Timeout: seconds(cfg.Agent.ToolTimeoutSeconds, 15*time.Second),
		Allowed: toolexecutor.AllowList,
		Logger:  &zl,
	})
	toolAdapters, err := buildAdapters(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	if err := toolexecutor.RegisterMarketingTools(app.Executor, toolAdapters); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	zl.Info().Strs("tools", app.Executor.ListTools()).Msg("Tools registered")

	tenants := buildTenants(cfg)

	app.Approver, err = agent.NewApprover(agent.ApproverConfig{
		Executor: app.Executor,
		Ledger:   app.Ledger,
		Tenants:  tenants,
		Logger:   zl,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	if opts.offline {
		return app, nil
	}

	if cfg.Agent.SkillsDir != "" {
		app.Skills, err = skills.NewLibrary(cfg.Agent.SkillsDir, zl)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to load skills: %w", err)
		}
		zl.Info().Int("skills", app.Skills.Len()).Str("dir", cfg.Agent.SkillsDir).Msg("Skills loaded")
	}

	base, err := baseInstructions(cfg.Agent.BaseInstructionsFile)
	if err != nil {
		app.Close()
		return nil, err
	}

	provider, profile, err := agent.SelectProvider(authProfiles(cfg), &agent.ProviderFactory{})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Profile = profile
	zl.Info().Str("profile", profile.ID).Str("provider", profile.Provider).Msg("AI provider selected")

	app.Orchestrator, err = agent.NewOrchestrator(agent.Config{
		Provider:         provider,
		Executor:         app.Executor,
		Ledger:           app.Ledger,
		Tenants:          tenants,
		Skills:           app.Skills,
		BaseInstructions: base,
		Model:            cfg.Agent.Model,
		Temperature:      cfg.Agent.Temperature,
		MaxTokens:        cfg.Agent.MaxTokens,
		MaxToolRounds:    cfg.Agent.MaxToolRounds,
		RunTimeout:       seconds(cfg.Agent.RunTimeoutSeconds, agent.DefaultRunTimeout),
		Logger:           zl,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

// Close releases the ledger, tracing and log files.
func (a *App) Close() error {
	var errs []error
	if a.Ledger != nil {
		if err := a.Ledger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.tracingEnabled {
		if err := tracing.ShutdownOpenTelemetry(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if audit := observability.GetAuditLogger(); audit != nil {
		_ = audit.Close()
	}
	if a.Logger != nil {
		if err := a.Logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildLedger(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*ledger.Ledger, error) {
	var (
		store ledger.Store
		err   error
	)
	switch cfg.Ledger.Backend {
	case "", "memory":
		store = ledger.NewMemoryStore()
	case "sqlite":
		store, err = ledger.OpenSQLStore(ctx, ledger.DialectSQLite, cfg.Ledger.DSN)
	case "postgres":
		store, err = ledger.OpenSQLStore(ctx, ledger.DialectPostgres, cfg.Ledger.DSN)
	case "redis":
		store, err = ledger.OpenRedisStore(ctx, cfg.Ledger.Redis.URL, cfg.Ledger.Redis.KeyPrefix)
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", cfg.Ledger.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store: %w", err)
	}
	log.Info().Str("backend", cfg.Ledger.Backend).Msg("Ledger store opened")

	var publisher ledger.Publisher
	if cfg.Ledger.Kafka.Enabled {
		publisher, err = ledger.NewKafkaPublisher(ledger.KafkaConfig{
			Brokers: cfg.Ledger.Kafka.Brokers,
			Topic:   cfg.Ledger.Kafka.Topic,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create ledger publisher: %w", err)
		}
	}

	prefixes := make(map[ledger.Lane]string, len(cfg.Ledger.Prefixes))
	for lane, prefix := range cfg.Ledger.Prefixes {
		prefixes[ledger.Lane(lane)] = prefix
	}

	return ledger.New(store, ledger.Options{
		Prefixes:      prefixes,
		PublicBaseURL: cfg.Ledger.PublicBaseURL,
		Publisher:     publisher,
		Logger:        log,
	}), nil
}

// buildAdapters creates every adapter that has credentials. Missing
// credentials leave the matching tool unregistered.
func buildAdapters(ctx context.Context, cfg *config.Config) (toolexecutor.Adapters, error) {
	var out toolexecutor.Adapters
	fields := adapters.NewFieldMap(cfg.FieldMap)
	a := cfg.Adapters

	switch a.Archive {
	case "", "notion":
		if a.Notion.APIKey != "" {
			archive, err := adapters.NewNotionArchive(adapters.NotionConfig{
				APIKey:     a.Notion.APIKey,
				BaseURL:    a.Notion.BaseURL,
				ParentType: a.Notion.ParentType,
				FieldMap:   fields,
			})
			if err != nil {
				return out, err
			}
			out.Archive = archive
		}
	case "s3":
		if a.S3.Bucket != "" {
			archive, err := adapters.NewS3Archive(ctx, adapters.S3Config{
				Bucket:          a.S3.Bucket,
				Prefix:          a.S3.Prefix,
				Region:          a.S3.Region,
				Endpoint:        a.S3.Endpoint,
				AccessKeyID:     a.S3.AccessKeyID,
				SecretAccessKey: a.S3.SecretAccessKey,
				UsePathStyle:    a.S3.UsePathStyle,
				PublicBaseURL:   a.S3.PublicBaseURL,
				FieldMap:        fields,
			})
			if err != nil {
				return out, err
			}
			out.Archive = archive
		}
	default:
		return out, fmt.Errorf("unsupported archive adapter: %s", a.Archive)
	}

	if a.Beehiiv.APIKey != "" {
		scheduler, err := adapters.NewBeehiivScheduler(adapters.BeehiivConfig{
			APIKey:        a.Beehiiv.APIKey,
			PublicationID: a.Beehiiv.PublicationID,
			BaseURL:       a.Beehiiv.BaseURL,
		})
		if err != nil {
			return out, err
		}
		out.Scheduler = scheduler
	}

	if a.Cloudinary.CloudName != "" {
		search, err := adapters.NewCloudinarySearch(adapters.CloudinaryConfig{
			CloudName: a.Cloudinary.CloudName,
			APIKey:    a.Cloudinary.APIKey,
			APISecret: a.Cloudinary.APISecret,
			BaseURL:   a.Cloudinary.BaseURL,
		})
		if err != nil {
			return out, err
		}
		out.Search = search
	}

	if a.Slack.BotToken != "" {
		notifier, err := adapters.NewSlackNotifier(adapters.SlackConfig{
			BotToken: a.Slack.BotToken,
			BaseURL:  a.Slack.BaseURL,
		})
		if err != nil {
			return out, err
		}
		out.Notifier = notifier
	}

	return out, nil
}

func buildTenants(cfg *config.Config) *agent.StaticTenants {
	tenants := make(map[string]agent.ClientConfig, len(cfg.Tenants))
	for _, t := range cfg.Tenants {
		tenants[t.ID] = agent.ClientConfig{
			TenantID:            t.ID,
			ArchiveParentID:     t.ArchiveParentID,
			NotificationChannel: t.NotificationChannel,
			BrandVoice:          t.BrandVoice,
			SendSchedule:        t.SendSchedule,
			Timezone:            t.Timezone,
		}
	}
	return agent.NewStaticTenants(tenants, cfg.DefaultTenant)
}

func authProfiles(cfg *config.Config) []agent.AuthProfile {
	profiles := make([]agent.AuthProfile, 0, len(cfg.AI.Profiles))
	for _, p := range cfg.AI.Profiles {
		profiles = append(profiles, agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Priority: p.Priority,
		})
	}
	return profiles
}

func baseInstructions(path string) (string, error) {
	if path == "" {
		return defaultBaseInstructions, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read base instructions: %w", err)
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text, nil
	}
	return defaultBaseInstructions, nil
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
