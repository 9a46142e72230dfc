package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard on stdin and stdout.
func NewWizard() *Wizard {
	return NewWizardWithIO(os.Stdin, os.Stdout)
}

// NewWizardWithIO creates a wizard on the given streams.
func NewWizardWithIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	w.println("=== Quill Configuration Wizard ===")
	w.println()

	cfg := DefaultConfig()
	validator := NewValidator()

	w.println("AI provider (at least one is required):")
	for _, provider := range validProviders {
		key, err := w.ask(fmt.Sprintf("%s API key (press Enter to skip): ", provider), "", func(v string) error {
			if v == "" {
				return nil
			}
			return validator.ValidateAPIKey(v, provider)
		})
		if err != nil {
			return nil, err
		}
		if key == "" {
			continue
		}
		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{
			ID:       provider + "-default",
			Provider: provider,
			APIKey:   key,
			Priority: len(cfg.AI.Profiles) + 1,
		})
	}
	if len(cfg.AI.Profiles) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}
	if cfg.AI.Profiles[0].Provider == "openai" {
		cfg.Agent.Model = "gpt-4o"
	}
	w.println()

	w.println("Tenant:")
	tenant := TenantConfig{}
	var err error
	if tenant.ID, err = w.ask("Tenant id [default]: ", "default", nil); err != nil {
		return nil, err
	}
	if tenant.ArchiveParentID, err = w.ask("Archive parent id (Notion database or S3 folder): ", "", nil); err != nil {
		return nil, err
	}
	if tenant.NotificationChannel, err = w.ask("Slack notification channel (press Enter to skip): ", "", nil); err != nil {
		return nil, err
	}
	if tenant.SendSchedule, err = w.ask("Send schedule as cron, e.g. \"0 9 * * 4\" (press Enter to skip): ", "", validator.ValidateSendSchedule); err != nil {
		return nil, err
	}
	if tenant.Timezone, err = w.ask("Timezone [UTC]: ", "UTC", validator.ValidateTimezone); err != nil {
		return nil, err
	}
	cfg.Tenants = append(cfg.Tenants, tenant)
	cfg.DefaultTenant = tenant.ID
	w.println()

	model, err := w.ask(fmt.Sprintf("Model name [%s]: ", cfg.Agent.Model), cfg.Agent.Model, nil)
	if err != nil {
		return nil, err
	}
	cfg.Agent.Model = model

	level, err := w.ask("Log level (debug/info/warn/error) [info]: ", "info", validator.ValidateLogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Level = level

	w.println()
	w.println("Configuration complete!")

	return cfg, nil
}

// ask prompts until validate accepts the answer. Empty answers take def.
func (w *Wizard) ask(prompt, def string, validate func(string) error) (string, error) {
	for {
		fmt.Fprint(w.out, prompt)
		line, err := w.readLine()
		if err != nil {
			return "", err
		}
		if line == "" {
			line = def
		}
		if validate != nil {
			if err := validate(line); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
		}
		return line, nil
	}
}

func (w *Wizard) println(a ...interface{}) {
	fmt.Fprintln(w.out, a...)
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
