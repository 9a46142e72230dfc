package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/harun/quill/pkg/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the agent and ledger HTTP API in the foreground until interrupted.
The process id is written to $HOME/.quill/quill.pid for "quill stop" and "quill status".`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.host and server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		return fmt.Errorf("quill is already running (PID file: %s)", pidFile)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()
	log := app.Logger.GetZerolog()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr()
	}

	srv, err := server.New(server.Config{
		Addr:           addr,
		Runner:         app.Orchestrator,
		Approver:       app.Approver,
		Ledger:         app.Ledger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.Server.RequestsPerMinute,
			MaxConcurrent:     cfg.Server.MaxConcurrentRuns,
		},
		ShutdownTimeout: seconds(cfg.Server.ShutdownTimeoutSeconds, 30*time.Second),
		Logger:          log,
	})
	if err != nil {
		return err
	}

	if err := writePIDFile(pidFile); err != nil {
		log.Warn().Err(err).Str("pid_file", pidFile).Msg("Failed to write PID file")
	}
	defer os.Remove(pidFile)

	if app.Skills != nil && cfg.Agent.WatchSkills {
		go func() {
			if err := app.Skills.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Skills watcher stopped")
			}
		}()
	}

	log.Info().Str("addr", addr).Str("version", version).Msg("Quill started")
	return srv.Start(ctx)
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func getPIDFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "quill.pid")
	}
	return filepath.Join(home, ".quill", "quill.pid")
}

func readPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

func isRunning(pidFile string) bool {
	pid, err := readPID(pidFile)
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0
	return process.Signal(syscall.Signal(0)) == nil
}

// withTimeout bounds one-shot commands.
func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, d)
}
