package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harun/quill/pkg/agent"
	"github.com/spf13/cobra"
)

var (
	runTenant   string
	runTrack    string
	runConverse bool
)

var runCmd = &cobra.Command{
	Use:   "run [message]",
	Short: "Run the agent once and print the result",
	Long: `Run the agent on a single request and print the response envelope as JSON.
By default the plan lane is used. --converse uses the tool-calling loop instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runTenant, "tenant", "", "tenant id (defaults to default_tenant)")
	runCmd.Flags().StringVar(&runTrack, "track", "", "content track (newsletter, social, press_release)")
	runCmd.Flags().BoolVar(&runConverse, "converse", false, "use the tool-calling loop")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := newApp(cmd.Context(), cfg, appOptions{stderr: true})
	if err != nil {
		return err
	}
	defer app.Close()

	// Leave room past the run timeout for the best-effort notification.
	ctx, cancel := withTimeout(cmd.Context(), seconds(cfg.Agent.RunTimeoutSeconds, agent.DefaultRunTimeout)+15*time.Second)
	defer cancel()

	req := agent.RunRequest{
		Message:  strings.Join(args, " "),
		TenantID: runTenant,
		Track:    runTrack,
	}

	run := app.Orchestrator.Run
	if runConverse {
		run = app.Orchestrator.Converse
	}

	resp, err := run(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
