package cli

import (
	"github.com/harun/quill/pkg/mcpserver"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the agent as MCP tools over stdio",
	Long: `Serve run_agent, get_ledger_entry and approve_entry as Model Context Protocol
tools on stdin and stdout. Logs go to stderr.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := newApp(cmd.Context(), cfg, appOptions{stderr: true})
	if err != nil {
		return err
	}
	defer app.Close()

	srv, err := mcpserver.New(mcpserver.Config{
		Name:     "quill",
		Version:  version,
		Runner:   app.Orchestrator,
		Approver: app.Approver,
		Ledger:   app.Ledger,
		Logger:   app.Logger.GetZerolog(),
	})
	if err != nil {
		return err
	}
	return srv.ServeStdio()
}
