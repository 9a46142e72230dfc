package cli

import (
	"time"

	"github.com/harun/quill/pkg/ledger"
	"github.com/spf13/cobra"
)

const ledgerCommandTimeout = 2 * time.Minute

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and act on ledger entries",
}

var ledgerGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Print a ledger entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerGet,
}

var ledgerApproveCmd = &cobra.Command{
	Use:   "approve [id]",
	Short: "Approve an entry and execute its withheld actions",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerApprove,
}

var ledgerAdvanceCmd = &cobra.Command{
	Use:   "advance [id] [status]",
	Short: "Move an entry forward, e.g. to sent or closed",
	Args:  cobra.ExactArgs(2),
	RunE:  runLedgerAdvance,
}

func init() {
	ledgerCmd.AddCommand(ledgerGetCmd, ledgerApproveCmd, ledgerAdvanceCmd)
	rootCmd.AddCommand(ledgerCmd)
}

// openOfflineApp wires the ledger and tools without selecting a model.
func openOfflineApp(cmd *cobra.Command) (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg, appOptions{stderr: true, offline: true})
}

type entryOutput struct {
	ledger.Entry
	URL string `json:"url,omitempty"`
}

func runLedgerGet(cmd *cobra.Command, args []string) error {
	app, err := openOfflineApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := withTimeout(cmd.Context(), ledgerCommandTimeout)
	defer cancel()

	entry, err := app.Ledger.Get(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), entryOutput{Entry: entry, URL: app.Ledger.URL(entry.ID)})
}

func runLedgerApprove(cmd *cobra.Command, args []string) error {
	app, err := openOfflineApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := withTimeout(cmd.Context(), ledgerCommandTimeout)
	defer cancel()

	result, err := app.Approver.Approve(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runLedgerAdvance(cmd *cobra.Command, args []string) error {
	status, err := ledger.ParseStatus(args[1])
	if err != nil {
		return err
	}

	app, err := openOfflineApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := withTimeout(cmd.Context(), ledgerCommandTimeout)
	defer cancel()

	entry, err := app.Ledger.Advance(ctx, args[0], status)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), entryOutput{Entry: entry, URL: app.Ledger.URL(entry.ID)})
}
