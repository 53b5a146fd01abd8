package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chrysalis-run/chrysalis/internal/daemon"
)

func init() {
	pnlCmd.AddCommand(pnlAddCmd)
	pnlCmd.AddCommand(pnlResetCmd)
	rootCmd.AddCommand(pnlCmd)
}

var pnlCmd = &cobra.Command{
	Use:   "pnl",
	Short: "Adjust or reset the session drawdown ledger",
}

var pnlAddCmd = &cobra.Command{
	Use:   "add DELTA_CENTS",
	Short: "Record a session P&L delta and report the resulting kill-switch state",
	Args:  cobra.ExactArgs(1),
	RunE:  runPnlAdd,
}

var pnlResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the session ledger and clear the kill switch",
	RunE:  runPnlReset,
}

func runPnlAdd(cmd *cobra.Command, args []string) error {
	delta, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("parse delta cents: %w", err)
	}

	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	total, err := d.Risk.AddSessionPnl(ctx, delta)
	if err != nil {
		return err
	}
	status, err := d.Risk.KillSwitchStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "session P&L now %d cents\n", total)
	if status.Active {
		fmt.Fprintf(cmd.OutOrStdout(), "kill switch ACTIVE — %s\n", status.Reason)
	}
	return nil
}

func runPnlReset(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	if err := d.Risk.ResetSessionPnl(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "session ledger and kill switch reset")
	return nil
}
