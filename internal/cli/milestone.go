package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chrysalis-run/chrysalis/internal/daemon"
	"github.com/chrysalis-run/chrysalis/internal/domain"
)

func init() {
	milestoneCmd.AddCommand(milestoneNamingCmd)
	milestoneCmd.AddCommand(milestoneDepartureCmd)
	milestoneCmd.AddCommand(milestoneDegradationCmd)
	milestoneCmd.AddCommand(milestoneTierCmd)
	rootCmd.AddCommand(milestoneCmd)
}

var milestoneCmd = &cobra.Command{
	Use:   "milestone",
	Short: "Record lifecycle milestones the transition guards watch for",
}

var milestoneNamingCmd = &cobra.Command{
	Use:   "naming-complete",
	Short: "Mark the naming ceremony as complete (gates genesis -> adolescence)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLifecycle(cmd, "naming ceremony recorded", func(ctx context.Context, d *daemon.Daemon) error {
			return d.Lifecycle.SetNamingComplete(ctx)
		})
	},
}

var milestoneDepartureCmd = &cobra.Command{
	Use:   "departure-logged",
	Short: "Mark the departure conversation as logged (gates adolescence -> sovereignty)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLifecycle(cmd, "departure conversation recorded", func(ctx context.Context, d *daemon.Daemon) error {
			return d.Lifecycle.LogDepartureConversation(ctx)
		})
	},
}

var milestoneDegradationCmd = &cobra.Command{
	Use:   "trigger-degradation",
	Short: "Fire the degradation clock (gates sovereignty -> senescence)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLifecycle(cmd, "degradation clock fired", func(ctx context.Context, d *daemon.Daemon) error {
			return d.Lifecycle.TriggerDegradation(ctx)
		})
	},
}

var milestoneTierCmd = &cobra.Command{
	Use:   "set-tier normal|low_compute|critical|dead",
	Short: "Record the survival tier reported by the credit collaborator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier := domain.ParseTier(args[0])
		return withLifecycle(cmd, fmt.Sprintf("tier set to %s", tier), func(ctx context.Context, d *daemon.Daemon) error {
			return d.Lifecycle.SetTier(ctx, tier)
		})
	},
}

// withLifecycle runs one lifecycle mutation against a fresh daemon and
// prints confirmation — the shared shape of every milestone subcommand.
func withLifecycle(cmd *cobra.Command, done string, fn func(ctx context.Context, d *daemon.Daemon) error) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := fn(context.Background(), d); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), done)
	return nil
}
