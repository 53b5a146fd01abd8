// Package cli implements the chrysalisd command-line interface using
// Cobra. Each subcommand maps to one operation the Lifespan Engine
// exposes: observing derived state, recording lifecycle milestones,
// writing or sealing the will, advancing shedding, driving the
// replication spawn queue, adjusting the session ledger, and managing
// the heartbeat schedule.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chrysalisd",
	Short: "chrysalisd — the Lifespan Engine runtime",
	Long: `chrysalisd runs a single autonomous agent process through its full
lifespan: a seven-phase state machine, a chronobiology engine driving
mood and degradation, a durable heartbeat scheduler, and a session
drawdown kill switch.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
