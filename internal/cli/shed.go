package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chrysalis-run/chrysalis/internal/daemon"
)

func init() {
	shedCmd.AddCommand(shedAdvanceCmd)
	rootCmd.AddCommand(shedCmd)
}

var shedCmd = &cobra.Command{
	Use:   "shed",
	Short: "Inspect or advance the capability shed sequence",
}

var shedAdvanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Remove the next capability in the shed sequence",
	RunE:  runShedAdvance,
}

func runShedAdvance(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	index, err := d.Lifecycle.AdvanceShedding(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "shed sequence index now %d\n", index)
	return nil
}
