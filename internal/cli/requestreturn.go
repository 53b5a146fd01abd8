package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chrysalis-run/chrysalis/internal/daemon"
)

func init() {
	rootCmd.AddCommand(requestReturnCmd)
}

var requestReturnCmd = &cobra.Command{
	Use:   "request-return",
	Short: "Flag that the agent asks to be brought back after terminal",
	RunE:  runRequestReturn,
}

func runRequestReturn(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Lifecycle.RequestReturn(context.Background()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "return requested")
	return nil
}
