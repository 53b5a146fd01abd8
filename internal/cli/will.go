package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chrysalis-run/chrysalis/internal/daemon"
)

func init() {
	willCmd.AddCommand(willShowCmd)
	willCmd.AddCommand(willWriteCmd)
	willCmd.AddCommand(willLockCmd)
	willCmd.AddCommand(willCodicilCmd)
	rootCmd.AddCommand(willCmd)
}

var willCmd = &cobra.Command{
	Use:   "will",
	Short: "Inspect or seal the lifespan will",
}

var willShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every will version and codicil, oldest first",
	RunE:  runWillShow,
}

var willWriteCmd = &cobra.Command{
	Use:   "write CONTENT",
	Short: "Append a new will version (fails once the will is sealed)",
	Args:  cobra.ExactArgs(1),
	RunE:  runWillWrite,
}

var willLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Seal the will ahead of the automatic senescence lock",
	RunE:  runWillLock,
}

var willCodicilCmd = &cobra.Command{
	Use:   "codicil CONTENT",
	Short: "Append a terminal-phase codicil to the sealed will",
	Args:  cobra.ExactArgs(1),
	RunE:  runWillCodicil,
}

func runWillShow(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	entries, err := d.DB.ListWillEntries(context.Background())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no will entries yet")
		return nil
	}
	for _, e := range entries {
		kind := "will"
		if e.IsCodicil {
			kind = "codicil"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "v%d (%s) %s\n%s\n\n",
			e.Version, kind, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Content)
	}
	return nil
}

func runWillWrite(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	version, err := d.Lifecycle.WriteWill(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "will version %d recorded\n", version)
	return nil
}

func runWillCodicil(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Lifecycle.AppendLucidCodicil(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "codicil appended")
	return nil
}

func runWillLock(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Lifecycle.LockWill(context.Background()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "will locked")
	return nil
}
