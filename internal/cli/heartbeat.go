package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chrysalis-run/chrysalis/internal/daemon"
)

func init() {
	heartbeatCmd.AddCommand(heartbeatListCmd)
	heartbeatCmd.AddCommand(heartbeatForceRunCmd)
	rootCmd.AddCommand(heartbeatCmd)
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Inspect or force-run scheduled heartbeat tasks",
}

var heartbeatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every seeded heartbeat task and its last outcome",
	RunE:  runHeartbeatList,
}

var heartbeatForceRunCmd = &cobra.Command{
	Use:   "force-run TASK",
	Short: "Run one heartbeat task immediately, bypassing its schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runHeartbeatForceRun,
}

func runHeartbeatList(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	if err := d.Scheduler.Seed(ctx); err != nil {
		return err
	}
	tasks, err := d.DB.ListHeartbeatTasks(ctx)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		state := "enabled"
		if !t.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-32s %-8s next=%s last_err=%q\n",
			t.TaskName, state, t.NextRunAt.Format("2006-01-02 15:04:05"), t.LastError)
	}
	return nil
}

func runHeartbeatForceRun(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	if err := d.Scheduler.Seed(ctx); err != nil {
		return err
	}
	result, err := d.Scheduler.ForceRun(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], result)
	return nil
}
