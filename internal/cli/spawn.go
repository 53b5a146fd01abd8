package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chrysalis-run/chrysalis/internal/daemon"
	"github.com/chrysalis-run/chrysalis/internal/domain"
)

func init() {
	spawnCmd.AddCommand(spawnListCmd)
	spawnCmd.AddCommand(spawnDecideCmd)
	spawnCmd.AddCommand(spawnResolveCmd)
	rootCmd.AddCommand(spawnCmd)
}

var spawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Inspect the replication spawn queue or record the replication decision",
}

var spawnListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every spawn request and its status, newest first",
	RunE:  runSpawnList,
}

var spawnDecideCmd = &cobra.Command{
	Use:   "decide yes|no [REASON]",
	Short: "Record the replication decision; yes enqueues a pending spawn request",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSpawnDecide,
}

var spawnResolveCmd = &cobra.Command{
	Use:   "resolve ID accepted|rejected|completed",
	Short: "Move a spawn request to a new status on behalf of the spawning collaborator",
	Args:  cobra.ExactArgs(2),
	RunE:  runSpawnResolve,
}

func runSpawnList(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	reqs, err := d.DB.ListSpawnRequests(context.Background())
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "spawn queue is empty")
		return nil
	}
	for _, r := range reqs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %-10s %s %s\n",
			r.ID, r.Status, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Reason)
	}
	return nil
}

func runSpawnDecide(cmd *cobra.Command, args []string) error {
	var decision domain.ReplicationDecision
	switch args[0] {
	case "yes":
		decision = domain.ReplicationYes
	case "no":
		decision = domain.ReplicationNo
	default:
		return fmt.Errorf("decision must be yes or no, got %q", args[0])
	}
	reason := ""
	if len(args) == 2 {
		reason = args[1]
	}

	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	if err := d.Lifecycle.PoseReplicationQuestion(ctx); err != nil {
		return err
	}
	id, err := d.Lifecycle.RecordReplicationDecision(ctx, decision, reason)
	if err != nil {
		return err
	}
	if id == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "replication declined")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "spawn request %s enqueued\n", id)
	return nil
}

func runSpawnResolve(cmd *cobra.Command, args []string) error {
	status := domain.SpawnStatus(args[1])
	switch status {
	case domain.SpawnAccepted, domain.SpawnRejected, domain.SpawnCompleted:
	default:
		return fmt.Errorf("status must be accepted, rejected, or completed, got %q", args[1])
	}

	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Lifecycle.ResolveSpawnRequest(context.Background(), args[0], status); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "spawn request %s -> %s\n", args[0], status)
	return nil
}
