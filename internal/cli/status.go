package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chrysalis-run/chrysalis/internal/daemon"
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the derived-state snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current phase, mood, degradation, and kill-switch reading",
	RunE:  runStatus,
}

type statusSnapshot struct {
	Phase             string  `json:"phase"`
	LunarCycle        int     `json:"lunar_cycle"`
	LunarDay          float64 `json:"lunar_day"`
	WeeklyDay         string  `json:"weekly_day"`
	MoodValue         float64 `json:"mood_value"`
	MoodDescription   string  `json:"mood_description"`
	Degraded          bool    `json:"degraded"`
	DegradationCoeff  float64 `json:"degradation_coefficient"`
	HeartbeatDriftMs  int64   `json:"heartbeat_drift_ms"`
	ShedSequenceIndex int     `json:"shed_sequence_index"`
	SessionPnlCents   int64   `json:"session_pnl_cents"`
	KillSwitchActive  bool    `json:"kill_switch_active"`
	KillSwitchReason  string  `json:"kill_switch_reason,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	state, err := d.Lifecycle.LoadState(ctx)
	if err != nil {
		return err
	}
	derived := d.Lifecycle.ComputeDerivedState(state, time.Now())
	kill, err := d.Risk.KillSwitchStatus(ctx)
	if err != nil {
		return err
	}
	pnl, err := d.Risk.GetSessionPnl(ctx)
	if err != nil {
		return err
	}

	snap := statusSnapshot{
		Phase:             derived.Phase.String(),
		LunarCycle:        derived.LunarCycle,
		LunarDay:          derived.LunarDay,
		WeeklyDay:         string(derived.WeeklyDay),
		MoodValue:         derived.Mood.Value,
		MoodDescription:   derived.Mood.Description,
		Degraded:          derived.Degradation.Active,
		DegradationCoeff:  derived.Degradation.Coefficient,
		HeartbeatDriftMs:  derived.Degradation.HeartbeatDriftMs,
		ShedSequenceIndex: derived.ShedSequenceIndex,
		SessionPnlCents:   pnl,
		KillSwitchActive:  kill.Active,
		KillSwitchReason:  kill.Reason,
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Phase:          %s\n", snap.Phase)
	fmt.Fprintf(cmd.OutOrStdout(), "Lunar:          cycle %d, day %.2f\n", snap.LunarCycle, snap.LunarDay)
	fmt.Fprintf(cmd.OutOrStdout(), "Weekly day:     %s\n", snap.WeeklyDay)
	fmt.Fprintf(cmd.OutOrStdout(), "Mood:           %.3f (%s)\n", snap.MoodValue, snap.MoodDescription)
	fmt.Fprintf(cmd.OutOrStdout(), "Degraded:       %t (coefficient %.3f, drift %dms)\n",
		snap.Degraded, snap.DegradationCoeff, snap.HeartbeatDriftMs)
	fmt.Fprintf(cmd.OutOrStdout(), "Shed index:     %d\n", snap.ShedSequenceIndex)
	fmt.Fprintf(cmd.OutOrStdout(), "Session P&L:    %d cents\n", snap.SessionPnlCents)
	if snap.KillSwitchActive {
		fmt.Fprintf(cmd.OutOrStdout(), "Kill switch:    ACTIVE — %s\n", snap.KillSwitchReason)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Kill switch:    inactive")
	}
	return nil
}
