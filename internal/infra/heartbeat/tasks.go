package heartbeat

import (
	"context"
	"fmt"
)

// ChronobiologyRefresh is the read-only seed task body: it touches
// nothing persisted, it only reports the current chronobiology reading
// so an operator can see the tick loop is alive even before any phase
// transition has ever fired. Read-only tasks run through the kill
// switch unconditionally.
func ChronobiologyRefresh(ctx context.Context, tick TickContext) (string, error) {
	return fmt.Sprintf("mood=%.3f weekly_day=%s drift_ms=%d",
		tick.Mood.Value, tick.WeeklyDay, tick.Degradation.HeartbeatDriftMs), nil
}

// PhaseTransitionCheck is the may-act seed task body: the canonical
// "does the agent still get to act" probe. It performs no mutation of
// its own — the scheduler's own end-of-tick step evaluates and
// executes transitions — but as a MayAct task it is the one skipped
// whenever the kill switch is armed.
func PhaseTransitionCheck(ctx context.Context, tick TickContext) (string, error) {
	return fmt.Sprintf("phase=%s kill_switch_active=%t", tick.Phase, tick.KillSwitch.Active), nil
}
