// Package riskgate implements the session-drawdown kill switch: a
// cumulative virtual P&L tracker that arms a timed halt once losses
// breach the drawdown limit, gating every "may act" heartbeat task
// until the halt expires or is cleared.
package riskgate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chrysalis-run/chrysalis/internal/domain"
)

const (
	keySessionPnlCents  = "session_pnl_cents"
	keyKillSwitchUntil  = "kill_switch_until"
	keyKillSwitchReason = "kill_switch_reason"

	// StartingBalanceCents is the virtual session bankroll the drawdown
	// percentage in the kill-switch reason is computed against.
	StartingBalanceCents = 100_000

	// DrawdownLimitCents is the cumulative loss that arms the switch.
	DrawdownLimitCents = -5_000

	// HaltDuration is how long an armed kill switch stays active.
	HaltDuration = 12 * time.Hour
)

// Service tracks session P&L and kill-switch state through the kv
// accessor alone — it never sees the wider repository surface. Every
// read consults the store directly — there is no in-memory cache, so
// the gate stays consistent across process restarts and multiple task
// callers within the same tick.
type Service struct {
	kv  domain.KV
	now func() time.Time
}

// New constructs a risk gate Service over a kv accessor.
func New(kv domain.KV, now func() time.Time) *Service {
	return &Service{kv: kv, now: now}
}

// GetSessionPnl returns the running session total, defaulting to 0.
func (s *Service) GetSessionPnl(ctx context.Context) (int64, error) {
	v, ok, err := s.kv.Get(ctx, keySessionPnlCents)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	cents, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, nil
	}
	return cents, nil
}

// AddSessionPnl atomically updates the running total by delta and arms
// the kill switch if the new total falls at or below the drawdown
// limit. A kill switch already active is left untouched — repeated
// losses while halted never extend the halt.
func (s *Service) AddSessionPnl(ctx context.Context, deltaCents int64) (int64, error) {
	current, err := s.GetSessionPnl(ctx)
	if err != nil {
		return 0, err
	}
	total := current + deltaCents
	if err := s.kv.Set(ctx, keySessionPnlCents, strconv.FormatInt(total, 10)); err != nil {
		return 0, err
	}

	if total > DrawdownLimitCents {
		return total, nil
	}

	status, err := s.KillSwitchStatus(ctx)
	if err != nil {
		return 0, err
	}
	if status.Active {
		return total, nil
	}

	until := s.now().Add(HaltDuration)
	reason := formatKillSwitchReason(total)
	if err := s.kv.Set(ctx, keyKillSwitchUntil, strconv.FormatInt(until.Unix(), 10)); err != nil {
		return 0, err
	}
	if err := s.kv.Set(ctx, keyKillSwitchReason, reason); err != nil {
		return 0, err
	}
	return total, nil
}

// formatKillSwitchReason renders the realised USD loss and its
// percentage of the starting virtual balance, e.g. "session drawdown
// limit breached: -$50.00 (-5.0%)".
func formatKillSwitchReason(totalCents int64) string {
	usd := float64(-totalCents) / 100
	pct := float64(totalCents) / float64(StartingBalanceCents) * 100
	return fmt.Sprintf("session drawdown limit breached: -$%.2f (%.1f%%)", usd, pct)
}

// KillSwitchStatus reports whether the switch is currently active,
// treating an expired until as inactive.
func (s *Service) KillSwitchStatus(ctx context.Context) (domain.KillSwitchStatus, error) {
	untilStr, ok, err := s.kv.Get(ctx, keyKillSwitchUntil)
	if err != nil {
		return domain.KillSwitchStatus{}, err
	}
	if !ok {
		return domain.KillSwitchStatus{}, nil
	}
	unix, err := strconv.ParseInt(untilStr, 10, 64)
	if err != nil {
		return domain.KillSwitchStatus{}, nil
	}
	until := time.Unix(unix, 0).UTC()
	now := s.now()

	if !now.Before(until) {
		return domain.KillSwitchStatus{}, nil
	}

	reason, _, err := s.kv.Get(ctx, keyKillSwitchReason)
	if err != nil {
		return domain.KillSwitchStatus{}, err
	}
	return domain.KillSwitchStatus{
		Active:      true,
		Until:       &until,
		Reason:      reason,
		RemainingMs: until.Sub(now).Milliseconds(),
	}, nil
}

// ResetSessionPnl zeros the running P&L and clears any armed kill
// switch.
func (s *Service) ResetSessionPnl(ctx context.Context) error {
	if err := s.kv.Set(ctx, keySessionPnlCents, "0"); err != nil {
		return err
	}
	return s.ResetKillSwitch(ctx)
}

// ResetKillSwitch clears the switch only, leaving the P&L total intact.
func (s *Service) ResetKillSwitch(ctx context.Context) error {
	if err := s.kv.Delete(ctx, keyKillSwitchUntil); err != nil {
		return err
	}
	return s.kv.Delete(ctx, keyKillSwitchReason)
}
