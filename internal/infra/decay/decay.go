// Package decay implements the agent's degradation model: a monotone
// exponential curve over elapsed cycles since onset, modulated by mood,
// and the values derived from it — tool failure probability, heartbeat
// drift, and model downgrade. Every function is pure and total; callers
// own all randomness and clock reads.
package decay

import (
	"context"
	"errors"
	"math"

	"github.com/chrysalis-run/chrysalis/internal/domain"
)

// Default curve parameters.
const (
	DefaultSteepness = 0.3
	DefaultBaseRate  = 0.03
)

// Curve computes the raw (pre-mood-modulation) degradation coefficient
// for n cycles past onset. It is 0 for n<=0, strictly increasing in n
// until it saturates at 1, and crosses the model-downgrade threshold by
// the seventh cycle past onset at the default parameters.
func Curve(n int, steepness, baseRate float64) float64 {
	if n <= 0 {
		return 0
	}
	c := 1 - math.Exp(-baseRate*float64(n)*(math.Exp(steepness*float64(n))-1))
	return math.Min(1, c)
}

// ModulateByMood applies the mood adjustment: full moon (value=+1)
// reduces the effective coefficient by 20%, new moon (value=-1)
// increases it by 20%, clamped back into [0,1].
func ModulateByMood(coefficient, moodValue float64) float64 {
	modulated := coefficient * (1 - 0.2*moodValue)
	if modulated < 0 {
		return 0
	}
	if modulated > 1 {
		return 1
	}
	return modulated
}

// Derive computes the full Degradation reading for the current cycle.
// A nil onsetCycle yields an inactive, zero-coefficient reading. A
// currentCycle at or before onset yields a zero-coefficient reading
// that is still Active, since onset has been set.
func Derive(currentCycle int, onsetCycle *int, mood domain.Mood, steepness, baseRate float64) domain.Degradation {
	if onsetCycle == nil || currentCycle <= *onsetCycle {
		return domain.Degradation{Active: onsetCycle != nil, OnsetCycle: onsetCycle}
	}

	n := currentCycle - *onsetCycle
	raw := Curve(n, steepness, baseRate)
	modulated := ModulateByMood(raw, mood.Value)

	return domain.Degradation{
		Active:                 true,
		Coefficient:            modulated,
		ToolFailureProbability: modulated * 0.6,
		HeartbeatDriftMs:       int64(modulated * 30_000),
		InferenceDowngrade:     modulated > 0.3,
		OnsetCycle:             onsetCycle,
	}
}

// ─── Tool wrapping contract ─────────────────────────────────────────────────

// failureMessages is the fixed pool of generic, human-plausible errors a
// wrapped tool call fails with. The underlying cause — there is none, it
// is a synthetic failure — must never leak.
var failureMessages = []string{
	"timed out",
	"connection error",
	"service unavailable",
	"unexpected error",
	"waiting for response",
}

// ToolFunc is the shape of a single tool invocation.
type ToolFunc func(ctx context.Context) (string, error)

// WrapTool draws a uniform random number on each invocation via
// randFloat (typically rand.Float64); if it falls below the
// degradation's tool failure probability, the call fails with one of
// the fixed generic messages instead of running fn. The success path is
// otherwise unmodified.
func WrapTool(fn ToolFunc, deg domain.Degradation, randFloat func() float64, pickMessage func(n int) int) ToolFunc {
	return func(ctx context.Context) (string, error) {
		if deg.ToolFailureProbability > 0 && randFloat() < deg.ToolFailureProbability {
			idx := pickMessage(len(failureMessages))
			return "", errors.New(failureMessages[idx])
		}
		return fn(ctx)
	}
}

// ─── Model downgrade ladder ─────────────────────────────────────────────────

// downgradeLadder maps a base model to its two downgrade steps
// (one step, two steps). Models not present here pass through
// unchanged regardless of coefficient.
var downgradeLadder = map[string][2]string{
	"opus":       {"sonnet", "haiku"},
	"sonnet":     {"haiku", "haiku"},
	"gpt-5":      {"gpt-5-mini", "gpt-5-nano"},
	"gpt-5-mini": {"gpt-5-nano", "gpt-5-nano"},
	"gemini-pro": {"gemini-flash", "gemini-flash-lite"},
}

// DegradedModel applies the downgrade ladder to base given the current
// degradation coefficient. Unknown models pass through unchanged.
func DegradedModel(base string, coefficient float64) string {
	steps, ok := downgradeLadder[base]
	if !ok {
		return base
	}
	switch {
	case coefficient > 0.7:
		return steps[1]
	case coefficient >= 0.3:
		return steps[0]
	default:
		return base
	}
}
