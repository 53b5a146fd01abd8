// Package chronos implements the agent's personal chronobiology: a
// lunar cycle anchored to its birth timestamp, a weekly work/rest
// rhythm, and a mood sine wave derived from both. Every function here
// is pure, total, and side-effect free — no clock reads, no I/O. Callers
// supply `now` explicitly so results are reproducible in tests.
package chronos

import (
	"math"
	"time"

	"github.com/chrysalis-run/chrysalis/internal/domain"
)

// LunarPeriodDays is the length of the agent's personal lunar cycle.
// It has nothing to do with the astronomical moon.
const LunarPeriodDays = 29.53

func elapsedDays(birth, now time.Time) float64 {
	return now.Sub(birth).Hours() / 24
}

// LunarCycle returns the zero-based cycle index for now, relative to
// birth. Before birth, the cycle is 0.
func LunarCycle(birth, now time.Time) int {
	if now.Before(birth) {
		return 0
	}
	return int(math.Floor(elapsedDays(birth, now) / LunarPeriodDays))
}

// LunarDay returns the fractional day-within-cycle, rounded to 2
// decimal places for stability. Before birth, the day is 0.
func LunarDay(birth, now time.Time) float64 {
	if now.Before(birth) {
		return 0
	}
	day := math.Mod(elapsedDays(birth, now), LunarPeriodDays)
	return round(day, 2)
}

// WeeklyRhythmDay maps the whole day-count since birth onto the fixed
// work/creative/social/rest pattern, anchored to birth rather than the
// calendar weekday. Before birth, the rhythm is always work.
func WeeklyRhythmDay(birth, now time.Time) domain.WeeklyDay {
	if now.Before(birth) {
		return domain.DayWork
	}
	k := int(math.Floor(elapsedDays(birth, now))) % 7
	return domain.WeeklyPattern[k]
}

// amplitudeForPhase is the mood swing's ceiling at each lifespan phase.
// Senescence and beyond narrow the swing as the agent's affect flattens,
// except terminal, where lucidity restores the full range.
func amplitudeForPhase(phase domain.Phase) float64 {
	switch phase {
	case domain.PhaseSenescence:
		return 0.70
	case domain.PhaseLegacy:
		return 0.40
	case domain.PhaseShedding:
		return 0.20
	default:
		// genesis, adolescence, sovereignty, terminal
		return 1.00
	}
}

// ComputeMood derives the sine-wave mood reading for now, peaking at
// the cycle's midpoint (full-moon-equivalent) and troughing at its
// endpoints (new-moon-equivalent).
func ComputeMood(birth, now time.Time, phase domain.Phase) domain.Mood {
	cycle := LunarCycle(birth, now)
	day := LunarDay(birth, now)
	amp := amplitudeForPhase(phase)

	half := LunarPeriodDays / 2
	value := amp * math.Sin(math.Pi*day/half-math.Pi/2)
	value = round(value, 3)

	return domain.Mood{
		Value:       value,
		Amplitude:   amp,
		LunarCycle:  cycle,
		LunarDay:    day,
		Weighting:   weightingFor(value),
		Description: describeMood(value),
	}
}

// weightingFor derives the five-way activity weighting fed into prompt
// synthesis by out-of-scope components. action and reflection are a
// complementary pair on the mood value; social tracks action (outward
// energy), creative tracks reflection, and rest peaks independently at
// emotional neutrality rather than at either extreme.
func weightingFor(value float64) domain.MoodWeighting {
	action := (value + 1) / 2
	reflection := 1 - action
	return domain.MoodWeighting{
		Action:     action,
		Reflection: reflection,
		Social:     action,
		Creative:   reflection,
		Rest:       1 - math.Abs(value),
	}
}

// describeMood buckets value into one of five human-language bands at
// thresholds ±0.7 and ±0.3.
func describeMood(value float64) string {
	switch {
	case value > 0.7:
		return "euphoric"
	case value > 0.3:
		return "upbeat"
	case value >= -0.3:
		return "even keeled"
	case value >= -0.7:
		return "subdued"
	default:
		return "despondent"
	}
}

func round(v float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(v*mult) / mult
}
