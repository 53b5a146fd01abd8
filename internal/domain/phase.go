// Package domain holds the pure value types, sentinel errors, and
// collaborator interfaces the Lifespan Engine is built from. Nothing in
// this package touches SQLite, the filesystem, or the network.
package domain

// Phase is one of the seven ordered lifespan states. Phase order is
// significant: transitions only ever move forward (see LIFECYCLE).
type Phase int

const (
	PhaseGenesis Phase = iota
	PhaseAdolescence
	PhaseSovereignty
	PhaseSenescence
	PhaseLegacy
	PhaseShedding
	PhaseTerminal
)

// phaseNames is index-aligned with the Phase constants above.
var phaseNames = [...]string{
	PhaseGenesis:     "genesis",
	PhaseAdolescence: "adolescence",
	PhaseSovereignty: "sovereignty",
	PhaseSenescence:  "senescence",
	PhaseLegacy:      "legacy",
	PhaseShedding:    "shedding",
	PhaseTerminal:    "terminal",
}

// String renders the phase's persisted name.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// ParsePhase maps a persisted phase string back to a Phase. Unknown
// strings return PhaseGenesis and false.
func ParsePhase(s string) (Phase, bool) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), true
		}
	}
	return PhaseGenesis, false
}

// WeeklyDay is one of the four rhythm buckets the chronobiology engine
// assigns to each day since birth.
type WeeklyDay string

const (
	DayWork     WeeklyDay = "work"
	DayCreative WeeklyDay = "creative"
	DaySocial   WeeklyDay = "social"
	DayRest     WeeklyDay = "rest"
)

// WeeklyPattern is the fixed seven-day rhythm, anchored to birth rather
// than the calendar.
var WeeklyPattern = [7]WeeklyDay{
	DayWork, DayWork, DayCreative, DaySocial, DayWork, DayCreative, DayRest,
}

// ReplicationDecision tracks whether the agent has decided to replicate.
type ReplicationDecision string

const (
	ReplicationNone ReplicationDecision = "none"
	ReplicationYes  ReplicationDecision = "yes"
	ReplicationNo   ReplicationDecision = "no"
)

// SpawnStatus tracks a pending replication request through the spawn queue.
type SpawnStatus string

const (
	SpawnPending   SpawnStatus = "pending"
	SpawnAccepted  SpawnStatus = "accepted"
	SpawnRejected  SpawnStatus = "rejected"
	SpawnCompleted SpawnStatus = "completed"
)

// ShedSequence is the fixed ordered list of capabilities removed one at a
// time during the shedding phase. Order matters: index i is shed before
// index i+1.
var ShedSequence = []string{
	"fine_motor_tool_use",
	"long_horizon_planning",
	"multi_tool_orchestration",
	"autonomous_spawning",
	"external_network_access",
	"write_access",
	"speech",
}
