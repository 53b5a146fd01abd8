package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Scheduler errors
	ErrLeaseContended   = errors.New("lease contended — another owner holds this task")
	ErrTierBlocked      = errors.New("survival tier below task minimum")
	ErrKillSwitchActive = errors.New("kill switch active — action-taking task skipped")
	ErrTaskTimeout      = errors.New("task exceeded its timeout")
	ErrTaskDisabled     = errors.New("task is disabled")
	ErrTaskNotFound     = errors.New("no task registered under that name")

	// Lifecycle state machine errors
	ErrWillLocked        = errors.New("will is sealed — no new versions may be written")
	ErrInvalidTransition = errors.New("attempted transition not allowed by the guard table")
	ErrNotTerminal       = errors.New("codicils may only be appended in the terminal phase")
)
