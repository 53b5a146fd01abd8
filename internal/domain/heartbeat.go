package domain

import "time"

// TaskKind distinguishes tasks the kill switch gates (MayAct) from
// tasks it never blocks (ReadOnly).
type TaskKind int

const (
	ReadOnly TaskKind = iota
	MayAct
)

// HeartbeatTask is one row in heartbeat_schedule: the persisted
// configuration and run history for a registered scheduler task.
type HeartbeatTask struct {
	TaskName       string
	CronExpression string
	IntervalMs     int64
	Enabled        bool
	Priority       int
	TimeoutMs      int64
	MaxRetries     int
	TierMinimum    Tier
	LastRunAt      *time.Time
	NextRunAt      time.Time
	LastResult     string
	LastError      string
	RunCount       int64
	FailCount      int64
	LeaseOwner     string
	LeaseExpiresAt *time.Time
}
