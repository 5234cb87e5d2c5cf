package scheduler

import "time"

// SchedulerStatus is the heartbeat row a Scheduler upserts every 60 seconds
// (spec.md §4.4) so operators and other instances can see the process is alive.
type SchedulerStatus struct {
	ID            string    `bson:"_id" json:"id"`
	InstanceID    string    `bson:"instanceId" json:"instanceId"`
	RegisteredJob int       `bson:"registeredJobs" json:"registeredJobs"`
	LastHeartbeat time.Time `bson:"lastHeartbeat" json:"lastHeartbeat"`
}

// TriggerKind selects how a Job's next run time is computed.
type TriggerKind string

const (
	// TriggerInterval fires every Interval, starting one Interval from registration.
	TriggerInterval TriggerKind = "interval"
	// TriggerCron fires according to a 5-field cron expression, UTC.
	TriggerCron TriggerKind = "cron"
	// TriggerOneShot fires exactly once, at At.
	TriggerOneShot TriggerKind = "one_shot"
)

// Trigger describes when a Job should next fire.
type Trigger struct {
	Kind TriggerKind

	// Interval is used when Kind == TriggerInterval.
	Interval time.Duration

	// CronExpr is a standard 5-field cron expression (UTC), used when
	// Kind == TriggerCron.
	CronExpr string

	// At is the absolute UTC fire time, used when Kind == TriggerOneShot.
	At time.Time
}
