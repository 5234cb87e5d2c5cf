package scheduler

import "context"

// StatusRepository persists the Scheduler's heartbeat row.
type StatusRepository interface {
	// UpsertHeartbeat records that instanceID is alive with registeredJobs
	// registered, as of now.
	UpsertHeartbeat(ctx context.Context, instanceID string, registeredJobs int) error

	CreateSchema(ctx context.Context) error
}
