// Package emailqueue implements the Email Queue Store (spec.md §4.1): a
// durable, at-least-once delivery queue for outbound participant email,
// claimed under row-level locks so at most one Batch Worker processes a
// given row at a time.
package emailqueue

import "time"

// Status is the delivery status of a queued email row.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Row is a single queued email awaiting delivery.
type Row struct {
	ID string `bson:"_id" json:"id"`

	UserID      string `bson:"userId" json:"userId"`
	Email       string `bson:"email" json:"email"`
	DisplayName string `bson:"displayName" json:"displayName"`

	TemplateName string            `bson:"templateName" json:"templateName"`
	Variables    map[string]string `bson:"variables" json:"variables"`

	// Priority orders claim_due: lower claims first.
	Priority int `bson:"priority" json:"priority"`

	Status Status `bson:"status" json:"status"`

	Attempts    int `bson:"attempts" json:"attempts"`
	MaxAttempts int `bson:"maxAttempts" json:"maxAttempts"`

	LastAttemptAt *time.Time `bson:"lastAttemptAt,omitempty" json:"lastAttemptAt,omitempty"`
	LastError     string     `bson:"lastError,omitempty" json:"lastError,omitempty"`

	// ScheduledFor defers eligibility; nil means immediately due.
	ScheduledFor *time.Time `bson:"scheduledFor,omitempty" json:"scheduledFor,omitempty"`

	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
	SentAt    *time.Time `bson:"sentAt,omitempty" json:"sentAt,omitempty"`

	ProviderMessageID string `bson:"providerMessageId,omitempty" json:"providerMessageId,omitempty"`
	BatchID           string `bson:"batchId,omitempty" json:"batchId,omitempty"`
	WorkerID          string `bson:"workerId,omitempty" json:"workerId,omitempty"`
}

// IsDue reports whether the row is eligible for claim_due at the given time:
// pending, not exhausted, and either unscheduled or past its scheduled time.
func (r *Row) IsDue(now time.Time) bool {
	if r.Status != StatusPending {
		return false
	}
	if r.Attempts >= r.MaxAttempts {
		return false
	}
	return r.ScheduledFor == nil || !r.ScheduledFor.After(now)
}

// EnqueueRequest is the input to Repository.Enqueue.
type EnqueueRequest struct {
	UserID       string
	Email        string
	DisplayName  string
	TemplateName string
	Variables    map[string]string
	Priority     int
	MaxAttempts  int
	ScheduledFor *time.Time

	// Force bypasses the sent/processing dedupe window (step 2 of the
	// dedupe contract); the pending-row dedupe (step 1) always applies.
	Force bool
}

// BatchLog records one Batch Worker invocation; append-only.
type BatchLog struct {
	ID           string     `bson:"_id" json:"id"`
	BatchID      string     `bson:"batchId" json:"batchId"`
	WorkerID     string     `bson:"workerId" json:"workerId"`
	TemplateName string     `bson:"templateName,omitempty" json:"templateName,omitempty"`
	RowCount     int        `bson:"rowCount" json:"rowCount"`
	SentCount    int        `bson:"sentCount" json:"sentCount"`
	FailedCount  int        `bson:"failedCount" json:"failedCount"`
	StartedAt    time.Time  `bson:"startedAt" json:"startedAt"`
	FinishedAt   *time.Time `bson:"finishedAt,omitempty" json:"finishedAt,omitempty"`
}

// Stats summarizes queue depth per status, for the API and for metrics.
type Stats struct {
	Pending    int64
	Processing int64
	Sent       int64
	Failed     int64
	Cancelled  int64
}
