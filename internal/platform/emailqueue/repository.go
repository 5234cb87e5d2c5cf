package emailqueue

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("emailqueue: row not found")

// Repository defines data access for the email queue (spec.md §4.1).
// claim_due's at-most-one-worker-per-row guarantee comes from an atomic
// claim operation under a Mongo transaction, not from a single poller -
// multiple Batch Worker processes may call ClaimDue concurrently.
type Repository interface {
	// Enqueue applies the dedupe contract:
	//  1. a pending row for (UserID, TemplateName) is returned unchanged
	//  2. unless Force, a row in {sent, processing} within 24h is returned unchanged
	//  3. otherwise a new pending row is inserted
	Enqueue(ctx context.Context, req *EnqueueRequest) (*Row, error)

	// ClaimDue selects up to limit due rows ordered by (priority ASC,
	// created_at ASC), atomically transitioning each to processing,
	// incrementing attempts and stamping last_attempt_at/batch_id/worker_id.
	ClaimDue(ctx context.Context, limit int, now time.Time, batchID, workerID string) ([]*Row, error)

	// MarkSent transitions a row to sent, recording the provider message id.
	MarkSent(ctx context.Context, rowID, providerMessageID string) error

	// MarkFailed applies the failure policy: terminal `failed` once
	// attempts >= max_attempts, otherwise back to `pending` for retry.
	MarkFailed(ctx context.Context, rowID, errMsg string) error

	// MarkCancelled transitions a row to the terminal cancelled status.
	MarkCancelled(ctx context.Context, rowID string) error

	// GetPendingFor looks up a pending row for (userID, templateName).
	GetPendingFor(ctx context.Context, userID, templateName string) (*Row, error)

	// GetRecentFor looks up a row in {sent, processing} for (userID,
	// templateName) created since the given time.
	GetRecentFor(ctx context.Context, userID, templateName string, since time.Time) (*Row, error)

	// Stats returns row counts by status.
	Stats(ctx context.Context) (*Stats, error)

	// RecordBatchLog persists a BatchLog entry for one Batch Worker pass.
	RecordBatchLog(ctx context.Context, log *BatchLog) error

	// CreateSchema creates indexes. Collections are created implicitly.
	CreateSchema(ctx context.Context) error
}
