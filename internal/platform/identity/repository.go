package identity

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup finds no matching document.
var ErrNotFound = errors.New("identity: not found")

// Repository defines data access for the identity sync queue.
type Repository interface {
	// Queue upserts a Row keyed by (userID, operation): re-queuing the same
	// operation for the same user replaces the pending row rather than
	// stacking a duplicate, resetting Synced/Failed so it is retried.
	Queue(ctx context.Context, userID, username string, encryptedPassword *string, operation Operation) error

	// FindUnsynced returns up to limit rows with Synced = false and
	// Failed = false, oldest first.
	FindUnsynced(ctx context.Context, limit int) ([]*Row, error)

	MarkSynced(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	MarkRetry(ctx context.Context, id, errMsg string) error

	CreateSchema(ctx context.Context) error
}
