package workflow

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup finds no matching workflow.
var ErrNotFound = errors.New("workflow: not found")

// Repository defines data access for EmailWorkflow rules.
type Repository interface {
	// FindEnabledByTrigger returns enabled workflows matching triggerEvent,
	// ordered by Priority ascending.
	FindEnabledByTrigger(ctx context.Context, triggerEvent string) ([]*EmailWorkflow, error)

	FindByID(ctx context.Context, id string) (*EmailWorkflow, error)
	Insert(ctx context.Context, wf *EmailWorkflow) error
	Update(ctx context.Context, wf *EmailWorkflow) error

	CreateSchema(ctx context.Context) error
}
