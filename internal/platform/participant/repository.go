package participant

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup finds no matching document.
var ErrNotFound = errors.New("participant: not found")

// Repository defines data access for users, events, and participations.
type Repository interface {
	// Users
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByEmailKey(ctx context.Context, emailKey string) (*User, error)
	FindActiveUsersByRole(ctx context.Context, roles []Role) ([]*User, error)
	InsertUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error

	// Events
	FindEventByID(ctx context.Context, id string) (*Event, error)
	FindActiveEvent(ctx context.Context) (*Event, error)
	// ActivateEvent deactivates every other event and activates eventID in
	// a single transaction (spec.md §3: "enforced by an explicit
	// transition, not a uniqueness constraint").
	ActivateEvent(ctx context.Context, eventID string) error
	InsertEvent(ctx context.Context, event *Event) error
	UpdateEvent(ctx context.Context, event *Event) error

	// Participations
	FindParticipation(ctx context.Context, userID, eventID string) (*EventParticipation, error)
	// FindCandidatesWithoutParticipation returns active users of the given
	// roles that have no EventParticipation row for eventID and whose
	// ConfirmationSentAt is nil (spec.md §4.5 step 2, left-anti join).
	FindCandidatesWithoutParticipation(ctx context.Context, eventID string, roles []Role) ([]*User, error)
	// FindParticipationsForEvent returns every participation for eventID,
	// for the Reminder Job's per-stage scan; users are not joined in.
	FindParticipationsForEvent(ctx context.Context, eventID string) ([]*EventParticipation, error)
	UpsertParticipation(ctx context.Context, p *EventParticipation) error
	MarkReminderSent(ctx context.Context, participationID string, stage int) error

	CreateSchema(ctx context.Context) error
}
