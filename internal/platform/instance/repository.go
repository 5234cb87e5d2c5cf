package instance

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup finds no matching document.
var ErrNotFound = errors.New("instance: not found")

// ErrConfigTokenExpired is returned by ConsumeConfigToken when the token
// hash matches a row but its expiry has passed.
var ErrConfigTokenExpired = errors.New("instance: config token expired")

// ErrNoVPNConfig is returned by ConsumeConfigToken when the matched
// instance has no VPN config to hand out.
var ErrNoVPNConfig = errors.New("instance: no vpn config assigned")

// Repository defines data access for tracked cloud instances.
type Repository interface {
	// FindPollable returns non-deleted instances with a provider-assigned
	// id and a non-terminal status — the reconciler's candidate set for
	// one tick.
	FindPollable(ctx context.Context) ([]*Instance, error)

	UpdateStatus(ctx context.Context, id string, status Status, primaryIPv4 string) error
	RecordSyncError(ctx context.Context, id, errMsg string) error

	Insert(ctx context.Context, inst *Instance) error
	FindByID(ctx context.Context, id string) (*Instance, error)

	// ConsumeConfigToken looks up the instance whose ConfigTokenHash
	// matches tokenHash, validates its expiry, and atomically clears the
	// token fields so the same raw token can never be redeemed twice.
	// Returns ErrNotFound for an unknown hash, ErrConfigTokenExpired for
	// an expired one, ErrNoVPNConfig when the instance has no VPN config.
	ConsumeConfigToken(ctx context.Context, tokenHash string) (*Instance, error)

	CreateSchema(ctx context.Context) error
}
