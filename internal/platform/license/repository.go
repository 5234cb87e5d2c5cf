package license

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProductNotFound = errors.New("license: product not found")
	ErrProductInactive = errors.New("license: product inactive")
	ErrTokenNotFound   = errors.New("license: token not found")
	ErrTokenExpired    = errors.New("license: token expired")
	ErrTokenUsed       = errors.New("license: token already used")
	ErrSlotNotFound    = errors.New("license: slot not found")
)

// DefaultRetryAfter is how long a caller should wait before retrying a
// full product's slot acquisition (spec.md §4.8).
const DefaultRetryAfter = 30 * time.Second

// AcquireOutcome is the result of a slot acquisition attempt.
type AcquireOutcome struct {
	Granted    bool
	Slot       *Slot
	RetryAfter time.Duration
}

// Repository defines data access for license products, tokens, and slots.
type Repository interface {
	FindProductByID(ctx context.Context, id string) (*Product, error)
	FindProductByCode(ctx context.Context, code string) (*Product, error)
	InsertProduct(ctx context.Context, product *Product) error

	InsertToken(ctx context.Context, token *Token) error
	// ValidateAndConsumeToken transactionally checks the token exists, is
	// unused, unexpired, and belongs to an active product, then atomically
	// marks it used. It is terminal on first success: a second call with
	// the same hash always fails with ErrTokenUsed.
	ValidateAndConsumeToken(ctx context.Context, tokenHash, clientIP string) (*Token, *Product, error)
	// FindUsedToken looks up a token that has already been consumed,
	// without mutating it — the bearer-authorization check the slot
	// acquire/release endpoints use, since those tokens were already spent
	// by the blob fetch. Returns ErrTokenNotFound if the hash is unknown
	// or the token was never consumed.
	FindUsedToken(ctx context.Context, tokenHash string) (*Token, *Product, error)

	// AcquireSlot transactionally reaps expired active slots for
	// productID, counts the remainder, and either inserts a new active
	// slot (Granted = true) or reports the product is at capacity
	// (Granted = false, RetryAfter set).
	AcquireSlot(ctx context.Context, productID, hostname, ip string) (*AcquireOutcome, error)
	// ReleaseSlot is idempotent: releasing an already-released or
	// nonexistent slot returns ErrSlotNotFound rather than an error about
	// double-release, so callers can treat "not found" as a distinct,
	// non-fatal case.
	ReleaseSlot(ctx context.Context, slotID, result string, elapsed time.Duration) error

	CreateSchema(ctx context.Context) error
}
