package license

import (
	"context"
	"fmt"
	"time"

	"go.redcell.dev/rangeops/internal/common/tsid"
	"go.redcell.dev/rangeops/internal/crypto"
)

// Service is the public entry point for license token and slot
// operations, wrapping Repository with raw token generation/hashing.
type Service struct {
	repo Repository
}

// NewService builds a license Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GenerateToken issues a single-use activation token for productID,
// optionally bound to instanceID. The raw token is returned exactly once;
// only its hash is persisted.
func (s *Service) GenerateToken(ctx context.Context, productID string, instanceID *string) (rawToken string, token *Token, err error) {
	product, err := s.repo.FindProductByID(ctx, productID)
	if err != nil {
		return "", nil, err
	}

	raw, hash, err := crypto.GenerateToken(crypto.DefaultTokenBytes)
	if err != nil {
		return "", nil, fmt.Errorf("license: generate token: %w", err)
	}

	ttl := product.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	tok := &Token{
		ID:         tsid.Generate(),
		ProductID:  productID,
		InstanceID: instanceID,
		TokenHash:  hash,
		ExpiresAt:  time.Now().Add(ttl),
	}
	if err := s.repo.InsertToken(ctx, tok); err != nil {
		return "", nil, err
	}
	return raw, tok, nil
}

// ValidateAndConsume exchanges a raw bearer token for the blob (the
// product and token record) it authorizes, consuming it in the same
// transaction so a second call with the same raw token always fails.
func (s *Service) ValidateAndConsume(ctx context.Context, rawToken, clientIP string) (*Token, *Product, error) {
	hash := crypto.HashToken(rawToken)
	return s.repo.ValidateAndConsumeToken(ctx, hash, clientIP)
}

// Authorize validates a raw bearer token against an already-consumed token
// record, for the slot acquire/release endpoints where the token's single
// use was already spent by ValidateAndConsume during blob fetch.
func (s *Service) Authorize(ctx context.Context, rawToken string) (*Token, *Product, error) {
	hash := crypto.HashToken(rawToken)
	return s.repo.FindUsedToken(ctx, hash)
}

// AcquireSlot requests a concurrency slot for productID. A denied request
// (Granted = false) carries the RetryAfter the caller should wait before
// trying again.
func (s *Service) AcquireSlot(ctx context.Context, productID, hostname, ip string) (*AcquireOutcome, error) {
	return s.repo.AcquireSlot(ctx, productID, hostname, ip)
}

// ReleaseSlot releases a previously acquired slot. Releasing a slot that
// is already released or doesn't exist returns ErrSlotNotFound, which
// callers should treat as a non-fatal no-op rather than an error.
func (s *Service) ReleaseSlot(ctx context.Context, slotID, result string, elapsed time.Duration) error {
	return s.repo.ReleaseSlot(ctx, slotID, result, elapsed)
}
