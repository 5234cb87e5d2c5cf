package mailer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"
)

// freshnessWindow and futureSkewTolerance bound how old or how far in the
// future a webhook timestamp may be before it is rejected as stale or
// clock-skewed (spec.md §6).
const (
	freshnessWindow     = 10 * time.Minute
	futureSkewTolerance = 60 * time.Second
)

// ErrWebhookStale is returned when a timestamp falls outside the
// freshness window.
var ErrWebhookStale = errors.New("mailer: webhook timestamp outside freshness window")

const (
	// SignatureHeader carries the HMAC-SHA256 signature of a delivery webhook.
	SignatureHeader = "X-Mailer-Signature"

	// TimestampHeader carries the ISO8601 timestamp the signature covers.
	TimestampHeader = "X-Mailer-Timestamp"
)

// WebhookVerifier verifies HMAC-SHA256 signed delivery-status webhooks from
// the upstream mail provider (spec.md §6).
//
// The signature covers timestamp+payload, signed with the shared secret.
type WebhookVerifier struct {
	secret string
}

// NewWebhookVerifier creates a verifier bound to the configured webhook secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Verify checks a webhook signature in constant time.
func (v *WebhookVerifier) Verify(payload, timestamp, signature string) bool {
	expected := v.sign(timestamp, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// CheckFreshness rejects a timestamp older than freshnessWindow or more
// than futureSkewTolerance ahead of now.
func CheckFreshness(ts time.Time, now time.Time) error {
	if ts.Before(now.Add(-freshnessWindow)) {
		return ErrWebhookStale
	}
	if ts.After(now.Add(futureSkewTolerance)) {
		return ErrWebhookStale
	}
	return nil
}

// Sign computes the signature a correctly-configured sender would produce,
// used by tests and by any internal re-signing of forwarded webhooks.
func (v *WebhookVerifier) Sign(payload string) (signature, timestamp string) {
	timestamp = time.Now().UTC().Truncate(time.Millisecond).Format(time.RFC3339Nano)
	return v.sign(timestamp, payload), timestamp
}

func (v *WebhookVerifier) sign(timestamp, payload string) string {
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(timestamp + payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
