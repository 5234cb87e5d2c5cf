package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.redcell.dev/rangeops/internal/mailer"
	"go.redcell.dev/rangeops/internal/platform/participant"
)

const webhookTestSecret = "whsec_test_secret"

// fakeParticipantRepo implements just enough of participant.Repository for
// the webhook handler: users live in an in-memory map keyed by email key,
// and methods that nothing in this test needs are stubs.
type fakeParticipantRepo struct {
	byEmailKey map[string]*participant.User
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{byEmailKey: map[string]*participant.User{}}
}

func (f *fakeParticipantRepo) FindUserByID(ctx context.Context, id string) (*participant.User, error) {
	for _, u := range f.byEmailKey {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, participant.ErrNotFound
}

func (f *fakeParticipantRepo) FindUserByEmailKey(ctx context.Context, emailKey string) (*participant.User, error) {
	u, ok := f.byEmailKey[emailKey]
	if !ok {
		return nil, participant.ErrNotFound
	}
	return u, nil
}

func (f *fakeParticipantRepo) FindActiveUsersByRole(ctx context.Context, roles []participant.Role) ([]*participant.User, error) {
	return nil, nil
}

func (f *fakeParticipantRepo) InsertUser(ctx context.Context, user *participant.User) error {
	f.byEmailKey[user.EmailKey] = user
	return nil
}

func (f *fakeParticipantRepo) UpdateUser(ctx context.Context, user *participant.User) error {
	f.byEmailKey[user.EmailKey] = user
	return nil
}

func (f *fakeParticipantRepo) FindEventByID(ctx context.Context, id string) (*participant.Event, error) {
	return nil, participant.ErrNotFound
}
func (f *fakeParticipantRepo) FindActiveEvent(ctx context.Context) (*participant.Event, error) {
	return nil, participant.ErrNotFound
}
func (f *fakeParticipantRepo) ActivateEvent(ctx context.Context, eventID string) error { return nil }
func (f *fakeParticipantRepo) InsertEvent(ctx context.Context, event *participant.Event) error {
	return nil
}
func (f *fakeParticipantRepo) UpdateEvent(ctx context.Context, event *participant.Event) error {
	return nil
}
func (f *fakeParticipantRepo) FindParticipation(ctx context.Context, userID, eventID string) (*participant.EventParticipation, error) {
	return nil, participant.ErrNotFound
}
func (f *fakeParticipantRepo) FindCandidatesWithoutParticipation(ctx context.Context, eventID string, roles []participant.Role) ([]*participant.User, error) {
	return nil, nil
}
func (f *fakeParticipantRepo) FindParticipationsForEvent(ctx context.Context, eventID string) ([]*participant.EventParticipation, error) {
	return nil, nil
}
func (f *fakeParticipantRepo) UpsertParticipation(ctx context.Context, p *participant.EventParticipation) error {
	return nil
}
func (f *fakeParticipantRepo) MarkReminderSent(ctx context.Context, participationID string, stage int) error {
	return nil
}
func (f *fakeParticipantRepo) CreateSchema(ctx context.Context) error { return nil }

// signWebhook reimplements WebhookVerifier's HMAC scheme so tests can mint
// signatures for arbitrary timestamps without reaching into mailer's
// unexported sign method.
func signWebhook(secret, timestamp, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newSignedWebhookRequest(t *testing.T, payload string, ts time.Time) *http.Request {
	t.Helper()
	timestamp := ts.UTC().Truncate(time.Millisecond).Format(time.RFC3339Nano)
	sig := signWebhook(webhookTestSecret, timestamp, payload)
	req := httptest.NewRequest(http.MethodPost, "/mailer/webhook", strings.NewReader(payload))
	req.Header.Set(mailer.SignatureHeader, sig)
	req.Header.Set(mailer.TimestampHeader, timestamp)
	return req
}

func TestWebhookHandler_Deliveries_UpdatesEmailStatusForEachEventType(t *testing.T) {
	cases := []struct {
		eventType string
		want      participant.EmailStatus
	}{
		{"bounce", participant.EmailStatusBounced},
		{"spamreport", participant.EmailStatusSpamReported},
		{"unsubscribe", participant.EmailStatusUnsubscribed},
	}

	for _, tc := range cases {
		repo := newFakeParticipantRepo()
		repo.byEmailKey["person@example.com"] = &participant.User{ID: "u1", EmailKey: "person@example.com", EmailStatus: participant.EmailStatusOK}
		h := NewWebhookHandler(mailer.NewWebhookVerifier(webhookTestSecret), repo)

		batch := webhookBatch{Events: []webhookEvent{{Type: tc.eventType, Email: "Person@Example.com"}}}
		payload, err := json.Marshal(batch)
		require.NoError(t, err)

		req := newSignedWebhookRequest(t, string(payload), time.Now())
		rec := httptest.NewRecorder()

		h.Deliveries(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tc.want, repo.byEmailKey["person@example.com"].EmailStatus)
	}
}

func TestWebhookHandler_Deliveries_RejectsInvalidSignature(t *testing.T) {
	repo := newFakeParticipantRepo()
	h := NewWebhookHandler(mailer.NewWebhookVerifier(webhookTestSecret), repo)

	payload := `{"events":[]}`
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	req := httptest.NewRequest(http.MethodPost, "/mailer/webhook", strings.NewReader(payload))
	req.Header.Set(mailer.SignatureHeader, "deadbeef")
	req.Header.Set(mailer.TimestampHeader, timestamp)
	rec := httptest.NewRecorder()

	h.Deliveries(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookHandler_Deliveries_RejectsStaleTimestamp(t *testing.T) {
	repo := newFakeParticipantRepo()
	h := NewWebhookHandler(mailer.NewWebhookVerifier(webhookTestSecret), repo)

	payload := `{"events":[]}`
	req := newSignedWebhookRequest(t, payload, time.Now().Add(-time.Hour))
	rec := httptest.NewRecorder()

	h.Deliveries(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookHandler_Deliveries_RejectsMalformedBody(t *testing.T) {
	repo := newFakeParticipantRepo()
	h := NewWebhookHandler(mailer.NewWebhookVerifier(webhookTestSecret), repo)

	payload := `not-json`
	req := newSignedWebhookRequest(t, payload, time.Now())
	rec := httptest.NewRecorder()

	h.Deliveries(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookHandler_Deliveries_UnknownEmailIsNonFatalNoOp(t *testing.T) {
	repo := newFakeParticipantRepo()
	h := NewWebhookHandler(mailer.NewWebhookVerifier(webhookTestSecret), repo)

	batch := webhookBatch{Events: []webhookEvent{{Type: "bounce", Email: "ghost@example.com"}}}
	payload, err := json.Marshal(batch)
	require.NoError(t, err)

	req := newSignedWebhookRequest(t, string(payload), time.Now())
	rec := httptest.NewRecorder()

	h.Deliveries(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
