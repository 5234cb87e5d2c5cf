package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.redcell.dev/rangeops/internal/mailer"
	"go.redcell.dev/rangeops/internal/platform/participant"
)

// WebhookHandler receives Mailer delivery-status callbacks (bounce, spam
// report, unsubscribe) and updates the owning user's EmailStatus
// (spec.md §6, §8 scenario 6).
type WebhookHandler struct {
	verifier *mailer.WebhookVerifier
	users    participant.Repository
}

func NewWebhookHandler(verifier *mailer.WebhookVerifier, users participant.Repository) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, users: users}
}

type webhookBatch struct {
	Events []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type              string `json:"type"`
	Email             string `json:"email"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	Timestamp         string `json:"timestamp"`
	Reason            string `json:"reason,omitempty"`
}

var eventStatus = map[string]participant.EmailStatus{
	"bounce":      participant.EmailStatusBounced,
	"spamreport":  participant.EmailStatusSpamReported,
	"unsubscribe": participant.EmailStatusUnsubscribed,
}

// Deliveries handles the Mailer's webhook POST.
func (h *WebhookHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	signature := r.Header.Get(mailer.SignatureHeader)
	timestampHeader := r.Header.Get(mailer.TimestampHeader)
	if signature == "" || timestampHeader == "" {
		writeUnauthorized(w, "missing webhook signature")
		return
	}
	if !h.verifier.Verify(string(body), timestampHeader, signature) {
		writeUnauthorized(w, "invalid webhook signature")
		return
	}

	ts, err := time.Parse(time.RFC3339Nano, timestampHeader)
	if err != nil {
		writeBadRequest(w, "invalid timestamp")
		return
	}
	if err := mailer.CheckFreshness(ts, time.Now()); err != nil {
		writeUnauthorized(w, "stale webhook timestamp")
		return
	}

	var batch webhookBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	for _, evt := range batch.Events {
		h.applyEvent(r, evt)
	}
	WriteJSON(w, http.StatusOK, map[string]int{"processed": len(batch.Events)})
}

func (h *WebhookHandler) applyEvent(r *http.Request, evt webhookEvent) {
	status, ok := eventStatus[strings.ToLower(evt.Type)]
	if !ok {
		slog.Warn("mailer webhook: unknown event type", "type", evt.Type, "email", evt.Email)
		return
	}

	emailKey := strings.ToLower(strings.TrimSpace(evt.Email))
	user, err := h.users.FindUserByEmailKey(r.Context(), emailKey)
	if err != nil {
		if !errors.Is(err, participant.ErrNotFound) {
			slog.Error("mailer webhook: find user failed", "email", evt.Email, "error", err)
		}
		return
	}

	user.EmailStatus = status
	if err := h.users.UpdateUser(r.Context(), user); err != nil {
		slog.Error("mailer webhook: update user email status failed", "user_id", user.ID, "error", err)
	}
}
