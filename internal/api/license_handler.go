package api

import (
	"errors"
	"net/http"
	"time"

	"go.redcell.dev/rangeops/internal/platform/license"
)

// LicenseHandler serves the bearer-token-authenticated license endpoints
// freshly provisioned instances call: blob fetch (one-shot token consume)
// and slot queue acquire/release (token already consumed, bearer-only).
type LicenseHandler struct {
	licenses *license.Service
}

func NewLicenseHandler(licenses *license.Service) *LicenseHandler {
	return &LicenseHandler{licenses: licenses}
}

// Blob handles GET /license/blob.
func (h *LicenseHandler) Blob(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		writeUnauthorized(w, "missing bearer token")
		return
	}

	clientIP := r.RemoteAddr
	_, product, err := h.licenses.ValidateAndConsume(r.Context(), raw, clientIP)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(product.Blob)
	case errors.Is(err, license.ErrTokenNotFound),
		errors.Is(err, license.ErrTokenUsed),
		errors.Is(err, license.ErrTokenExpired),
		errors.Is(err, license.ErrProductInactive),
		errors.Is(err, license.ErrProductNotFound):
		writeUnauthorized(w, "invalid or spent token")
	default:
		writeInternalError(w, "failed to fetch license blob")
	}
}

type acquireSlotRequest struct {
	Hostname string `json:"hostname"`
}

type acquireSlotResponse struct {
	Granted        bool   `json:"granted"`
	SlotID         string `json:"slotId,omitempty"`
	RetryAfterSecs int    `json:"retryAfterSeconds,omitempty"`
}

// Acquire handles POST /license/queue/acquire.
func (h *LicenseHandler) Acquire(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		writeUnauthorized(w, "missing bearer token")
		return
	}
	_, product, err := h.licenses.Authorize(r.Context(), raw)
	if err != nil {
		writeUnauthorized(w, "invalid bearer token")
		return
	}

	var req acquireSlotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	outcome, err := h.licenses.AcquireSlot(r.Context(), product.ID, req.Hostname, r.RemoteAddr)
	if err != nil {
		writeInternalError(w, "failed to acquire slot")
		return
	}

	resp := acquireSlotResponse{Granted: outcome.Granted}
	if outcome.Granted {
		resp.SlotID = outcome.Slot.ID
	} else {
		resp.RetryAfterSecs = int(outcome.RetryAfter / time.Second)
	}
	WriteJSON(w, http.StatusOK, resp)
}

type releaseSlotRequest struct {
	SlotID        string `json:"slotId"`
	Result        string `json:"result"`
	ElapsedMillis int64  `json:"elapsedMillis"`
}

// Release handles POST /license/queue/release.
func (h *LicenseHandler) Release(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		writeUnauthorized(w, "missing bearer token")
		return
	}
	if _, _, err := h.licenses.Authorize(r.Context(), raw); err != nil {
		writeUnauthorized(w, "invalid bearer token")
		return
	}

	var req releaseSlotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	elapsed := time.Duration(req.ElapsedMillis) * time.Millisecond
	err := h.licenses.ReleaseSlot(r.Context(), req.SlotID, req.Result, elapsed)
	if err != nil && !errors.Is(err, license.ErrSlotNotFound) {
		writeInternalError(w, "failed to release slot")
		return
	}
	// ErrSlotNotFound is treated as a non-fatal no-op (spec.md §4.8): an
	// already-released or unknown slot still reports success to the caller.
	WriteJSON(w, http.StatusOK, map[string]bool{"released": true})
}
