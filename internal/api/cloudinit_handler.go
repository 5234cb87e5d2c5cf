package api

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	"go.redcell.dev/rangeops/internal/platform/instance"
)

// CloudInitHandler serves the single-use VPN config fetch endpoint freshly
// provisioned instances call during boot (spec.md §6).
type CloudInitHandler struct {
	instances instance.Repository
}

func NewCloudInitHandler(instances instance.Repository) *CloudInitHandler {
	return &CloudInitHandler{instances: instances}
}

// VPNConfig handles GET /cloud-init/vpn-config.
func (h *CloudInitHandler) VPNConfig(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		writeUnauthorized(w, "missing bearer token")
		return
	}
	hash := sha256.Sum256([]byte(raw))
	tokenHash := hex.EncodeToString(hash[:])

	inst, err := h.instances.ConsumeConfigToken(r.Context(), tokenHash)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(inst.VPNConfig))
	case errors.Is(err, instance.ErrNotFound), errors.Is(err, instance.ErrConfigTokenExpired):
		writeUnauthorized(w, "unknown or expired token")
	case errors.Is(err, instance.ErrNoVPNConfig):
		writeNotFound(w, "no vpn config assigned")
	default:
		writeInternalError(w, "failed to fetch vpn config")
	}
}
