package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.redcell.dev/rangeops/internal/platform/instance"
)

type fakeInstanceRepo struct {
	byTokenHash map[string]*instance.Instance
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{byTokenHash: map[string]*instance.Instance{}}
}

func (f *fakeInstanceRepo) FindPollable(ctx context.Context) ([]*instance.Instance, error) { return nil, nil }
func (f *fakeInstanceRepo) UpdateStatus(ctx context.Context, id string, status instance.Status, ip string) error {
	return nil
}
func (f *fakeInstanceRepo) RecordSyncError(ctx context.Context, id, errMsg string) error { return nil }
func (f *fakeInstanceRepo) Insert(ctx context.Context, inst *instance.Instance) error    { return nil }
func (f *fakeInstanceRepo) FindByID(ctx context.Context, id string) (*instance.Instance, error) {
	return nil, instance.ErrNotFound
}
func (f *fakeInstanceRepo) CreateSchema(ctx context.Context) error { return nil }

func (f *fakeInstanceRepo) ConsumeConfigToken(ctx context.Context, tokenHash string) (*instance.Instance, error) {
	inst, ok := f.byTokenHash[tokenHash]
	if !ok {
		return nil, instance.ErrNotFound
	}
	if inst.ConfigTokenExpires == nil || inst.ConfigTokenExpires.Before(time.Now()) {
		return nil, instance.ErrConfigTokenExpired
	}
	if inst.VPNConfig == "" {
		return nil, instance.ErrNoVPNConfig
	}
	delete(f.byTokenHash, tokenHash)
	return inst, nil
}

func hashRawToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func TestCloudInitHandler_VPNConfig_ReturnsConfigOnValidToken(t *testing.T) {
	repo := newFakeInstanceRepo()
	expires := time.Now().Add(time.Hour)
	repo.byTokenHash[hashRawToken("raw-token")] = &instance.Instance{ID: "i1", VPNConfig: "wireguard-config-body", ConfigTokenExpires: &expires}
	h := NewCloudInitHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/cloud-init/vpn-config", nil)
	req.Header.Set("Authorization", "Bearer raw-token")
	rec := httptest.NewRecorder()

	h.VPNConfig(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "wireguard-config-body", rec.Body.String())
}

func TestCloudInitHandler_VPNConfig_RejectsMissingBearer(t *testing.T) {
	h := NewCloudInitHandler(newFakeInstanceRepo())
	req := httptest.NewRequest(http.MethodGet, "/cloud-init/vpn-config", nil)
	rec := httptest.NewRecorder()

	h.VPNConfig(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCloudInitHandler_VPNConfig_RejectsUnknownToken(t *testing.T) {
	h := NewCloudInitHandler(newFakeInstanceRepo())
	req := httptest.NewRequest(http.MethodGet, "/cloud-init/vpn-config", nil)
	req.Header.Set("Authorization", "Bearer does-not-exist")
	rec := httptest.NewRecorder()

	h.VPNConfig(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCloudInitHandler_VPNConfig_404sWhenNoConfigAssigned(t *testing.T) {
	repo := newFakeInstanceRepo()
	expires := time.Now().Add(time.Hour)
	repo.byTokenHash[hashRawToken("raw-token")] = &instance.Instance{ID: "i1", ConfigTokenExpires: &expires}
	h := NewCloudInitHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/cloud-init/vpn-config", nil)
	req.Header.Set("Authorization", "Bearer raw-token")
	rec := httptest.NewRecorder()

	h.VPNConfig(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCloudInitHandler_VPNConfig_TokenIsSingleUse(t *testing.T) {
	repo := newFakeInstanceRepo()
	expires := time.Now().Add(time.Hour)
	repo.byTokenHash[hashRawToken("raw-token")] = &instance.Instance{ID: "i1", VPNConfig: "conf", ConfigTokenExpires: &expires}
	h := NewCloudInitHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/cloud-init/vpn-config", nil)
	req.Header.Set("Authorization", "Bearer raw-token")
	rec := httptest.NewRecorder()
	h.VPNConfig(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec2 := httptest.NewRecorder()
	h.VPNConfig(rec2, req)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)
}
