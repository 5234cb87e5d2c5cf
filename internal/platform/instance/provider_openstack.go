package instance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// openStackStatusMap normalizes Nova server statuses to the canonical set.
// Anything not listed here falls back to StatusBuilding, since an unknown
// transitional status is more likely "still coming up" than an error.
var openStackStatusMap = map[string]Status{
	"BUILD":        StatusBuilding,
	"ACTIVE":       StatusActive,
	"ERROR":        StatusError,
	"SHUTOFF":      StatusShutoff,
	"DELETED":      StatusDeleted,
	"SOFT_DELETED": StatusDeleted,
}

// OpenStackProvider talks to a Nova-compatible compute API (v2.1).
type OpenStackProvider struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewOpenStackProvider builds an OpenStackProvider. baseURL is the compute
// API's endpoint root (e.g. "https://compute.example.com/v2.1"); authToken
// is a Keystone token sent as X-Auth-Token.
func NewOpenStackProvider(baseURL, authToken string) *OpenStackProvider {
	return &OpenStackProvider{
		baseURL:   baseURL,
		authToken: authToken,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *OpenStackProvider) Name() Provider { return ProviderOpenStack }

func (p *OpenStackProvider) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("openstack: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("openstack: build request: %w", err)
	}
	req.Header.Set("X-Auth-Token", p.authToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("openstack: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("openstack: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("openstack: decode response: %w", err)
	}
	return nil
}

// Authenticate validates the configured Keystone token against the compute
// API's rate-limit endpoint, the cheapest authenticated call Nova exposes.
func (p *OpenStackProvider) Authenticate(ctx context.Context) error {
	return p.do(ctx, http.MethodGet, "/limits", nil, nil)
}

func (p *OpenStackProvider) CreateInstance(ctx context.Context, params CreateInstanceParams) (string, error) {
	type serverReq struct {
		Name      string              `json:"name"`
		FlavorRef string              `json:"flavorRef"`
		ImageRef  string              `json:"imageRef"`
		Networks  []map[string]string `json:"networks,omitempty"`
		KeyName   string              `json:"key_name,omitempty"`
		UserData  string              `json:"user_data,omitempty"`
	}
	req := serverReq{
		Name:      params.Name,
		FlavorRef: params.Size,
		ImageRef:  params.Image,
		KeyName:   params.Key,
		UserData:  string(params.UserData),
	}
	if params.Network != "" {
		req.Networks = []map[string]string{{"uuid": params.Network}}
	}

	var resp struct {
		Server struct {
			ID string `json:"id"`
		} `json:"server"`
	}
	if err := p.do(ctx, http.MethodPost, "/servers", map[string]any{"server": req}, &resp); err != nil {
		return "", err
	}
	return resp.Server.ID, nil
}

func (p *OpenStackProvider) DeleteInstance(ctx context.Context, providerInstanceID string) error {
	return p.do(ctx, http.MethodDelete, "/servers/"+providerInstanceID, nil, nil)
}

func (p *OpenStackProvider) GetInstanceStatus(ctx context.Context, providerInstanceID string) (NativeStatus, error) {
	var resp struct {
		Server NativeStatus `json:"server"`
	}
	if err := p.do(ctx, http.MethodGet, "/servers/"+providerInstanceID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Server, nil
}

func (p *OpenStackProvider) ListSizes(ctx context.Context) ([]string, error) {
	var resp struct {
		Flavors []struct {
			Name string `json:"name"`
		} `json:"flavors"`
	}
	if err := p.do(ctx, http.MethodGet, "/flavors", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Flavors))
	for _, f := range resp.Flavors {
		out = append(out, f.Name)
	}
	return out, nil
}

func (p *OpenStackProvider) ListImages(ctx context.Context) ([]string, error) {
	var resp struct {
		Images []struct {
			Name string `json:"name"`
		} `json:"images"`
	}
	if err := p.do(ctx, http.MethodGet, "/images", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Images))
	for _, i := range resp.Images {
		out = append(out, i.Name)
	}
	return out, nil
}

func (p *OpenStackProvider) ListRegionsOrNetworks(ctx context.Context) ([]string, error) {
	var resp struct {
		Networks []struct {
			Label string `json:"label"`
		} `json:"networks"`
	}
	if err := p.do(ctx, http.MethodGet, "/os-networks", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Networks))
	for _, n := range resp.Networks {
		out = append(out, n.Label)
	}
	return out, nil
}

func (p *OpenStackProvider) NormalizeStatus(native NativeStatus) Status {
	raw, _ := native["status"].(string)
	status, ok := openStackStatusMap[raw]
	if !ok {
		return StatusBuilding
	}
	return status
}

func (p *OpenStackProvider) ExtractIPAddress(native NativeStatus) string {
	addresses, _ := native["addresses"].(map[string]any)
	for _, raw := range addresses {
		entries, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, e := range entries {
			entry, ok := e.(map[string]any)
			if !ok {
				continue
			}
			version, _ := entry["version"].(float64)
			addr, _ := entry["addr"].(string)
			if version == 4 && addr != "" {
				return addr
			}
		}
	}
	return ""
}
