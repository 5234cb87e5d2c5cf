package instance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// digitalOceanStatusMap normalizes DigitalOcean droplet statuses to the
// canonical set. Unknown statuses fall back to StatusBuilding.
var digitalOceanStatusMap = map[string]Status{
	"new":     StatusBuilding,
	"active":  StatusActive,
	"off":     StatusShutoff,
	"archive": StatusDeleted,
}

// DigitalOceanProvider talks to the DigitalOcean droplets API (v2).
type DigitalOceanProvider struct {
	baseURL     string
	bearerToken string
	client      *http.Client
}

// NewDigitalOceanProvider builds a DigitalOceanProvider. baseURL defaults
// to the public API root when empty.
func NewDigitalOceanProvider(baseURL, bearerToken string) *DigitalOceanProvider {
	if baseURL == "" {
		baseURL = "https://api.digitalocean.com/v2"
	}
	return &DigitalOceanProvider{
		baseURL:     baseURL,
		bearerToken: bearerToken,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *DigitalOceanProvider) Name() Provider { return ProviderDigitalOcean }

func (p *DigitalOceanProvider) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("digitalocean: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("digitalocean: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.bearerToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("digitalocean: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("digitalocean: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("digitalocean: decode response: %w", err)
	}
	return nil
}

// Authenticate validates the configured bearer token against the account
// endpoint, the cheapest authenticated call the API exposes.
func (p *DigitalOceanProvider) Authenticate(ctx context.Context) error {
	return p.do(ctx, http.MethodGet, "/account", nil, nil)
}

func (p *DigitalOceanProvider) CreateInstance(ctx context.Context, params CreateInstanceParams) (string, error) {
	type dropletReq struct {
		Name     string   `json:"name"`
		Region   string   `json:"region,omitempty"`
		Size     string   `json:"size"`
		Image    string   `json:"image"`
		SSHKeys  []string `json:"ssh_keys,omitempty"`
		UserData string   `json:"user_data,omitempty"`
		VPCUUID  string   `json:"vpc_uuid,omitempty"`
	}
	req := dropletReq{
		Name:     params.Name,
		Region:   params.Region,
		Size:     params.Size,
		Image:    params.Image,
		UserData: string(params.UserData),
		VPCUUID:  params.Network,
	}
	if params.Key != "" {
		req.SSHKeys = []string{params.Key}
	}

	var resp struct {
		Droplet struct {
			ID int `json:"id"`
		} `json:"droplet"`
	}
	if err := p.do(ctx, http.MethodPost, "/droplets", req, &resp); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", resp.Droplet.ID), nil
}

func (p *DigitalOceanProvider) DeleteInstance(ctx context.Context, providerInstanceID string) error {
	return p.do(ctx, http.MethodDelete, "/droplets/"+providerInstanceID, nil, nil)
}

func (p *DigitalOceanProvider) GetInstanceStatus(ctx context.Context, providerInstanceID string) (NativeStatus, error) {
	var resp struct {
		Droplet NativeStatus `json:"droplet"`
	}
	if err := p.do(ctx, http.MethodGet, "/droplets/"+providerInstanceID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Droplet, nil
}

func (p *DigitalOceanProvider) ListSizes(ctx context.Context) ([]string, error) {
	var resp struct {
		Sizes []struct {
			Slug string `json:"slug"`
		} `json:"sizes"`
	}
	if err := p.do(ctx, http.MethodGet, "/sizes", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Sizes))
	for _, s := range resp.Sizes {
		out = append(out, s.Slug)
	}
	return out, nil
}

func (p *DigitalOceanProvider) ListImages(ctx context.Context) ([]string, error) {
	var resp struct {
		Images []struct {
			Slug string `json:"slug"`
		} `json:"images"`
	}
	if err := p.do(ctx, http.MethodGet, "/images", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Images))
	for _, i := range resp.Images {
		out = append(out, i.Slug)
	}
	return out, nil
}

func (p *DigitalOceanProvider) ListRegionsOrNetworks(ctx context.Context) ([]string, error) {
	var resp struct {
		Regions []struct {
			Slug string `json:"slug"`
		} `json:"regions"`
	}
	if err := p.do(ctx, http.MethodGet, "/regions", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Regions))
	for _, r := range resp.Regions {
		out = append(out, r.Slug)
	}
	return out, nil
}

func (p *DigitalOceanProvider) NormalizeStatus(native NativeStatus) Status {
	raw, _ := native["status"].(string)
	status, ok := digitalOceanStatusMap[raw]
	if !ok {
		return StatusBuilding
	}
	return status
}

func (p *DigitalOceanProvider) ExtractIPAddress(native NativeStatus) string {
	networks, _ := native["networks"].(map[string]any)
	if networks == nil {
		return ""
	}
	v4, _ := networks["v4"].([]any)
	var fallback string
	for _, raw := range v4 {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		addr, _ := entry["ip_address"].(string)
		if addr == "" {
			continue
		}
		if fallback == "" {
			fallback = addr
		}
		if t, _ := entry["type"].(string); t == "public" {
			return addr
		}
	}
	return fallback
}
