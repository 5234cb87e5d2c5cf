package instance

import "context"

// NoopProvider always reports StatusActive with no IP change and never
// talks to a real backend. Useful for local development and tests where no
// cloud credentials are configured.
type NoopProvider struct{}

func NewNoopProvider() *NoopProvider { return &NoopProvider{} }

func (p *NoopProvider) Name() Provider { return ProviderNoop }

func (p *NoopProvider) Authenticate(ctx context.Context) error { return nil }

func (p *NoopProvider) CreateInstance(ctx context.Context, params CreateInstanceParams) (string, error) {
	return "noop-" + params.Name, nil
}

func (p *NoopProvider) DeleteInstance(ctx context.Context, providerInstanceID string) error {
	return nil
}

func (p *NoopProvider) GetInstanceStatus(ctx context.Context, providerInstanceID string) (NativeStatus, error) {
	return NativeStatus{"status": "active"}, nil
}

func (p *NoopProvider) ListSizes(ctx context.Context) ([]string, error) {
	return []string{"noop-small"}, nil
}

func (p *NoopProvider) ListImages(ctx context.Context) ([]string, error) {
	return []string{"noop-image"}, nil
}

func (p *NoopProvider) ListRegionsOrNetworks(ctx context.Context) ([]string, error) {
	return []string{"noop-region"}, nil
}

func (p *NoopProvider) NormalizeStatus(native NativeStatus) Status { return StatusActive }

func (p *NoopProvider) ExtractIPAddress(native NativeStatus) string { return "" }
