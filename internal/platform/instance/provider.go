package instance

import "context"

// CreateInstanceParams are the arguments to CloudProvider.CreateInstance
// (spec.md §6: create_instance(name, size, image, region?, network?, key?,
// user_data?)). Region, Network, and Key are optional; an empty value means
// "use the provider's default." UserData is opaque bytes — already rendered
// and base64-encoded by RenderCloudInit when the provider requires it.
type CreateInstanceParams struct {
	Name     string
	Size     string
	Image    string
	Region   string
	Network  string
	Key      string
	UserData []byte
}

// NativeStatus is the provider-specific payload GetInstanceStatus returns,
// passed back unexamined into NormalizeStatus and ExtractIPAddress. Its
// shape differs per provider (a Nova server object, a DigitalOcean droplet
// object), which is why those two methods take it rather than a shared
// struct.
type NativeStatus map[string]any

// CloudProvider is the contract every cloud backend implements (spec.md
// §6): authenticate, create/delete an instance, poll its status, list the
// provider's sizes/images/regions, and normalize a raw status payload into
// the canonical Status set and its public IPv4.
type CloudProvider interface {
	Name() Provider

	Authenticate(ctx context.Context) error
	CreateInstance(ctx context.Context, params CreateInstanceParams) (providerInstanceID string, err error)
	DeleteInstance(ctx context.Context, providerInstanceID string) error
	GetInstanceStatus(ctx context.Context, providerInstanceID string) (NativeStatus, error)
	ListSizes(ctx context.Context) ([]string, error)
	ListImages(ctx context.Context) ([]string, error)
	ListRegionsOrNetworks(ctx context.Context) ([]string, error)

	NormalizeStatus(native NativeStatus) Status
	ExtractIPAddress(native NativeStatus) string
}

// StatusReport bundles one poll's normalized status and IP — the shape the
// Reconciler persists.
type StatusReport struct {
	Status      Status
	PrimaryIPv4 string
}

// PollStatus runs a CloudProvider's get-then-normalize sequence (spec.md
// §6's get_instance_status + normalize_status + extract_ip_address) and
// returns the result the Reconciler writes back to the repository.
func PollStatus(ctx context.Context, p CloudProvider, providerInstanceID string) (*StatusReport, error) {
	native, err := p.GetInstanceStatus(ctx, providerInstanceID)
	if err != nil {
		return nil, err
	}
	return &StatusReport{
		Status:      p.NormalizeStatus(native),
		PrimaryIPv4: p.ExtractIPAddress(native),
	}, nil
}
