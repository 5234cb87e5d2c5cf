// Package instance implements the Instance Reconciler (spec.md §4.9): a
// periodic loop that polls each cloud provider for the live status of
// provisioned instances and normalizes it into a canonical set.
package instance

import "time"

// Status is the canonical, provider-agnostic instance lifecycle state.
type Status string

const (
	StatusBuilding Status = "BUILDING"
	StatusActive   Status = "ACTIVE"
	StatusError    Status = "ERROR"
	StatusShutoff  Status = "SHUTOFF"
	StatusDeleted  Status = "DELETED"
)

// Provider identifies which cloud backend provisioned an instance.
type Provider string

const (
	ProviderOpenStack    Provider = "openstack"
	ProviderDigitalOcean Provider = "digitalocean"
	ProviderNoop         Provider = "noop"
)

// Instance is one cloud-provisioned host tracked by the reconciler.
type Instance struct {
	ID                 string     `bson:"_id" json:"id"`
	Provider           Provider   `bson:"provider" json:"provider"`
	ProviderInstanceID string     `bson:"providerInstanceId,omitempty" json:"providerInstanceId,omitempty"`
	Hostname           string     `bson:"hostname" json:"hostname"`
	Status             Status     `bson:"status" json:"status"`
	PrimaryIPv4        string     `bson:"primaryIpv4,omitempty" json:"primaryIpv4,omitempty"`
	Deleted            bool       `bson:"deleted" json:"deleted"`
	LastSyncedAt       time.Time  `bson:"lastSyncedAt,omitempty" json:"lastSyncedAt,omitempty"`
	LastSyncError      string     `bson:"lastSyncError,omitempty" json:"lastSyncError,omitempty"`
	UserID             *string    `bson:"userId,omitempty" json:"userId,omitempty"`
	EventID            *string    `bson:"eventId,omitempty" json:"eventId,omitempty"`
	TemplateID         *string    `bson:"templateId,omitempty" json:"templateId,omitempty"`
	VPNConfig          string     `bson:"vpnConfig,omitempty" json:"-"`
	ConfigTokenHash    *string    `bson:"configTokenHash,omitempty" json:"-"`
	ConfigTokenExpires *time.Time `bson:"configTokenExpires,omitempty" json:"-"`
	CreatedAt          time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// IsTerminal reports whether status is a stable end state the
// reconciler no longer needs to poll.
func (s Status) IsTerminal() bool {
	return s == StatusDeleted
}
