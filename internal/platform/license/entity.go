// Package license implements the License Slot Manager and its Tokens
// (spec.md §4.8): single-use activation tokens, and a per-product cap on
// how many instances may hold a concurrent license slot at once.
package license

import "time"

// Product configures one licensed product's limits. Code is the unique
// name spec.md §3 calls "name"; Blob is the opaque license payload handed
// out verbatim by the /license/blob endpoint once a token is consumed.
type Product struct {
	ID            string        `bson:"_id" json:"id"`
	Code          string        `bson:"code" json:"code"`
	Blob          []byte        `bson:"blob,omitempty" json:"-"`
	Active        bool          `bson:"active" json:"active"`
	MaxConcurrent int           `bson:"maxConcurrent" json:"maxConcurrent"`
	TokenTTL      time.Duration `bson:"tokenTtl" json:"tokenTtl"`
	SlotTTL       time.Duration `bson:"slotTtl" json:"slotTtl"`
	CreatedAt     time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// Token is a single-use activation credential. Only its SHA-256 hash is
// ever persisted; the raw value is returned once by Generate and never
// stored.
type Token struct {
	ID         string     `bson:"_id" json:"id"`
	ProductID  string     `bson:"productId" json:"productId"`
	InstanceID *string    `bson:"instanceId,omitempty" json:"instanceId,omitempty"`
	TokenHash  string     `bson:"tokenHash" json:"-"`
	ExpiresAt  time.Time  `bson:"expiresAt" json:"expiresAt"`
	Used       bool       `bson:"used" json:"used"`
	UsedAt     *time.Time `bson:"usedAt,omitempty" json:"usedAt,omitempty"`
	UsedByIP   string     `bson:"usedByIp,omitempty" json:"usedByIp,omitempty"`
	CreatedAt  time.Time  `bson:"createdAt" json:"createdAt"`
}

// SlotStatus is the lifecycle state of one acquired concurrency slot.
type SlotStatus string

const (
	SlotStatusActive   SlotStatus = "active"
	SlotStatusReleased SlotStatus = "released"
	SlotStatusExpired  SlotStatus = "expired"
)

// Slot is one concurrent-use reservation against a Product's
// MaxConcurrent cap.
type Slot struct {
	ID         string     `bson:"_id" json:"id"`
	ProductID  string     `bson:"productId" json:"productId"`
	Hostname   string     `bson:"hostname" json:"hostname"`
	IP         string     `bson:"ip" json:"ip"`
	Status     SlotStatus `bson:"status" json:"status"`
	AcquiredAt time.Time  `bson:"acquiredAt" json:"acquiredAt"`
	ReleasedAt *time.Time `bson:"releasedAt,omitempty" json:"releasedAt,omitempty"`
	// Result and ElapsedMillis are recorded by Release and are informational
	// only; they don't affect slot accounting.
	Result        string `bson:"result,omitempty" json:"result,omitempty"`
	ElapsedMillis int64  `bson:"elapsedMillis,omitempty" json:"elapsedMillis,omitempty"`
}
