// Package identity holds the Identity Sync Queue (spec.md §4.7): a
// durable, at-least-once queue of identity mutations waiting to be pushed
// to a downstream user directory.
package identity

import "time"

// Operation is the kind of identity mutation queued for a user.
type Operation string

const (
	OperationCreate        Operation = "create"
	OperationUpdatePassword Operation = "update_password"
	OperationDelete        Operation = "delete"
)

// Row is one queued identity mutation. Rows are upserted by
// (UserID, Operation): a later operation of the same kind supersedes an
// earlier one, while different operations for the same user coexist (e.g.
// update_password then delete both queue and both run).
type Row struct {
	ID       string `bson:"_id" json:"id"`
	UserID   string `bson:"userId" json:"userId"`
	Username string `bson:"username" json:"username"`

	// EncryptedPassword is ciphertext from internal/crypto's envelope; nil
	// for operations that don't carry a credential (e.g. delete).
	EncryptedPassword *string   `bson:"encryptedPassword,omitempty" json:"-"`
	Operation         Operation `bson:"operation" json:"operation"`

	Synced   bool       `bson:"synced" json:"synced"`
	SyncedAt *time.Time `bson:"syncedAt,omitempty" json:"syncedAt,omitempty"`

	// Failed marks a permanent (4xx-class) downstream rejection, distinct
	// from Synced = false, which just means "not yet attempted or retrying".
	Failed bool `bson:"failed" json:"failed"`

	RetryCount int    `bson:"retryCount" json:"retryCount"`
	LastError  string `bson:"lastError,omitempty" json:"lastError,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
