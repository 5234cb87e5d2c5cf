// Package participant holds the core identity and event roster data model
// (spec.md §3): User, Event, and EventParticipation. The Workflow
// Dispatcher, Invitation Job, and Reminder Job all read and write through
// this package's Repository.
package participant

import "time"

// Role is a User's place in the system.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleSponsor Role = "sponsor"
	RoleInvitee Role = "invitee"
)

// EmailStatus tracks deliverability signals from Mailer webhooks.
type EmailStatus string

const (
	EmailStatusOK           EmailStatus = "OK"
	EmailStatusBounced      EmailStatus = "BOUNCED"
	EmailStatusSpamReported EmailStatus = "SPAM_REPORTED"
	EmailStatusUnsubscribed EmailStatus = "UNSUBSCRIBED"
)

// User is a platform identity: admin, sponsor, or invitee.
type User struct {
	ID string `bson:"_id" json:"id"`

	// EmailKey is the normalized (lowercased, domain-canonicalized) email,
	// unique across all users.
	EmailKey    string `bson:"emailKey" json:"emailKey"`
	DisplayName string `bson:"displayName" json:"displayName"`
	Role        Role   `bson:"role" json:"role"`

	// IsSponsor is derived from Role but kept as its own field so
	// test-mode gating (spec.md §4.3) and sponsor rollup queries don't
	// need to special-case role transitions.
	IsSponsor bool `bson:"isSponsor" json:"isSponsor"`

	// SponsorID optionally links an invitee to the sponsor who invited
	// them. Acyclic by policy, not enforced (spec.md §9 open invariant).
	SponsorID string `bson:"sponsorId,omitempty" json:"sponsorId,omitempty"`

	// EncryptedExternalPassword is ciphertext produced by internal/crypto's
	// envelope, present only for users with an externally-synced account.
	EncryptedExternalPassword string `bson:"encryptedExternalPassword,omitempty" json:"-"`

	// LocalPasswordHash is a bcrypt hash for local-auth fallback.
	LocalPasswordHash string `bson:"localPasswordHash,omitempty" json:"-"`

	EmailStatus EmailStatus `bson:"emailStatus" json:"emailStatus"`

	// Deactivated is a soft-delete flag; the core never physically deletes users.
	Deactivated bool `bson:"deactivated" json:"deactivated"`

	// ConfirmationSentAt gates the Invitation Job candidate set (spec.md §4.5).
	ConfirmationSentAt *time.Time `bson:"confirmationSentAt,omitempty" json:"confirmationSentAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsActive reports whether a user is eligible for Invitation/Reminder processing.
func (u *User) IsActive() bool { return !u.Deactivated }

// IsInviteeOrSponsor reports whether the role is one Invitation targets.
func (u *User) IsInviteeOrSponsor() bool {
	return u.Role == RoleInvitee || u.Role == RoleSponsor
}

// Event is one iteration of the sponsored gathering this system runs
// invitations and reminders for. At most one Event has Active = true.
type Event struct {
	ID   string `bson:"_id" json:"id"`
	Year int    `bson:"year" json:"year"`
	Slug string `bson:"slug" json:"slug"`

	StartDate time.Time `bson:"startDate" json:"startDate"`
	EndDate   time.Time `bson:"endDate" json:"endDate"`

	Active           bool `bson:"active" json:"active"`
	RegistrationOpen bool `bson:"registrationOpen" json:"registrationOpen"`
	TestMode         bool `bson:"testMode" json:"testMode"`

	TermsVersion string `bson:"termsVersion" json:"termsVersion"`
	TermsBody    string `bson:"termsBody,omitempty" json:"termsBody,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// DaysUntil returns the number of whole days between now and the event's
// start date, used by the Reminder Job's stage-3 gate.
func (e *Event) DaysUntil(now time.Time) int {
	d := e.StartDate.Sub(now)
	return int(d.Hours() / 24)
}

// ParticipationStatus is the lifecycle state of a user's relationship to an event.
type ParticipationStatus string

const (
	ParticipationInvited    ParticipationStatus = "invited"
	ParticipationConfirmed  ParticipationStatus = "confirmed"
	ParticipationDeclined   ParticipationStatus = "declined"
	ParticipationNoResponse ParticipationStatus = "no_response"
)

// EventParticipation is the (user, event) pair record, unique per pair.
type EventParticipation struct {
	ID      string `bson:"_id" json:"id"`
	UserID  string `bson:"userId" json:"userId"`
	EventID string `bson:"eventId" json:"eventId"`

	Status ParticipationStatus `bson:"status" json:"status"`

	InviteSentAt    *time.Time `bson:"inviteSentAt,omitempty" json:"inviteSentAt,omitempty"`
	Reminder1SentAt *time.Time `bson:"reminder1SentAt,omitempty" json:"reminder1SentAt,omitempty"`
	Reminder2SentAt *time.Time `bson:"reminder2SentAt,omitempty" json:"reminder2SentAt,omitempty"`
	Reminder3SentAt *time.Time `bson:"reminder3SentAt,omitempty" json:"reminder3SentAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
