// Package workflow holds the EmailWorkflow rule set and the Dispatcher that
// turns a domain event into one or more queued emails (spec.md §4.3).
package workflow

import "time"

// EmailWorkflow is a standing rule: "when trigger_event fires, queue
// template_name after delay_minutes, with these default variables."
// Multiple workflows may share a trigger_event; they fire in Priority order.
type EmailWorkflow struct {
	ID string `bson:"_id" json:"id"`

	TriggerEvent string `bson:"triggerEvent" json:"triggerEvent"`
	TemplateName string `bson:"templateName" json:"templateName"`

	// Priority orders enqueue calls when several workflows share a trigger;
	// lower fires first, matching EmailQueueRow's own priority ordering.
	Priority int `bson:"priority" json:"priority"`

	// DelayMinutes is added to now() to compute each queued row's
	// ScheduledFor. Nil means send as soon as the Batch Worker claims it.
	DelayMinutes *int `bson:"delayMinutes,omitempty" json:"delayMinutes,omitempty"`

	// Variables are merged under whatever the caller passes to Trigger;
	// caller-supplied keys win on conflict.
	Variables map[string]string `bson:"variables,omitempty" json:"variables,omitempty"`

	Enabled bool `bson:"enabled" json:"enabled"`

	// System workflows ship with the platform and cannot be deleted through
	// the admin surface, only disabled.
	System bool `bson:"system" json:"system"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
