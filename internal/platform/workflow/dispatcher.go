package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.redcell.dev/rangeops/internal/platform/audit"
	"go.redcell.dev/rangeops/internal/platform/emailqueue"
	"go.redcell.dev/rangeops/internal/platform/participant"
)

// auditEntityType is the EntityType recorded on every Dispatcher audit entry.
const auditEntityType = "Workflow"

// auditLogger is the subset of *audit.Service the Dispatcher depends on,
// narrowed to an interface so it can be faked in tests without a database.
type auditLogger interface {
	LogSystem(ctx context.Context, entityType, entityID, operation string, operationData interface{})
}

// Dispatcher is the sole chokepoint through which a domain event becomes
// queued email. It owns test-mode gating: every other caller (jobs,
// handlers) triggers workflows through here rather than enqueuing directly.
type Dispatcher struct {
	workflows Repository
	queue     emailqueue.Repository
	users     participant.Repository
	audit     auditLogger
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(workflows Repository, queue emailqueue.Repository, users participant.Repository, auditSvc *audit.Service) *Dispatcher {
	return &Dispatcher{workflows: workflows, queue: queue, users: users, audit: auditSvc}
}

// Trigger fires every enabled EmailWorkflow registered for eventName,
// enqueueing one EmailQueueRow per matching workflow for userID.
//
// If the currently active Event is in test mode and userID does not belong
// to a sponsor, every workflow for this trigger is dropped silently: an
// audit entry is still recorded, but Trigger returns 0 and no error. This is
// the one and only place test-mode gating happens (spec.md §4.3).
func (d *Dispatcher) Trigger(ctx context.Context, eventName, userID string, variables map[string]string, force bool) (int, error) {
	workflows, err := d.workflows.FindEnabledByTrigger(ctx, eventName)
	if err != nil {
		return 0, err
	}
	if len(workflows) == 0 {
		return 0, nil
	}

	user, err := d.users.FindUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}

	if gated, err := d.isTestModeGated(ctx, user); err != nil {
		return 0, err
	} else if gated {
		d.audit.LogSystem(ctx, auditEntityType, eventName, "workflow_trigger_dropped_test_mode", map[string]any{
			"triggerEvent": eventName,
			"userId":       userID,
		})
		return 0, nil
	}

	now := time.Now()
	enqueued := 0
	for _, wf := range workflows {
		merged := mergeVariables(wf.Variables, variables)

		var scheduledFor *time.Time
		if wf.DelayMinutes != nil {
			t := now.Add(time.Duration(*wf.DelayMinutes) * time.Minute)
			scheduledFor = &t
		}

		_, err := d.queue.Enqueue(ctx, &emailqueue.EnqueueRequest{
			UserID:       user.ID,
			Email:        user.EmailKey,
			DisplayName:  user.DisplayName,
			TemplateName: wf.TemplateName,
			Variables:    merged,
			Priority:     wf.Priority,
			ScheduledFor: scheduledFor,
			Force:        force,
		})
		if err != nil {
			slog.Error("workflow dispatcher: enqueue failed", "workflow_id", wf.ID, "trigger_event", eventName, "user_id", userID, "error", err)
			continue
		}
		enqueued++
	}

	d.audit.LogSystem(ctx, auditEntityType, eventName, "workflow_trigger", map[string]any{
		"triggerEvent":  eventName,
		"userId":        userID,
		"enqueuedCount": enqueued,
		"force":         force,
	})

	return enqueued, nil
}

// isTestModeGated reports whether the active event is in test mode and user
// is not a sponsor. No active event means no gating.
func (d *Dispatcher) isTestModeGated(ctx context.Context, user *participant.User) (bool, error) {
	event, err := d.users.FindActiveEvent(ctx)
	if errors.Is(err, participant.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return event.TestMode && !user.IsSponsor, nil
}

// mergeVariables layers override on top of defaults; override always wins.
func mergeVariables(defaults, override map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(override))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
