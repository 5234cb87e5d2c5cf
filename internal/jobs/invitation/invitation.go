// Package invitation implements the Invitation Job (spec.md §4.5): turning
// an event activation or test-mode toggle into a batch of invitation
// emails for every eligible candidate that hasn't been invited yet.
package invitation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.redcell.dev/rangeops/internal/platform/participant"
	"go.redcell.dev/rangeops/internal/scheduler"
)

// TriggerEvent is the Workflow Dispatcher trigger name fired per candidate.
const TriggerEvent = "invitation_sent"

// debounceDelay is the one-shot delay used to coalesce rapid test-mode
// toggles into a single run (spec.md §4.5).
const debounceDelay = 30 * time.Second

// jobIDPrefix namespaces the Scheduler job id so that re-registering a
// one-shot for the same event id replaces any prior pending instance,
// regardless of which test/prod variant triggered it.
const jobIDPrefix = "invitation:"

// JobID returns the Scheduler job id used to debounce triggers for eventID.
func JobID(eventID string) string { return jobIDPrefix + eventID }

// dispatcher is the subset of workflow.Dispatcher the job depends on.
type dispatcher interface {
	Trigger(ctx context.Context, eventName, userID string, variables map[string]string, force bool) (int, error)
}

// Job runs the invitation batch for one event.
type Job struct {
	repo       participant.Repository
	dispatcher dispatcher
}

// New builds an invitation Job.
func New(repo participant.Repository, d dispatcher) *Job {
	return &Job{repo: repo, dispatcher: d}
}

// ScheduleDebounced registers a 30-second one-shot with the Scheduler so
// that rapid successive activations/toggles for the same event collapse
// into a single run (spec.md §4.5's cancellation contract: scheduling a new
// one-shot for the same event id replaces any prior pending instance).
func ScheduleDebounced(s *scheduler.Scheduler, eventID string, run func(ctx context.Context) error) error {
	return s.Register(scheduler.Job{
		ID:      JobID(eventID),
		Name:    "invitation:" + eventID,
		Trigger: scheduler.Trigger{Kind: scheduler.TriggerOneShot, At: time.Now().UTC().Add(debounceDelay)},
		Fn:      run,
	})
}

// Run executes the invitation batch for eventID: reload the event, build
// the candidate set, and enqueue one invitation email per candidate.
func (j *Job) Run(ctx context.Context, eventID string) error {
	event, err := j.repo.FindEventByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("invitation job: load event: %w", err)
	}

	// Step 1: skip entirely if the event isn't test-mode and registration
	// isn't open — nothing to invite anyone to yet.
	if !event.TestMode && !event.RegistrationOpen {
		slog.Info("invitation job: skipping, event not open", "event_id", eventID)
		return nil
	}

	roles := []participant.Role{participant.RoleInvitee, participant.RoleSponsor}
	if event.TestMode {
		roles = []participant.Role{participant.RoleSponsor}
	}

	candidates, err := j.repo.FindCandidatesWithoutParticipation(ctx, eventID, roles)
	if err != nil {
		return fmt.Errorf("invitation job: find candidates: %w", err)
	}

	enqueued := 0
	for _, user := range candidates {
		if !user.IsActive() {
			continue
		}
		variables := map[string]string{
			"event_id": event.ID,
			"year":     fmt.Sprintf("%d", event.Year),
		}
		if _, err := j.dispatcher.Trigger(ctx, TriggerEvent, user.ID, variables, false); err != nil {
			slog.Error("invitation job: trigger failed", "user_id", user.ID, "event_id", eventID, "error", err)
			continue
		}

		now := time.Now()
		p := &participant.EventParticipation{
			UserID:       user.ID,
			EventID:      event.ID,
			Status:       participant.ParticipationInvited,
			InviteSentAt: &now,
		}
		if err := j.repo.UpsertParticipation(ctx, p); err != nil {
			slog.Error("invitation job: upsert participation failed", "user_id", user.ID, "event_id", eventID, "error", err)
			continue
		}
		enqueued++
	}

	slog.Info("invitation job complete", "event_id", eventID, "candidates", len(candidates), "enqueued", enqueued)
	return nil
}
