// Package reminder implements the Reminder Job (spec.md §4.6): a
// three-stage, idempotent nudge sequence sent to invited participants as
// an event approaches.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.redcell.dev/rangeops/internal/platform/participant"
)

// TriggerEvent returns the Workflow Dispatcher trigger name for stage.
func TriggerEvent(stage int) string {
	return fmt.Sprintf("reminder_stage_%d", stage)
}

// StageConfig holds the thresholds for reminder stages 1 and 2, which
// share the same gate shape: elapsed-since-invite AND a floor on days
// remaining before the event.
type StageConfig struct {
	DaysAfterInvite    int
	MinDaysBeforeEvent int
}

// Config holds every stage's thresholds. Stage 3 fires on a ceiling of
// days remaining rather than elapsed time since invite.
type Config struct {
	Stage1 StageConfig
	Stage2 StageConfig

	// Stage3DaysBeforeEvent is the ceiling: stage 3 fires once days-until
	// drops to or below this value.
	Stage3DaysBeforeEvent int
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		Stage1:                StageConfig{DaysAfterInvite: 7, MinDaysBeforeEvent: 21},
		Stage2:                StageConfig{DaysAfterInvite: 14, MinDaysBeforeEvent: 10},
		Stage3DaysBeforeEvent: 3,
	}
}

// dispatcher is the subset of workflow.Dispatcher the job depends on.
type dispatcher interface {
	Trigger(ctx context.Context, eventName, userID string, variables map[string]string, force bool) (int, error)
}

// Job scans participations for an event and fires whichever reminder
// stage's gate is newly satisfied.
type Job struct {
	repo       participant.Repository
	dispatcher dispatcher
	config     Config
}

// New builds a reminder Job.
func New(repo participant.Repository, d dispatcher, config Config) *Job {
	return &Job{repo: repo, dispatcher: d, config: config}
}

// Run scans every EventParticipation for eventID and enqueues the
// appropriate stage reminder for any participation whose gate is
// satisfied and whose sent-at column for that stage is still unset.
func (j *Job) Run(ctx context.Context, eventID string) error {
	event, err := j.repo.FindEventByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("reminder job: load event: %w", err)
	}

	participations, err := j.repo.FindParticipationsForEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("reminder job: find participations: %w", err)
	}

	now := time.Now()
	daysUntil := event.DaysUntil(now)
	sent := map[int]int{}

	for _, p := range participations {
		for stage := 1; stage <= 3; stage++ {
			if !j.gateOpen(p, stage, now, daysUntil) {
				continue
			}
			if err := j.fireStage(ctx, p, stage); err != nil {
				slog.Error("reminder job: fire stage failed", "stage", stage, "user_id", p.UserID, "event_id", eventID, "error", err)
				continue
			}
			sent[stage]++
		}
	}

	slog.Info("reminder job complete", "event_id", eventID, "participations", len(participations),
		"stage1_sent", sent[1], "stage2_sent", sent[2], "stage3_sent", sent[3])
	return nil
}

// gateOpen evaluates a single stage's condition for one participation,
// including the idempotency check against that stage's sent-at column.
func (j *Job) gateOpen(p *participant.EventParticipation, stage int, now time.Time, daysUntil int) bool {
	switch stage {
	case 1:
		if p.Reminder1SentAt != nil || p.InviteSentAt == nil {
			return false
		}
		sinceInvite := now.Sub(*p.InviteSentAt)
		return sinceInvite >= time.Duration(j.config.Stage1.DaysAfterInvite)*24*time.Hour &&
			daysUntil >= j.config.Stage1.MinDaysBeforeEvent
	case 2:
		if p.Reminder2SentAt != nil || p.InviteSentAt == nil {
			return false
		}
		sinceInvite := now.Sub(*p.InviteSentAt)
		return sinceInvite >= time.Duration(j.config.Stage2.DaysAfterInvite)*24*time.Hour &&
			daysUntil >= j.config.Stage2.MinDaysBeforeEvent
	case 3:
		if p.Reminder3SentAt != nil {
			return false
		}
		return daysUntil <= j.config.Stage3DaysBeforeEvent
	default:
		return false
	}
}

func (j *Job) fireStage(ctx context.Context, p *participant.EventParticipation, stage int) error {
	variables := map[string]string{"event_id": p.EventID, "stage": fmt.Sprintf("%d", stage)}
	if _, err := j.dispatcher.Trigger(ctx, TriggerEvent(stage), p.UserID, variables, false); err != nil {
		return err
	}
	return j.repo.MarkReminderSent(ctx, p.ID, stage)
}
