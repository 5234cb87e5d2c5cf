package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.redcell.dev/rangeops/internal/platform/emailqueue"
	"go.redcell.dev/rangeops/internal/platform/participant"
)

type fakeWorkflowRepo struct {
	byTrigger map[string][]*EmailWorkflow
}

func (f *fakeWorkflowRepo) FindEnabledByTrigger(ctx context.Context, triggerEvent string) ([]*EmailWorkflow, error) {
	return f.byTrigger[triggerEvent], nil
}
func (f *fakeWorkflowRepo) FindByID(ctx context.Context, id string) (*EmailWorkflow, error) { return nil, ErrNotFound }
func (f *fakeWorkflowRepo) Insert(ctx context.Context, wf *EmailWorkflow) error              { return nil }
func (f *fakeWorkflowRepo) Update(ctx context.Context, wf *EmailWorkflow) error              { return nil }
func (f *fakeWorkflowRepo) CreateSchema(ctx context.Context) error                           { return nil }

type fakeQueue struct {
	enqueued []*emailqueue.EnqueueRequest
}

func (f *fakeQueue) Enqueue(ctx context.Context, req *emailqueue.EnqueueRequest) (*emailqueue.Row, error) {
	f.enqueued = append(f.enqueued, req)
	return &emailqueue.Row{ID: "row-1"}, nil
}
func (f *fakeQueue) ClaimDue(ctx context.Context, limit int, now time.Time, batchID, workerID string) ([]*emailqueue.Row, error) {
	return nil, nil
}
func (f *fakeQueue) MarkSent(ctx context.Context, rowID, providerMessageID string) error { return nil }
func (f *fakeQueue) MarkFailed(ctx context.Context, rowID, errMsg string) error          { return nil }
func (f *fakeQueue) MarkCancelled(ctx context.Context, rowID string) error               { return nil }
func (f *fakeQueue) GetPendingFor(ctx context.Context, userID, templateName string) (*emailqueue.Row, error) {
	return nil, emailqueue.ErrNotFound
}
func (f *fakeQueue) GetRecentFor(ctx context.Context, userID, templateName string, since time.Time) (*emailqueue.Row, error) {
	return nil, emailqueue.ErrNotFound
}
func (f *fakeQueue) Stats(ctx context.Context) (*emailqueue.Stats, error)     { return &emailqueue.Stats{}, nil }
func (f *fakeQueue) RecordBatchLog(ctx context.Context, log *emailqueue.BatchLog) error { return nil }
func (f *fakeQueue) CreateSchema(ctx context.Context) error                  { return nil }

type fakeParticipants struct {
	users       map[string]*participant.User
	activeEvent *participant.Event
}

func (f *fakeParticipants) FindUserByID(ctx context.Context, id string) (*participant.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, participant.ErrNotFound
	}
	return u, nil
}
func (f *fakeParticipants) FindUserByEmailKey(ctx context.Context, emailKey string) (*participant.User, error) {
	return nil, participant.ErrNotFound
}
func (f *fakeParticipants) FindActiveUsersByRole(ctx context.Context, roles []participant.Role) ([]*participant.User, error) {
	return nil, nil
}
func (f *fakeParticipants) InsertUser(ctx context.Context, user *participant.User) error { return nil }
func (f *fakeParticipants) UpdateUser(ctx context.Context, user *participant.User) error { return nil }
func (f *fakeParticipants) FindEventByID(ctx context.Context, id string) (*participant.Event, error) {
	return nil, participant.ErrNotFound
}
func (f *fakeParticipants) FindActiveEvent(ctx context.Context) (*participant.Event, error) {
	if f.activeEvent == nil {
		return nil, participant.ErrNotFound
	}
	return f.activeEvent, nil
}
func (f *fakeParticipants) ActivateEvent(ctx context.Context, eventID string) error { return nil }
func (f *fakeParticipants) InsertEvent(ctx context.Context, event *participant.Event) error { return nil }
func (f *fakeParticipants) UpdateEvent(ctx context.Context, event *participant.Event) error { return nil }
func (f *fakeParticipants) FindParticipation(ctx context.Context, userID, eventID string) (*participant.EventParticipation, error) {
	return nil, participant.ErrNotFound
}
func (f *fakeParticipants) FindCandidatesWithoutParticipation(ctx context.Context, eventID string, roles []participant.Role) ([]*participant.User, error) {
	return nil, nil
}
func (f *fakeParticipants) FindParticipationsForEvent(ctx context.Context, eventID string) ([]*participant.EventParticipation, error) {
	return nil, nil
}
func (f *fakeParticipants) UpsertParticipation(ctx context.Context, p *participant.EventParticipation) error {
	return nil
}
func (f *fakeParticipants) MarkReminderSent(ctx context.Context, participationID string, stage int) error {
	return nil
}
func (f *fakeParticipants) CreateSchema(ctx context.Context) error { return nil }

type fakeAudit struct {
	entries []string
}

func (f *fakeAudit) LogSystem(ctx context.Context, entityType, entityID, operation string, operationData interface{}) {
	f.entries = append(f.entries, operation)
}

func delayMinutes(n int) *int { return &n }

func TestDispatcher_Trigger_EnqueuesPerWorkflowInPriorityOrder(t *testing.T) {
	workflows := &fakeWorkflowRepo{byTrigger: map[string][]*EmailWorkflow{
		"invite_sent": {
			{ID: "wf-1", TriggerEvent: "invite_sent", TemplateName: "invite_email", Priority: 1, Enabled: true},
			{ID: "wf-2", TriggerEvent: "invite_sent", TemplateName: "sponsor_notice", Priority: 2, Enabled: true, DelayMinutes: delayMinutes(60)},
		},
	}}
	queue := &fakeQueue{}
	users := &fakeParticipants{users: map[string]*participant.User{
		"user-1": {ID: "user-1", EmailKey: "a@example.com", DisplayName: "A", Role: participant.RoleInvitee},
	}}
	auditLog := &fakeAudit{}

	d := &Dispatcher{workflows: workflows, queue: queue, users: users, audit: auditLog}

	count, err := d.Trigger(context.Background(), "invite_sent", "user-1", map[string]string{"code": "X"}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, queue.enqueued, 2)
	assert.Equal(t, "invite_email", queue.enqueued[0].TemplateName)
	assert.Nil(t, queue.enqueued[0].ScheduledFor)
	assert.Equal(t, "sponsor_notice", queue.enqueued[1].TemplateName)
	assert.NotNil(t, queue.enqueued[1].ScheduledFor)
	assert.Contains(t, auditLog.entries, "workflow_trigger")
}

func TestDispatcher_Trigger_MergesVariablesCallerWins(t *testing.T) {
	workflows := &fakeWorkflowRepo{byTrigger: map[string][]*EmailWorkflow{
		"invite_sent": {
			{ID: "wf-1", TriggerEvent: "invite_sent", TemplateName: "invite_email", Priority: 1, Enabled: true,
				Variables: map[string]string{"event_name": "Default Con", "code": "DEFAULT"}},
		},
	}}
	queue := &fakeQueue{}
	users := &fakeParticipants{users: map[string]*participant.User{
		"user-1": {ID: "user-1", EmailKey: "a@example.com", Role: participant.RoleInvitee},
	}}
	d := &Dispatcher{workflows: workflows, queue: queue, users: users, audit: &fakeAudit{}}

	_, err := d.Trigger(context.Background(), "invite_sent", "user-1", map[string]string{"code": "CALLER"}, false)
	require.NoError(t, err)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "CALLER", queue.enqueued[0].Variables["code"])
	assert.Equal(t, "Default Con", queue.enqueued[0].Variables["event_name"])
}

func TestDispatcher_Trigger_DropsSilentlyInTestModeForNonSponsor(t *testing.T) {
	workflows := &fakeWorkflowRepo{byTrigger: map[string][]*EmailWorkflow{
		"invite_sent": {{ID: "wf-1", TriggerEvent: "invite_sent", TemplateName: "invite_email", Enabled: true}},
	}}
	queue := &fakeQueue{}
	users := &fakeParticipants{
		users:       map[string]*participant.User{"user-1": {ID: "user-1", Role: participant.RoleInvitee, IsSponsor: false}},
		activeEvent: &participant.Event{ID: "evt-1", TestMode: true},
	}
	auditLog := &fakeAudit{}
	d := &Dispatcher{workflows: workflows, queue: queue, users: users, audit: auditLog}

	count, err := d.Trigger(context.Background(), "invite_sent", "user-1", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, queue.enqueued)
	assert.Contains(t, auditLog.entries, "workflow_trigger_dropped_test_mode")
}

func TestDispatcher_Trigger_SponsorNotGatedInTestMode(t *testing.T) {
	workflows := &fakeWorkflowRepo{byTrigger: map[string][]*EmailWorkflow{
		"invite_sent": {{ID: "wf-1", TriggerEvent: "invite_sent", TemplateName: "invite_email", Enabled: true}},
	}}
	queue := &fakeQueue{}
	users := &fakeParticipants{
		users:       map[string]*participant.User{"user-1": {ID: "user-1", Role: participant.RoleSponsor, IsSponsor: true}},
		activeEvent: &participant.Event{ID: "evt-1", TestMode: true},
	}
	d := &Dispatcher{workflows: workflows, queue: queue, users: users, audit: &fakeAudit{}}

	count, err := d.Trigger(context.Background(), "invite_sent", "user-1", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDispatcher_Trigger_NoMatchingWorkflowsReturnsZero(t *testing.T) {
	workflows := &fakeWorkflowRepo{byTrigger: map[string][]*EmailWorkflow{}}
	queue := &fakeQueue{}
	users := &fakeParticipants{}
	d := &Dispatcher{workflows: workflows, queue: queue, users: users, audit: &fakeAudit{}}

	count, err := d.Trigger(context.Background(), "unknown_event", "user-1", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
