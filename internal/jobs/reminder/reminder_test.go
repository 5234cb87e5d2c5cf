package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.redcell.dev/rangeops/internal/platform/participant"
)

type fakeRepo struct {
	event          *participant.Event
	participations []*participant.EventParticipation
	marked         map[string][]int
}

func newFakeRepo() *fakeRepo { return &fakeRepo{marked: map[string][]int{}} }

func (f *fakeRepo) FindUserByID(ctx context.Context, id string) (*participant.User, error) { return nil, nil }
func (f *fakeRepo) FindUserByEmailKey(ctx context.Context, emailKey string) (*participant.User, error) {
	return nil, nil
}
func (f *fakeRepo) FindActiveUsersByRole(ctx context.Context, roles []participant.Role) ([]*participant.User, error) {
	return nil, nil
}
func (f *fakeRepo) InsertUser(ctx context.Context, user *participant.User) error { return nil }
func (f *fakeRepo) UpdateUser(ctx context.Context, user *participant.User) error { return nil }
func (f *fakeRepo) FindEventByID(ctx context.Context, id string) (*participant.Event, error) {
	return f.event, nil
}
func (f *fakeRepo) FindActiveEvent(ctx context.Context) (*participant.Event, error) { return f.event, nil }
func (f *fakeRepo) ActivateEvent(ctx context.Context, eventID string) error         { return nil }
func (f *fakeRepo) InsertEvent(ctx context.Context, event *participant.Event) error { return nil }
func (f *fakeRepo) UpdateEvent(ctx context.Context, event *participant.Event) error { return nil }
func (f *fakeRepo) FindParticipation(ctx context.Context, userID, eventID string) (*participant.EventParticipation, error) {
	return nil, participant.ErrNotFound
}
func (f *fakeRepo) FindCandidatesWithoutParticipation(ctx context.Context, eventID string, roles []participant.Role) ([]*participant.User, error) {
	return nil, nil
}
func (f *fakeRepo) FindParticipationsForEvent(ctx context.Context, eventID string) ([]*participant.EventParticipation, error) {
	return f.participations, nil
}
func (f *fakeRepo) UpsertParticipation(ctx context.Context, p *participant.EventParticipation) error {
	return nil
}
func (f *fakeRepo) MarkReminderSent(ctx context.Context, participationID string, stage int) error {
	f.marked[participationID] = append(f.marked[participationID], stage)
	return nil
}
func (f *fakeRepo) CreateSchema(ctx context.Context) error { return nil }

type fakeDispatcher struct {
	triggers []string
}

func (f *fakeDispatcher) Trigger(ctx context.Context, eventName, userID string, variables map[string]string, force bool) (int, error) {
	f.triggers = append(f.triggers, eventName)
	return 1, nil
}

func TestJob_Run_Stage1FiresWhenGateOpen(t *testing.T) {
	invited := time.Now().Add(-8 * 24 * time.Hour)
	repo := newFakeRepo()
	repo.event = &participant.Event{ID: "evt-1", StartDate: time.Now().Add(30 * 24 * time.Hour)}
	repo.participations = []*participant.EventParticipation{
		{ID: "p1", UserID: "u1", EventID: "evt-1", InviteSentAt: &invited},
	}
	disp := &fakeDispatcher{}
	job := New(repo, disp, DefaultConfig())

	require.NoError(t, job.Run(context.Background(), "evt-1"))
	assert.Contains(t, disp.triggers, TriggerEvent(1))
	assert.Equal(t, []int{1}, repo.marked["p1"])
}

func TestJob_Run_Stage1SkippedIfAlreadySent(t *testing.T) {
	invited := time.Now().Add(-8 * 24 * time.Hour)
	alreadySent := time.Now().Add(-time.Hour)
	repo := newFakeRepo()
	repo.event = &participant.Event{ID: "evt-1", StartDate: time.Now().Add(30 * 24 * time.Hour)}
	repo.participations = []*participant.EventParticipation{
		{ID: "p1", UserID: "u1", EventID: "evt-1", InviteSentAt: &invited, Reminder1SentAt: &alreadySent},
	}
	disp := &fakeDispatcher{}
	job := New(repo, disp, DefaultConfig())

	require.NoError(t, job.Run(context.Background(), "evt-1"))
	assert.Empty(t, disp.triggers)
}

func TestJob_Run_Stage1SkippedIfEventTooSoon(t *testing.T) {
	invited := time.Now().Add(-8 * 24 * time.Hour)
	repo := newFakeRepo()
	repo.event = &participant.Event{ID: "evt-1", StartDate: time.Now().Add(5 * 24 * time.Hour)}
	repo.participations = []*participant.EventParticipation{
		{ID: "p1", UserID: "u1", EventID: "evt-1", InviteSentAt: &invited},
	}
	disp := &fakeDispatcher{}
	job := New(repo, disp, DefaultConfig())

	require.NoError(t, job.Run(context.Background(), "evt-1"))
	assert.Empty(t, disp.triggers)
}

func TestJob_Run_Stage3FiresWhenEventImminent(t *testing.T) {
	repo := newFakeRepo()
	repo.event = &participant.Event{ID: "evt-1", StartDate: time.Now().Add(2 * 24 * time.Hour)}
	repo.participations = []*participant.EventParticipation{
		{ID: "p1", UserID: "u1", EventID: "evt-1"},
	}
	disp := &fakeDispatcher{}
	job := New(repo, disp, DefaultConfig())

	require.NoError(t, job.Run(context.Background(), "evt-1"))
	assert.Contains(t, disp.triggers, TriggerEvent(3))
	assert.Equal(t, []int{3}, repo.marked["p1"])
}

func TestJob_Run_Stage3SkippedIfAlreadySent(t *testing.T) {
	alreadySent := time.Now().Add(-time.Hour)
	repo := newFakeRepo()
	repo.event = &participant.Event{ID: "evt-1", StartDate: time.Now().Add(2 * 24 * time.Hour)}
	repo.participations = []*participant.EventParticipation{
		{ID: "p1", UserID: "u1", EventID: "evt-1", Reminder3SentAt: &alreadySent},
	}
	disp := &fakeDispatcher{}
	job := New(repo, disp, DefaultConfig())

	require.NoError(t, job.Run(context.Background(), "evt-1"))
	assert.Empty(t, disp.triggers)
}

func TestJob_Run_MultipleStagesCanFireInOnePass(t *testing.T) {
	// Stage 1 and stage 2 gates can both be open simultaneously if the
	// reminder job runs infrequently; each has its own idempotency column.
	invited := time.Now().Add(-20 * 24 * time.Hour)
	repo := newFakeRepo()
	repo.event = &participant.Event{ID: "evt-1", StartDate: time.Now().Add(25 * 24 * time.Hour)}
	repo.participations = []*participant.EventParticipation{
		{ID: "p1", UserID: "u1", EventID: "evt-1", InviteSentAt: &invited},
	}
	disp := &fakeDispatcher{}
	job := New(repo, disp, DefaultConfig())

	require.NoError(t, job.Run(context.Background(), "evt-1"))
	assert.Contains(t, disp.triggers, TriggerEvent(1))
	assert.Contains(t, disp.triggers, TriggerEvent(2))
	assert.ElementsMatch(t, []int{1, 2}, repo.marked["p1"])
}
