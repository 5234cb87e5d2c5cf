package invitation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.redcell.dev/rangeops/internal/platform/participant"
)

type fakeRepo struct {
	event          *participant.Event
	candidates     []*participant.User
	rolesRequested []participant.Role
	upserted       []*participant.EventParticipation
}

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
	f.rolesRequested = roles
	return f.candidates, nil
}
func (f *fakeRepo) FindParticipationsForEvent(ctx context.Context, eventID string) ([]*participant.EventParticipation, error) {
	return nil, nil
}
func (f *fakeRepo) UpsertParticipation(ctx context.Context, p *participant.EventParticipation) error {
	f.upserted = append(f.upserted, p)
	return nil
}
func (f *fakeRepo) MarkReminderSent(ctx context.Context, participationID string, stage int) error {
	return nil
}
func (f *fakeRepo) CreateSchema(ctx context.Context) error { return nil }

type fakeDispatcher struct {
	calls []string
}

func (f *fakeDispatcher) Trigger(ctx context.Context, eventName, userID string, variables map[string]string, force bool) (int, error) {
	f.calls = append(f.calls, userID)
	return 1, nil
}

func TestJob_Run_EnqueuesPerCandidateAndMarksInvited(t *testing.T) {
	repo := &fakeRepo{
		event: &participant.Event{ID: "evt-1", Year: 2026, RegistrationOpen: true},
		candidates: []*participant.User{
			{ID: "u1", Role: participant.RoleInvitee},
			{ID: "u2", Role: participant.RoleInvitee},
		},
	}
	disp := &fakeDispatcher{}
	job := New(repo, disp)

	err := job.Run(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Len(t, disp.calls, 2)
	assert.Len(t, repo.upserted, 2)
	assert.Equal(t, participant.ParticipationInvited, repo.upserted[0].Status)
	assert.NotNil(t, repo.upserted[0].InviteSentAt)
}

func TestJob_Run_TestModeRestrictsToSponsorRole(t *testing.T) {
	repo := &fakeRepo{event: &participant.Event{ID: "evt-1", TestMode: true}}
	disp := &fakeDispatcher{}
	job := New(repo, disp)

	require.NoError(t, job.Run(context.Background(), "evt-1"))
	assert.Equal(t, []participant.Role{participant.RoleSponsor}, repo.rolesRequested)
}

func TestJob_Run_SkipsWhenEventClosedAndNotTestMode(t *testing.T) {
	repo := &fakeRepo{event: &participant.Event{ID: "evt-1", TestMode: false, RegistrationOpen: false}}
	disp := &fakeDispatcher{}
	job := New(repo, disp)

	require.NoError(t, job.Run(context.Background(), "evt-1"))
	assert.Nil(t, repo.rolesRequested)
	assert.Empty(t, disp.calls)
}

func TestJob_Run_SkipsDeactivatedCandidates(t *testing.T) {
	repo := &fakeRepo{
		event:      &participant.Event{ID: "evt-1", RegistrationOpen: true},
		candidates: []*participant.User{{ID: "u1", Deactivated: true}},
	}
	disp := &fakeDispatcher{}
	job := New(repo, disp)

	require.NoError(t, job.Run(context.Background(), "evt-1"))
	assert.Empty(t, disp.calls)
}
