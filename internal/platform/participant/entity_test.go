package participant

import (
	"testing"
	"time"
)

func TestUser_IsActive(t *testing.T) {
	u := &User{Deactivated: false}
	if !u.IsActive() {
		t.Error("expected non-deactivated user to be active")
	}
	u.Deactivated = true
	if u.IsActive() {
		t.Error("expected deactivated user to be inactive")
	}
}

func TestUser_IsInviteeOrSponsor(t *testing.T) {
	cases := []struct {
		role Role
		want bool
	}{
		{RoleInvitee, true},
		{RoleSponsor, true},
		{RoleAdmin, false},
	}
	for _, c := range cases {
		u := &User{Role: c.role}
		if got := u.IsInviteeOrSponsor(); got != c.want {
			t.Errorf("role %q: got %v, want %v", c.role, got, c.want)
		}
	}
}

func TestEvent_DaysUntil(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &Event{StartDate: now.Add(72 * time.Hour)}
	if got := e.DaysUntil(now); got != 3 {
		t.Errorf("got %d days, want 3", got)
	}
}

func TestEvent_DaysUntil_Past(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	e := &Event{StartDate: now.Add(-48 * time.Hour)}
	if got := e.DaysUntil(now); got != -2 {
		t.Errorf("got %d days, want -2", got)
	}
}
