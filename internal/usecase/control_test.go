package usecase

import (
	"errors"
	"testing"
)

type fakeSkipper struct{ skips int }

func (f *fakeSkipper) Skip() { f.skips++ }

type fakeClearer struct {
	cleared int
	err     error
}

func (f *fakeClearer) ClearPending() (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.cleared++
	return 3, nil
}

func TestSkipAuthorization(t *testing.T) {
	tests := []struct {
		role    Role
		allowed bool
	}{
		{RoleViewer, false},
		{RoleModerator, true},
		{RoleBroadcaster, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			skipper := &fakeSkipper{}
			err := Skip{Worker: skipper}.Execute(tt.role)
			if tt.allowed {
				if err != nil || skipper.skips != 1 {
					t.Fatalf("err=%v skips=%d, want allowed", err, skipper.skips)
				}
				return
			}
			if !errors.Is(err, ErrNotAuthorized) || skipper.skips != 0 {
				t.Fatalf("err=%v skips=%d, want denied", err, skipper.skips)
			}
		})
	}
}

func TestClearAuthorization(t *testing.T) {
	tests := []struct {
		role    Role
		allowed bool
	}{
		{RoleViewer, false},
		{RoleModerator, false},
		{RoleBroadcaster, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			clearer := &fakeClearer{}
			removed, err := Clear{Store: clearer}.Execute(tt.role)
			if tt.allowed {
				if err != nil || removed != 3 {
					t.Fatalf("removed=%d err=%v, want allowed", removed, err)
				}
				return
			}
			if !errors.Is(err, ErrNotAuthorized) || clearer.cleared != 0 {
				t.Fatalf("err=%v cleared=%d, want denied", err, clearer.cleared)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"broadcaster", RoleBroadcaster},
		{" Moderator ", RoleModerator},
		{"viewer", RoleViewer},
		{"vip", RoleViewer},
		{"", RoleViewer},
	}
	for _, tt := range tests {
		if got := ParseRole(tt.in); got != tt.want {
			t.Errorf("ParseRole(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
