package client

import (
	"testing"
	"time"
)

func authedSession(t *testing.T, role string) *Session {
	t.Helper()
	sess := NewSession(NewMemStorage())
	token := makeToken(t, time.Now().Add(time.Hour))
	if err := sess.Set(token, Identity{ID: "user-1", Name: "Jane", Role: role}); err != nil {
		t.Fatalf("Set(): %v", err)
	}
	return sess
}

func TestCheckAccess_unauthenticated(t *testing.T) {
	sess := NewSession(NewMemStorage())
	if v := CheckAccess(sess, "ADMIN"); v.Decision != Redirect {
		t.Errorf("Decision = %v; want Redirect", v.Decision)
	}
	if v := CheckAccess(sess); v.Decision != Redirect {
		t.Errorf("empty allow-list: Decision = %v; want Redirect", v.Decision)
	}
}

func TestCheckAccess(t *testing.T) {
	tests := []struct {
		name    string
		role    string
		allowed []string
		want    Decision
	}{
		{name: "exact match", role: "ROLE_ADMIN", allowed: []string{"ADMIN"}, want: Granted},
		{name: "prefixed allow-list", role: "ROLE_ADMIN", allowed: []string{"ROLE_ADMIN"}, want: Granted},
		{name: "lowercase allow-list", role: "ROLE_ADMIN", allowed: []string{"admin"}, want: Granted},
		{name: "bare session role", role: "ADMIN", allowed: []string{"ROLE_ADMIN"}, want: Granted},
		{name: "one of several", role: "ROLE_TEACHER", allowed: []string{"ADMIN", "TEACHER"}, want: Granted},
		{name: "role not allowed", role: "ROLE_ADMIN", allowed: []string{"TEACHER"}, want: Denied},
		{name: "no partial match", role: "ROLE_ADMIN", allowed: []string{"ADMINISTRATOR"}, want: Denied},
		{name: "no prefix match", role: "ROLE_ADMIN", allowed: []string{"ADM"}, want: Denied},
		{name: "empty allow-list admits", role: "ROLE_STUDENT", want: Granted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := authedSession(t, tt.role)
			v := CheckAccess(sess, tt.allowed...)
			if v.Decision != tt.want {
				t.Errorf("Decision = %v; want %v", v.Decision, tt.want)
			}
			// the verdict reports the normalized role for denial screens
			if want := "ROLE_"; len(tt.role) > len(want) && tt.role[:len(want)] == want {
				if v.Role != tt.role[len(want):] {
					t.Errorf("Role = %q; want %q", v.Role, tt.role[len(want):])
				}
			}
		})
	}
}

func TestCheckAccess_deniedShowsRole(t *testing.T) {
	sess := authedSession(t, "ROLE_ADMIN")
	v := CheckAccess(sess, "TEACHER")
	if v.Decision != Denied {
		t.Fatalf("Decision = %v; want Denied", v.Decision)
	}
	if v.Role != "ADMIN" {
		t.Errorf("Role = %q; want ADMIN", v.Role)
	}
}
