package models

import (
	"testing"
)

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected bool
	}{
		{"admin role", RoleAdmin, true},
		{"driver role", RoleDriver, true},
		{"lowercase admin", "admin", false},
		{"invalid role", "invalid", false},
		{"empty role", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidRole(tt.role)
			if result != tt.expected {
				t.Errorf("IsValidRole(%s) = %v, want %v", tt.role, result, tt.expected)
			}
		})
	}
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		in   Role
		want Role
	}{
		{"ADMIN", RoleAdmin},
		{" admin ", RoleAdmin},
		{"driver", RoleDriver},
		{"", RoleDriver},
		{"mechanic", RoleDriver},
	}
	for _, tt := range tests {
		if got := NormalizeRole(tt.in); got != tt.want {
			t.Errorf("NormalizeRole(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestUser_IsAdmin(t *testing.T) {
	tests := []struct {
		name     string
		user     User
		expected bool
	}{
		{"admin", User{Role: RoleAdmin}, true},
		{"lowercase admin", User{Role: "admin"}, true},
		{"driver", User{Role: RoleDriver}, false},
		{"super user driver", User{Role: RoleDriver, IsSuperUser: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.IsAdmin(); got != tt.expected {
				t.Errorf("IsAdmin() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUser_CanCreateAdmin(t *testing.T) {
	admins := func(n int) []User {
		out := []User{{Username: "root", Role: RoleAdmin, IsSuperUser: true}, {Username: "d", Role: RoleDriver}}
		for i := 0; i < n; i++ {
			out = append(out, User{Username: string(rune('a' + i)), Role: RoleAdmin})
		}
		return out
	}

	admin := User{Username: "a", Role: RoleAdmin}
	super := User{Username: "root", Role: RoleAdmin, IsSuperUser: true}
	driver := User{Username: "d", Role: RoleDriver}

	tests := []struct {
		name     string
		user     User
		users    []User
		expected bool
	}{
		{"admin below cap", admin, admins(2), true},
		{"admin at cap", admin, admins(3), false},
		{"admin above cap", admin, admins(4), false},
		{"super user at cap", super, admins(3), true},
		{"super user far above cap", super, admins(10), true},
		{"driver never", driver, admins(0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.CanCreateAdmin(tt.users, DefaultAdminCap); got != tt.expected {
				t.Errorf("CanCreateAdmin() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCountAdmins_IgnoresSuperUsers(t *testing.T) {
	users := []User{
		{Username: "root", Role: RoleAdmin, IsSuperUser: true},
		{Username: "a", Role: RoleAdmin},
		{Username: "b", Role: "admin"},
		{Username: "c", Role: RoleDriver},
	}
	if got := CountAdmins(users); got != 2 {
		t.Errorf("CountAdmins() = %d, want 2", got)
	}
}

func TestNewSession_Normalizes(t *testing.T) {
	s := NewSession(LoginResponse{
		Token: "tok",
		User:  User{Username: "  alice ", Role: "admin"},
	})
	if s.Username != "alice" {
		t.Errorf("Expected Username to be 'alice', got %q", s.Username)
	}
	if s.Role != RoleAdmin {
		t.Errorf("Expected Role to be RoleAdmin, got %s", s.Role)
	}
	if s.Token != "tok" {
		t.Errorf("Expected Token to be kept, got %q", s.Token)
	}
	if u := s.User(); u.Username != "alice" || !u.IsAdmin() {
		t.Errorf("unexpected user view %+v", u)
	}
}
