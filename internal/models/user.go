package models

import (
	"strings"
)

// Role represents user roles in the system
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleDriver Role = "DRIVER"
)

// DefaultAdminCap is the number of non-super admins a non-super admin may coexist with
// before creating further admins is refused.
const DefaultAdminCap = 3

// User represents an account as reported by the remote service.
type User struct {
	Username    string `bson:"username" json:"username"`
	Role        Role   `bson:"role" json:"role"`
	IsSuperUser bool   `bson:"is_super_user" json:"isSuperUser"`
}

// UserDraft is the payload for registering a new account.
type UserDraft struct {
	Username    string `json:"username"`
	Role        Role   `json:"role"`
	IsSuperUser bool   `json:"isSuperUser,omitempty"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token string `json:"token,omitempty"`
	User  User   `json:"user"`
}

// RegisterRequest is sent by an admin to create another account.
type RegisterRequest struct {
	AdminUsername string    `json:"adminUsername"`
	User          UserDraft `json:"user"`
	Password      string    `json:"password"`
}

// Session is the normalized profile of the signed-in user. It is the only state
// persisted on the client.
type Session struct {
	Username    string `bson:"username" json:"username"`
	Role        Role   `bson:"role" json:"role"`
	IsSuperUser bool   `bson:"is_super_user" json:"isSuperUser"`
	Token       string `bson:"token,omitempty" json:"token,omitempty"`
}

// NormalizeRole uppercases and trims a role. Unknown roles fall back to DRIVER.
func NormalizeRole(r Role) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(string(r)))) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleDriver
	}
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleDriver:
		return true
	default:
		return false
	}
}

// NewSession builds a normalized session from a login response.
func NewSession(resp LoginResponse) Session {
	return Session{
		Username:    strings.TrimSpace(resp.User.Username),
		Role:        NormalizeRole(resp.User.Role),
		IsSuperUser: resp.User.IsSuperUser,
		Token:       resp.Token,
	}
}

// User returns the account view of the session.
func (s Session) User() User {
	return User{Username: s.Username, Role: s.Role, IsSuperUser: s.IsSuperUser}
}

// IsAdmin reports whether the user may use admin affordances.
func (u User) IsAdmin() bool {
	return NormalizeRole(u.Role) == RoleAdmin || u.IsSuperUser
}

// CountAdmins returns the number of non-super ADMIN accounts in users.
func CountAdmins(users []User) int {
	n := 0
	for _, u := range users {
		if NormalizeRole(u.Role) == RoleAdmin && !u.IsSuperUser {
			n++
		}
	}
	return n
}

// CanCreateAdmin reports whether u may create another ADMIN account given the current
// user collection. Super users are never capped.
func (u User) CanCreateAdmin(users []User, limit int) bool {
	if u.IsSuperUser {
		return true
	}
	if !u.IsAdmin() {
		return false
	}
	return CountAdmins(users) < limit
}
