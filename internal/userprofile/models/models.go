package models

import (
	"time"

	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
)

const (
	MinPasswordLength = 6
	MaxUsernameLength = 150
)

type User struct {
	ID           id.UserID   `json:"id"`
	Username     string      `json:"username"`
	Nickname     string      `json:"nickname"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	IsActive     bool        `json:"is_active"`
	IsSuperuser  bool        `json:"is_superuser"`
	RoleIDs      []id.RoleID `json:"role_ids"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// DisplayName prefers the nickname and falls back to the username.
func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}

// HasRole reports whether the user is a member of role.
func (u *User) HasRole(role id.RoleID) bool {
	for _, r := range u.RoleIDs {
		if r == role {
			return true
		}
	}
	return false
}

// Role is a named group of permission codenames.
type Role struct {
	ID        id.RoleID `json:"id"`
	Name      string    `json:"name"`
	Perms     []string  `json:"perms"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewRole(roleID id.RoleID, name string, perms []string, now time.Time) (*Role, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "role name is required")
	}
	if len(name) > 150 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "role name must be 150 characters or less")
	}
	return &Role{ID: roleID, Name: name, Perms: perms, CreatedAt: now, UpdatedAt: now}, nil
}

// Grants reports whether the role carries any of the codenames.
func (r *Role) Grants(codenames ...string) bool {
	for _, p := range r.Perms {
		for _, c := range codenames {
			if p == c {
				return true
			}
		}
	}
	return false
}

// Permission is one entry of the permission catalog.
type Permission struct {
	Codename string `json:"codename" yaml:"codename"`
	Name     string `json:"name" yaml:"name"`
	Module   string `json:"module" yaml:"-"`
}

// UserFilter narrows user listings.
type UserFilter struct {
	// Search matches username or nickname, case-insensitively.
	Search string
	// RoleIDs keeps users holding any of the roles.
	RoleIDs []id.RoleID
	// IncludeSuperusers adds superusers to a RoleIDs filter.
	IncludeSuperusers bool
	ActiveOnly        bool
}
