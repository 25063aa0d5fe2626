package handler

import (
	"strings"

	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
)

type CreateUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Nickname string   `json:"nickname"`
	Email    string   `json:"email"`
	RoleIDs  []string `json:"role_ids"`

	roleIDs []id.RoleID
}

func (r *CreateUserRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" {
		return dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	ids, err := parseRoleIDs(r.RoleIDs)
	if err != nil {
		return err
	}
	r.roleIDs = ids
	return nil
}

// CreateSuperuserRequest bootstraps the first administrator.
type CreateSuperuserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (r *CreateSuperuserRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "username and password are required")
	}
	return nil
}

type SetActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

func (r *SetActiveRequest) Validate() error {
	if r.IsActive == nil {
		return dErrors.New(dErrors.CodeValidation, "is_active is required")
	}
	return nil
}

type ChangePasswordRequest struct {
	OriginPassword string `json:"origin_password"`
	NewPassword    string `json:"new_password"`
	RepeatPassword string `json:"repeat_password"`
}

func (r *ChangePasswordRequest) Validate() error {
	if r.OriginPassword == "" || r.NewPassword == "" || r.RepeatPassword == "" {
		return dErrors.New(dErrors.CodeValidation, "origin_password, new_password and repeat_password are required")
	}
	return nil
}

type AssignRolesRequest struct {
	UserIDs []string `json:"user_ids"`
	RoleIDs []string `json:"role_ids"`

	userIDs []id.UserID
	roleIDs []id.RoleID
}

func (r *AssignRolesRequest) Validate() error {
	if len(r.UserIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "user_ids is required")
	}
	r.userIDs = make([]id.UserID, 0, len(r.UserIDs))
	for _, raw := range r.UserIDs {
		userID, err := id.ParseUserID(raw)
		if err != nil {
			return err
		}
		r.userIDs = append(r.userIDs, userID)
	}
	roles, err := parseRoleIDs(r.RoleIDs)
	if err != nil {
		return err
	}
	r.roleIDs = roles
	return nil
}

type RoleRequest struct {
	Name  string   `json:"name"`
	Perms []string `json:"perms"`
}

func (r *RoleRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func parseRoleIDs(raw []string) ([]id.RoleID, error) {
	out := make([]id.RoleID, 0, len(raw))
	for _, s := range raw {
		roleID, err := id.ParseRoleID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, roleID)
	}
	return out, nil
}
