package handler

import (
	"time"

	"findiff/internal/userprofile/models"
	id "findiff/pkg/domain"
)

type UserResponse struct {
	ID          id.UserID   `json:"id"`
	Username    string      `json:"username"`
	Nickname    string      `json:"nickname"`
	Email       string      `json:"email"`
	IsActive    bool        `json:"is_active"`
	IsSuperuser bool        `json:"is_superuser"`
	RoleIDs     []id.RoleID `json:"role_ids"`
	CreatedAt   time.Time   `json:"created_at"`
}

func FromUser(u *models.User) UserResponse {
	roles := u.RoleIDs
	if roles == nil {
		roles = []id.RoleID{}
	}
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Nickname:    u.Nickname,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		RoleIDs:     roles,
		CreatedAt:   u.CreatedAt,
	}
}

type PermissionGroup struct {
	Module string              `json:"module"`
	Perms  []models.Permission `json:"perms"`
}
