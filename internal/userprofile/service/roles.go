package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"

	"findiff/internal/userprofile/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/sentinel"
	strutil "findiff/pkg/platform/strings"
)

// RoleOption is the id/name pair offered by role pickers.
type RoleOption struct {
	ID   id.RoleID `json:"id"`
	Name string    `json:"name"`
}

func (s *Service) validatePerms(perms []string) ([]string, error) {
	out := strutil.DedupeAndTrim(perms)
	if unknown := s.catalog.Unknown(out); len(unknown) > 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown permission: "+strings.Join(unknown, ", "))
	}
	slices.Sort(out)
	return out, nil
}

func (s *Service) CreateRole(ctx context.Context, name string, perms []string) (*models.Role, error) {
	perms, err := s.validatePerms(perms)
	if err != nil {
		return nil, err
	}
	role, err := models.NewRole(id.RoleID(uuid.New()), strings.TrimSpace(name), perms, now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "role name already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create role")
	}
	s.logAudit(ctx, "role_created", "role_id", role.ID.String(), "name", role.Name)
	return role, nil
}

func (s *Service) UpdateRole(ctx context.Context, roleID id.RoleID, name string, perms []string) (*models.Role, error) {
	perms, err := s.validatePerms(perms)
	if err != nil {
		return nil, err
	}
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		role.Name = name
	}
	role.Perms = perms
	role.UpdatedAt = now(ctx)
	if err := s.roles.Update(ctx, role); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "role name already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update role")
	}
	s.logAudit(ctx, "role_updated", "role_id", role.ID.String())
	return role, nil
}

func (s *Service) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	err := s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.roles.Delete(ctx, roleID); err != nil {
			return err
		}
		return s.users.RemoveRole(ctx, roleID)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "role not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete role")
	}
	s.logAudit(ctx, "role_deleted", "role_id", roleID.String())
	return nil
}

func (s *Service) GetRole(ctx context.Context, roleID id.RoleID) (*models.Role, error) {
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "role not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load role")
	}
	return role, nil
}

func (s *Service) ListRoles(ctx context.Context, search string) ([]*models.Role, error) {
	roles, err := s.roles.List(ctx, search)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list roles")
	}
	return roles, nil
}

func (s *Service) RoleOptions(ctx context.Context) ([]RoleOption, error) {
	roles, err := s.ListRoles(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]RoleOption, 0, len(roles))
	for _, r := range roles {
		out = append(out, RoleOption{ID: r.ID, Name: r.Name})
	}
	return out, nil
}
