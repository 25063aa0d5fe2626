package service

import (
	"context"
	"slices"

	"findiff/internal/userprofile/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/paging"
)

// Permissions returns the full catalog.
func (s *Service) Permissions() []models.Permission {
	return s.catalog.All()
}

// PermsFor returns the union of the user's role perms in catalog order.
// Superusers hold the entire catalog.
func (s *Service) PermsFor(ctx context.Context, user *models.User) ([]string, error) {
	if user.IsSuperuser {
		return s.catalog.Codenames(), nil
	}
	if len(user.RoleIDs) == 0 {
		return []string{}, nil
	}
	roles, err := s.roles.FindByIDs(ctx, user.RoleIDs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load roles")
	}
	held := make(map[string]struct{})
	for _, r := range roles {
		for _, p := range r.Perms {
			held[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(held))
	for _, code := range s.catalog.Codenames() {
		if _, ok := held[code]; ok {
			out = append(out, code)
		}
	}
	return out, nil
}

// HasAnyPerm reports whether the user holds any of the codenames. Inactive
// users hold nothing; superusers hold everything.
func (s *Service) HasAnyPerm(ctx context.Context, userID id.UserID, codenames ...string) (bool, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	if !user.IsActive {
		return false, nil
	}
	if user.IsSuperuser {
		return true, nil
	}
	perms, err := s.PermsFor(ctx, user)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(codenames, func(c string) bool {
		return slices.Contains(perms, c)
	}), nil
}

// UsersWithPerm lists active users holding codename through a role, plus
// active superusers.
func (s *Service) UsersWithPerm(ctx context.Context, codename string) ([]*models.User, error) {
	roles, err := s.roles.ListGranting(ctx, codename)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load roles")
	}
	roleIDs := make([]id.RoleID, 0, len(roles))
	for _, r := range roles {
		roleIDs = append(roleIDs, r.ID)
	}
	users, _, err := s.users.List(ctx, models.UserFilter{
		RoleIDs:           roleIDs,
		IncludeSuperusers: true,
		ActiveOnly:        true,
	}, paging.New(1, paging.MaxSize))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}
