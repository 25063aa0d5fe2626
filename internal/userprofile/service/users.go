package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"findiff/internal/userprofile/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/sentinel"
)

// CreateUserCommand carries the fields for a new account.
type CreateUserCommand struct {
	Username  string
	Password  string
	Nickname  string
	Email     string
	Superuser bool
	RoleIDs   []id.RoleID
}

func (s *Service) CreateUser(ctx context.Context, cmd CreateUserCommand) (*models.User, error) {
	username := strings.TrimSpace(cmd.Username)
	if username == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if len(username) > models.MaxUsernameLength {
		return nil, dErrors.New(dErrors.CodeValidation, "username is too long")
	}
	if len(cmd.Password) < models.MinPasswordLength {
		return nil, dErrors.New(dErrors.CodeValidation, "password must be at least 6 characters")
	}
	if len(cmd.RoleIDs) > 0 {
		if err := s.requireRoles(ctx, cmd.RoleIDs); err != nil {
			return nil, err
		}
	}

	hash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	t := now(ctx)
	user := &models.User{
		ID:           id.UserID(uuid.New()),
		Username:     username,
		Nickname:     strings.TrimSpace(cmd.Nickname),
		Email:        strings.TrimSpace(cmd.Email),
		PasswordHash: hash,
		IsActive:     true,
		IsSuperuser:  cmd.Superuser,
		RoleIDs:      cmd.RoleIDs,
		CreatedAt:    t,
		UpdatedAt:    t,
	}

	// User row and role memberships land together.
	err = s.runInTx(ctx, func(ctx context.Context) error {
		return s.users.Create(ctx, user)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "username already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	if s.metrics != nil {
		s.metrics.IncrementUsersCreated()
	}
	s.logAudit(ctx, "user_created",
		"user_id", user.ID.String(),
		"superuser", user.IsSuperuser,
	)
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// Users loads the users among ids keyed by id. Unknown ids are skipped.
func (s *Service) Users(ctx context.Context, ids []id.UserID) (map[id.UserID]*models.User, error) {
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load users")
	}
	out := make(map[id.UserID]*models.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (s *Service) ListUsers(ctx context.Context, search string, page paging.Page) (paging.Result[*models.User], error) {
	users, total, err := s.users.List(ctx, models.UserFilter{Search: search}, page)
	if err != nil {
		return paging.Result[*models.User]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return paging.NewResult(users, total, page), nil
}

func (s *Service) SetActive(ctx context.Context, userID id.UserID, active bool) (*models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.IsActive = active
	user.UpdatedAt = now(ctx)
	if err := s.users.Update(ctx, user); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}
	s.logAudit(ctx, "user_active_changed",
		"user_id", user.ID.String(),
		"is_active", active,
	)
	return user, nil
}

// ChangePasswordCommand is the self-service password change.
type ChangePasswordCommand struct {
	Origin string
	New    string
	Repeat string
}

func (s *Service) ChangePassword(ctx context.Context, userID id.UserID, cmd ChangePasswordCommand) error {
	if cmd.New != cmd.Repeat {
		return dErrors.New(dErrors.CodeValidation, "the two new passwords do not match")
	}
	if len(cmd.New) < models.MinPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 6 characters")
	}
	if cmd.New == cmd.Origin {
		return dErrors.New(dErrors.CodeValidation, "new password must differ from the current one")
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(user.PasswordHash, cmd.Origin) {
		return dErrors.New(dErrors.CodeValidation, "current password is incorrect")
	}
	hash, err := s.hasher.Hash(cmd.New)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	user.PasswordHash = hash
	user.UpdatedAt = now(ctx)
	if err := s.users.Update(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update password")
	}
	s.logAudit(ctx, "password_changed", "user_id", user.ID.String())
	return nil
}

// Authenticate checks credentials for login. Unknown users and wrong
// passwords produce the same error.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid username or password")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid username or password")
	}
	if !user.IsActive {
		return nil, dErrors.New(dErrors.CodeForbidden, "user is disabled")
	}
	return user, nil
}

// AssignRoles replaces the roles of every listed user.
func (s *Service) AssignRoles(ctx context.Context, userIDs []id.UserID, roleIDs []id.RoleID) error {
	if len(userIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one user is required")
	}
	if err := s.requireRoles(ctx, roleIDs); err != nil {
		return err
	}
	err := s.runInTx(ctx, func(ctx context.Context) error {
		for _, userID := range userIDs {
			if err := s.users.SetRoles(ctx, userID, roleIDs); err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodeNotFound, "user not found: "+userID.String())
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign roles")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, "roles_assigned",
		"users", len(userIDs),
		"roles", len(roleIDs),
	)
	return nil
}

func (s *Service) requireRoles(ctx context.Context, roleIDs []id.RoleID) error {
	found, err := s.roles.FindByIDs(ctx, roleIDs)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load roles")
	}
	if len(found) != len(uniqueRoles(roleIDs)) {
		return dErrors.New(dErrors.CodeValidation, "unknown role")
	}
	return nil
}

func uniqueRoles(ids []id.RoleID) map[id.RoleID]struct{} {
	out := make(map[id.RoleID]struct{}, len(ids))
	for _, r := range ids {
		out[r] = struct{}{}
	}
	return out
}
