package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"findiff/internal/auth/device"
	"findiff/internal/auth/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/sentinel"
	"findiff/pkg/requestcontext"
)

// Login verifies credentials and opens a session for the calling device.
func (s *Service) Login(ctx context.Context, username, password string) (*models.LoginResult, error) {
	user, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		switch {
		case dErrors.HasCode(err, dErrors.CodeUnauthorized):
			s.authFailure(ctx, "invalid_credentials", false, "username", username)
		case dErrors.HasCode(err, dErrors.CodeForbidden):
			s.authFailure(ctx, "user_disabled", false, "username", username)
		default:
			s.authFailure(ctx, "authenticate_error", true, "error", err)
		}
		return nil, err
	}

	now := requestcontext.Now(ctx)
	session := &models.Session{
		ID:                id.SessionID(uuid.New()),
		UserID:            user.ID,
		Status:            models.SessionStatusActive,
		DeviceDisplayName: device.ParseUserAgent(requestcontext.UserAgent(ctx)),
		ClientIP:          requestcontext.ClientIP(ctx),
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.refreshTTL),
	}
	pair, err := s.issuePair(user.ID, session.ID)
	if err != nil {
		return nil, err
	}
	session.ApplyRotation(pair.refresh.JTI, pair.access.JTI, pair.access.ExpiresAt, now)
	session.LastRefreshedAt = nil

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}

	perms, err := s.users.PermsFor(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "user_logged_in",
		"user_id", user.ID.String(),
		"session_id", session.ID.String(),
		"device", session.DeviceDisplayName,
	)
	return &models.LoginResult{
		AccessToken:  pair.access.Token,
		RefreshToken: pair.refresh.Token,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    s.expiresIn(),
		UserID:       user.ID,
		Username:     user.Username,
		Nickname:     user.DisplayName(),
		IsSuperuser:  user.IsSuperuser,
		Perms:        perms,
	}, nil
}

// Me describes the caller and the device of the current session.
func (s *Service) Me(ctx context.Context) (*models.Me, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	perms, err := s.users.PermsFor(ctx, user)
	if err != nil {
		return nil, err
	}

	me := &models.Me{
		UserID:      user.ID,
		Username:    user.Username,
		Nickname:    user.DisplayName(),
		Email:       user.Email,
		IsSuperuser: user.IsSuperuser,
		Perms:       perms,
	}
	if sessionID := requestcontext.SessionID(ctx); !sessionID.IsNil() {
		session, err := s.sessions.FindByID(ctx, sessionID)
		switch {
		case err == nil:
			me.Device = session.DeviceDisplayName
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
		}
	}
	return me, nil
}

// Sessions lists the caller's sessions, newest first.
func (s *Service) Sessions(ctx context.Context) ([]*models.Session, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	return sessions, nil
}
