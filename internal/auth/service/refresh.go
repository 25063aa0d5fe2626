package service

import (
	"context"
	"errors"
	"time"

	"findiff/internal/auth/models"
	jwttoken "findiff/internal/jwt_token"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/sentinel"
	"findiff/pkg/requestcontext"
)

var errInvalidRefreshToken = dErrors.New(dErrors.CodeUnauthorized, "invalid refresh token")

// Refresh exchanges a refresh token for a new token pair. Each refresh token
// is accepted once: presenting a rotated-out token revokes the whole session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.TokenResult, error) {
	claims, err := s.tokens.ValidateTyped(refreshToken, jwttoken.TokenTypeRefresh)
	if err != nil {
		s.authFailure(ctx, "invalid_refresh_token", false)
		return nil, err
	}
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, errInvalidRefreshToken
	}
	sessionID, err := id.ParseSessionID(claims.SessionID)
	if err != nil {
		return nil, errInvalidRefreshToken
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, errInvalidRefreshToken
		}
		return nil, err
	}
	if !user.IsActive {
		s.authFailure(ctx, "user_disabled", false, "user_id", userID.String())
		return nil, dErrors.New(dErrors.CodeForbidden, "user is disabled")
	}

	pair, err := s.issuePair(userID, sessionID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	reused := false
	session, err := s.sessions.Execute(ctx, sessionID,
		func(sess *models.Session) error {
			if sess.UserID != userID {
				return errInvalidRefreshToken
			}
			if err := sess.CanRefresh(claims.ID, now); err != nil {
				// A live session only rejects a token it already rotated out.
				if sess.IsActive(now) {
					reused = true
					return nil
				}
				return err
			}
			return nil
		},
		func(sess *models.Session) {
			if reused {
				sess.ApplyRevocation(now)
				return
			}
			sess.ApplyRotation(pair.refresh.JTI, pair.access.JTI, pair.access.ExpiresAt, now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errInvalidRefreshToken
		}
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.authFailure(ctx, "session_not_refreshable", false, "session_id", sessionID.String())
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to refresh session")
	}

	if reused {
		s.authFailure(ctx, "refresh_token_reuse", false,
			"session_id", sessionID.String(),
			"user_id", userID.String(),
		)
		if err := s.revokeAccess(ctx, session.LastAccessJTI, session.LastAccessExpiresAt, now); err != nil {
			return nil, err
		}
		return nil, models.ErrRefreshReuse
	}

	s.logAudit(ctx, "session_refreshed",
		"user_id", userID.String(),
		"session_id", sessionID.String(),
	)
	return &models.TokenResult{
		AccessToken:  pair.access.Token,
		RefreshToken: pair.refresh.Token,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    s.expiresIn(),
	}, nil
}

// Logout revokes the current session and the access token used to call it.
func (s *Service) Logout(ctx context.Context) error {
	userID := requestcontext.UserID(ctx)
	sessionID := requestcontext.SessionID(ctx)
	if userID.IsNil() || sessionID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	now := requestcontext.Now(ctx)
	alreadyRevoked := false
	session, err := s.sessions.Execute(ctx, sessionID,
		func(sess *models.Session) error {
			if sess.UserID != userID {
				return dErrors.New(dErrors.CodeForbidden, "forbidden")
			}
			if sess.CanRevoke() != nil {
				alreadyRevoked = true
			}
			return nil
		},
		func(sess *models.Session) {
			if !alreadyRevoked {
				sess.ApplyRevocation(now)
			}
		},
	)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			return err
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke session")
	}

	current := requestcontext.AccessToken(ctx)
	if err := s.revokeAccess(ctx, current.JTI, current.ExpiresAt, now); err != nil {
		return err
	}
	if session.LastAccessJTI != current.JTI {
		if err := s.revokeAccess(ctx, session.LastAccessJTI, session.LastAccessExpiresAt, now); err != nil {
			return err
		}
	}

	if !alreadyRevoked {
		s.logAudit(ctx, "session_revoked",
			"user_id", userID.String(),
			"session_id", sessionID.String(),
		)
	}
	return nil
}

// revokeAccess lists an access token as revoked for the rest of its lifetime.
// Tokens that already expired need no entry.
func (s *Service) revokeAccess(ctx context.Context, jti string, expiresAt, now time.Time) error {
	if jti == "" {
		return nil
	}
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	if err := s.trl.RevokeToken(ctx, jti, ttl); err != nil {
		s.logger.ErrorContext(ctx, "failed to add token to revocation list", "error", err, "jti", jti)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	return nil
}
