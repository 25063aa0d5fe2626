// Package service implements login, token refresh with rotation, logout and
// the revocation checks used by the auth middleware.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"findiff/internal/auth/models"
	jwttoken "findiff/internal/jwt_token"
	upmodels "findiff/internal/userprofile/models"
	id "findiff/pkg/domain"
	"findiff/pkg/requestcontext"
)

// UserService is the slice of the user module that auth depends on.
type UserService interface {
	Authenticate(ctx context.Context, username, password string) (*upmodels.User, error)
	GetUser(ctx context.Context, userID id.UserID) (*upmodels.User, error)
	PermsFor(ctx context.Context, user *upmodels.User) ([]string, error)
}

// TokenIssuer signs and validates access and refresh tokens.
type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, sessionID id.SessionID, expiresIn time.Duration) (*jwttoken.IssuedToken, error)
	GenerateRefreshToken(userID id.UserID, sessionID id.SessionID, expiresIn time.Duration) (*jwttoken.IssuedToken, error)
	ValidateTyped(tokenString string, typ jwttoken.TokenType) (*jwttoken.Claims, error)
}

type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Execute(ctx context.Context, sessionID id.SessionID, validate func(*models.Session) error, mutate func(*models.Session)) (*models.Session, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Session, error)
}

// RevocationList remembers revoked access token ids until they expire.
type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type LoginMetrics interface {
	IncrementLoginFailures()
}

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	tokenTypeBearer   = "Bearer"
)

type Service struct {
	users      UserService
	tokens     TokenIssuer
	sessions   SessionStore
	trl        RevocationList
	logger     *slog.Logger
	metrics    LoginMetrics
	accessTTL  time.Duration
	refreshTTL time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m LoginMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTokenTTL sets the access token lifetime and the refresh token lifetime,
// which is also the session lifetime. Zero values keep the defaults.
func WithTokenTTL(access, refresh time.Duration) Option {
	return func(s *Service) {
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

func New(users UserService, tokens TokenIssuer, sessions SessionStore, trl RevocationList, opts ...Option) (*Service, error) {
	if users == nil || tokens == nil || sessions == nil || trl == nil {
		return nil, errors.New("users, tokens, sessions and revocation list are required")
	}
	s := &Service{
		users:      users,
		tokens:     tokens,
		sessions:   sessions,
		trl:        trl,
		logger:     slog.Default(),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IsTokenRevoked satisfies the auth middleware's revocation checker.
func (s *Service) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return s.trl.IsRevoked(ctx, jti)
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	args := append(attributes,
		"event", event,
		"log_type", "audit",
		"request_id", requestcontext.RequestID(ctx),
	)
	s.logger.InfoContext(ctx, event, args...)
}

// authFailure logs a rejected authentication attempt. Failures caused by the
// caller are warnings; failures of the service itself are errors.
func (s *Service) authFailure(ctx context.Context, reason string, isError bool, attributes ...any) {
	args := append(attributes,
		"event", "auth_failed",
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	if isError {
		s.logger.ErrorContext(ctx, "auth failed", args...)
		return
	}
	s.logger.WarnContext(ctx, "auth failed", args...)
	if s.metrics != nil && reason == "invalid_credentials" {
		s.metrics.IncrementLoginFailures()
	}
}
