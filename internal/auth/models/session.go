package models

import (
	"time"

	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
)

type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusRevoked SessionStatus = "revoked"
)

// Session is one login on one device. It tracks the current refresh token id
// for rotation and the last access token id for revocation on logout.
type Session struct {
	ID                  id.SessionID  `json:"id"`
	UserID              id.UserID     `json:"user_id"`
	Status              SessionStatus `json:"status"`
	RefreshJTI          string        `json:"refresh_jti"`
	LastAccessJTI       string        `json:"last_access_jti"`
	LastAccessExpiresAt time.Time     `json:"last_access_expires_at"`
	DeviceDisplayName   string        `json:"device_display_name"`
	ClientIP            string        `json:"client_ip"`
	CreatedAt           time.Time     `json:"created_at"`
	ExpiresAt           time.Time     `json:"expires_at"`
	LastRefreshedAt     *time.Time    `json:"last_refreshed_at,omitempty"`
	RevokedAt           *time.Time    `json:"revoked_at,omitempty"`
}

func (s *Session) IsActive(now time.Time) bool {
	return s.Status == SessionStatusActive && now.Before(s.ExpiresAt)
}

// CanRefresh checks that the session is live and that jti is the refresh
// token it last issued.
func (s *Session) CanRefresh(jti string, now time.Time) error {
	if s.Status == SessionStatusRevoked {
		return dErrors.New(dErrors.CodeUnauthorized, "session revoked")
	}
	if !now.Before(s.ExpiresAt) {
		return dErrors.New(dErrors.CodeUnauthorized, "session expired")
	}
	if s.RefreshJTI != jti {
		return ErrRefreshReuse
	}
	return nil
}

// ErrRefreshReuse marks presentation of a rotated-out refresh token.
var ErrRefreshReuse = dErrors.New(dErrors.CodeUnauthorized, "refresh token reuse detected")

func (s *Session) CanRevoke() error {
	if s.Status == SessionStatusRevoked {
		return dErrors.New(dErrors.CodeInvalidState, "session already revoked")
	}
	return nil
}

func (s *Session) ApplyRevocation(now time.Time) {
	s.Status = SessionStatusRevoked
	s.RevokedAt = &now
}

// ApplyRotation records a freshly issued token pair.
func (s *Session) ApplyRotation(refreshJTI, accessJTI string, accessExpiresAt, now time.Time) {
	s.RefreshJTI = refreshJTI
	s.LastAccessJTI = accessJTI
	s.LastAccessExpiresAt = accessExpiresAt
	s.LastRefreshedAt = &now
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	UserID       id.UserID `json:"user_id"`
	Username     string    `json:"username"`
	Nickname     string    `json:"nickname"`
	IsSuperuser  bool      `json:"is_superuser"`
	Perms        []string  `json:"perms"`
}

// TokenResult is returned by a refresh.
type TokenResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Me describes the authenticated caller.
type Me struct {
	UserID      id.UserID `json:"user_id"`
	Username    string    `json:"username"`
	Nickname    string    `json:"nickname"`
	Email       string    `json:"email"`
	IsSuperuser bool      `json:"is_superuser"`
	Perms       []string  `json:"perms"`
	Device      string    `json:"device"`
}
