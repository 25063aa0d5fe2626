package service

import (
	"time"

	jwttoken "findiff/internal/jwt_token"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
)

type tokenPair struct {
	access  *jwttoken.IssuedToken
	refresh *jwttoken.IssuedToken
}

func (s *Service) issuePair(userID id.UserID, sessionID id.SessionID) (*tokenPair, error) {
	access, err := s.tokens.GenerateAccessToken(userID, sessionID, s.accessTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate access token")
	}
	refresh, err := s.tokens.GenerateRefreshToken(userID, sessionID, s.refreshTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate refresh token")
	}
	return &tokenPair{access: access, refresh: refresh}, nil
}

func (s *Service) expiresIn() int {
	return int(s.accessTTL / time.Second)
}
