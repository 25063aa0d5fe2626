package testutil

import (
	"context"
	"net/http"
	"time"

	id "findiff/pkg/domain"
	"findiff/pkg/requestcontext"
)

// WithUserID marks the request as coming from userID, as RequireAuth would.
func WithUserID(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithAuth sets the full identity RequireAuth leaves on a request: user,
// session and a one-hour access token.
func WithAuth(req *http.Request, userID id.UserID, sessionID id.SessionID, jti string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithSessionID(ctx, sessionID)
	ctx = requestcontext.WithAccessToken(ctx, requestcontext.Token{JTI: jti, ExpiresAt: time.Now().Add(time.Hour)})
	return req.WithContext(ctx)
}

// AuthenticatedContext is WithUserID for service-level tests.
func AuthenticatedContext(userID id.UserID) context.Context {
	return requestcontext.WithUserID(context.Background(), userID)
}
