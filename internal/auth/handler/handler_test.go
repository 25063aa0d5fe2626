package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"findiff/internal/auth/handler/mocks"
	"findiff/internal/auth/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/requestcontext"
	"findiff/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  *chi.Mux
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.RegisterPublic(s.router)
	h.Register(s.router)
}

func (s *HandlerSuite) TestLogin() {
	s.Run("returns tokens", func() {
		s.service.EXPECT().Login(gomock.Any(), "alice", "secret1").Return(&models.LoginResult{
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenType:    "Bearer",
			ExpiresIn:    900,
			Perms:        []string{"apply_audit_order"},
		}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
			map[string]string{"username": " alice ", "password": "secret1"}))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "access_token", "access")
		testutil.AssertJSONContains(s.T(), rr, "token_type", "Bearer")
	})

	s.Run("missing password is rejected before the service", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
			map[string]string{"username": "alice"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("bad credentials map to 401", func() {
		s.service.EXPECT().Login(gomock.Any(), "alice", "wrong").
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "invalid username or password"))

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
			map[string]string{"username": "alice", "password": "wrong"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})
}

func (s *HandlerSuite) TestRefresh() {
	s.service.EXPECT().Refresh(gomock.Any(), "tok").Return(&models.TokenResult{AccessToken: "a2", RefreshToken: "r2"}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/refresh",
		map[string]string{"refresh_token": "tok"}))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "refresh_token", "r2")

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/refresh", map[string]string{}))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *HandlerSuite) TestLogout() {
	s.service.EXPECT().Logout(gomock.Any()).Return(nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/auth/logout"))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
}

func (s *HandlerSuite) TestSessionsMarkCurrent() {
	userID := id.UserID(uuid.New())
	current := id.SessionID(uuid.New())
	other := id.SessionID(uuid.New())
	now := time.Now()
	s.service.EXPECT().Sessions(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]*models.Session, error) {
		s.Equal(userID, requestcontext.UserID(ctx))
		return []*models.Session{
			{ID: current, UserID: userID, Status: models.SessionStatusActive, CreatedAt: now},
			{ID: other, UserID: userID, Status: models.SessionStatusRevoked, CreatedAt: now.Add(-time.Hour)},
		}, nil
	})

	req := testutil.WithAuth(testutil.NewRequest(s.T(), http.MethodGet, "/auth/sessions"), userID, current, "jti")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)

	out := testutil.UnmarshalResponse[[]SessionResponse](s.T(), rr)
	s.Require().Len(*out, 2)
	s.True((*out)[0].IsCurrent)
	s.False((*out)[1].IsCurrent)
	s.Equal("revoked", (*out)[1].Status)
}

func (s *HandlerSuite) TestMeInternalErrorHidesMessage() {
	s.service.EXPECT().Me(gomock.Any()).Return(nil, dErrors.New(dErrors.CodeInternal, "db exploded"))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/auth/me"))
	testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
	s.NotContains(rr.Body.String(), "db exploded")
}
