package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"findiff/internal/userprofile/catalog"
	"findiff/internal/userprofile/store/role"
	"findiff/internal/userprofile/store/user"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/tx"
)

// plainHasher keeps tests fast; bcrypt is covered separately.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "h:" + p, nil }
func (plainHasher) Verify(h, p string) bool      { return h == "h:"+p }

type countingMetrics struct{ created int }

func (m *countingMetrics) IncrementUsersCreated() { m.created++ }

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	svc     *Service
	metrics *countingMetrics
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.metrics = &countingMetrics{}
	s.svc = New(user.New(), role.New(), catalog.MustLoad(),
		WithHasher(plainHasher{}),
		WithMetrics(s.metrics),
		WithTxRunner(tx.NewMemoryRunner()),
	)
}

func (s *ServiceSuite) createUser(username string, superuser bool) id.UserID {
	u, err := s.svc.CreateUser(s.ctx, CreateUserCommand{
		Username: username, Password: "secret1", Nickname: username + "-nick", Superuser: superuser,
	})
	s.Require().NoError(err)
	return u.ID
}

func (s *ServiceSuite) TestCreateUser() {
	s.Run("creates active user", func() {
		userID := s.createUser("alice", false)
		u, err := s.svc.GetUser(s.ctx, userID)
		s.Require().NoError(err)
		s.True(u.IsActive)
		s.Equal("h:secret1", u.PasswordHash)
		s.Equal(1, s.metrics.created)
	})

	s.Run("duplicate username conflicts", func() {
		_, err := s.svc.CreateUser(s.ctx, CreateUserCommand{Username: "ALICE", Password: "secret1"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("short password rejected", func() {
		_, err := s.svc.CreateUser(s.ctx, CreateUserCommand{Username: "bob", Password: "123"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown role rejected", func() {
		_, err := s.svc.CreateUser(s.ctx, CreateUserCommand{
			Username: "carol", Password: "secret1", RoleIDs: []id.RoleID{id.RoleID{1}},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestChangePassword() {
	userID := s.createUser("alice", false)

	cases := []struct {
		name string
		cmd  ChangePasswordCommand
		msg  string
	}{
		{"mismatch", ChangePasswordCommand{Origin: "secret1", New: "abcdef", Repeat: "abcdeg"}, "the two new passwords do not match"},
		{"too short", ChangePasswordCommand{Origin: "secret1", New: "abc", Repeat: "abc"}, "password must be at least 6 characters"},
		{"same as origin", ChangePasswordCommand{Origin: "secret1", New: "secret1", Repeat: "secret1"}, "new password must differ from the current one"},
		{"wrong origin", ChangePasswordCommand{Origin: "nope!!", New: "abcdef", Repeat: "abcdef"}, "current password is incorrect"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			err := s.svc.ChangePassword(s.ctx, userID, tc.cmd)
			s.Require().Error(err)
			s.Equal(tc.msg, dErrors.MessageOf(err))
		})
	}

	s.Run("success", func() {
		s.Require().NoError(s.svc.ChangePassword(s.ctx, userID, ChangePasswordCommand{
			Origin: "secret1", New: "abcdef", Repeat: "abcdef",
		}))
		_, err := s.svc.Authenticate(s.ctx, "alice", "abcdef")
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestAuthenticate() {
	userID := s.createUser("alice", false)

	_, err := s.svc.Authenticate(s.ctx, "alice", "wrong")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	_, err = s.svc.Authenticate(s.ctx, "nobody", "secret1")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.svc.SetActive(s.ctx, userID, false)
	s.Require().NoError(err)
	_, err = s.svc.Authenticate(s.ctx, "alice", "secret1")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestRoles() {
	s.Run("unknown perm rejected", func() {
		_, err := s.svc.CreateRole(s.ctx, "Bad", []string{"fly"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("perms are deduplicated and role names unique", func() {
		r, err := s.svc.CreateRole(s.ctx, "QA", []string{catalog.PermSubmitQAOrder, catalog.PermApplyQAOrder, catalog.PermApplyQAOrder})
		s.Require().NoError(err)
		s.Equal([]string{catalog.PermApplyQAOrder, catalog.PermSubmitQAOrder}, r.Perms)

		_, err = s.svc.CreateRole(s.ctx, "QA", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("options list id and name", func() {
		opts, err := s.svc.RoleOptions(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(opts, 1)
		s.Equal("QA", opts[0].Name)
	})
}

func (s *ServiceSuite) TestPermissionChecks() {
	worker := s.createUser("worker", false)
	admin := s.createUser("admin", true)
	idle := s.createUser("idle", false)

	r, err := s.svc.CreateRole(s.ctx, "Proofreaders", []string{catalog.PermApplyAuditOrder, catalog.PermSubmitAuditOrder})
	s.Require().NoError(err)
	qa, err := s.svc.CreateRole(s.ctx, "QA", []string{catalog.PermApplyQAOrder})
	s.Require().NoError(err)
	s.Require().NoError(s.svc.AssignRoles(s.ctx, []id.UserID{worker}, []id.RoleID{r.ID, qa.ID}))

	s.Run("any-of through roles", func() {
		ok, err := s.svc.HasAnyPerm(s.ctx, worker, catalog.PermDeleteAuditOrder, catalog.PermApplyAuditOrder)
		s.Require().NoError(err)
		s.True(ok)

		ok, err = s.svc.HasAnyPerm(s.ctx, worker, catalog.PermAssignQAOrder)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("superuser bypass", func() {
		ok, err := s.svc.HasAnyPerm(s.ctx, admin, catalog.PermAssignQAOrder)
		s.Require().NoError(err)
		s.True(ok)

		u, err := s.svc.GetUser(s.ctx, admin)
		s.Require().NoError(err)
		perms, err := s.svc.PermsFor(s.ctx, u)
		s.Require().NoError(err)
		s.Len(perms, len(s.svc.Permissions()))
	})

	s.Run("perms in catalog order", func() {
		u, err := s.svc.GetUser(s.ctx, worker)
		s.Require().NoError(err)
		perms, err := s.svc.PermsFor(s.ctx, u)
		s.Require().NoError(err)
		s.Equal([]string{catalog.PermApplyAuditOrder, catalog.PermSubmitAuditOrder, catalog.PermApplyQAOrder}, perms)
	})

	s.Run("users with perm include superusers", func() {
		users, err := s.svc.UsersWithPerm(s.ctx, catalog.PermApplyQAOrder)
		s.Require().NoError(err)
		var names []string
		for _, u := range users {
			names = append(names, u.Username)
		}
		s.ElementsMatch([]string{"worker", "admin"}, names)
	})

	s.Run("deleting a role revokes its perms", func() {
		s.Require().NoError(s.svc.DeleteRole(s.ctx, qa.ID))
		ok, err := s.svc.HasAnyPerm(s.ctx, worker, catalog.PermApplyQAOrder)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("inactive users hold nothing", func() {
		s.Require().NoError(s.svc.AssignRoles(s.ctx, []id.UserID{idle}, []id.RoleID{r.ID}))
		_, err := s.svc.SetActive(s.ctx, idle, false)
		s.Require().NoError(err)
		ok, err := s.svc.HasAnyPerm(s.ctx, idle, catalog.PermApplyAuditOrder)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("list users searches nickname", func() {
		res, err := s.svc.ListUsers(s.ctx, "worker-nick", paging.New(1, 10))
		s.Require().NoError(err)
		s.Equal(1, res.Total)
	})
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: 4}
	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatal(err)
	}
	if !h.Verify(hash, "secret1") || h.Verify(hash, "secret2") {
		t.Fatal("bcrypt verify mismatch")
	}
}
