package role

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"findiff/internal/userprofile/models"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/sentinel"
)

type InMemoryRoleStoreSuite struct {
	suite.Suite
	store *InMemoryRoleStore
	ctx   context.Context
}

func TestInMemoryRoleStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryRoleStoreSuite))
}

func (s *InMemoryRoleStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func newRole(name string, perms ...string) *models.Role {
	r, _ := models.NewRole(id.RoleID(uuid.New()), name, perms, time.Now())
	return r
}

func (s *InMemoryRoleStoreSuite) TestUniqueName() {
	s.Require().NoError(s.store.Create(s.ctx, newRole("Proofreaders")))
	err := s.store.Create(s.ctx, newRole("proofreaders"))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemoryRoleStoreSuite) TestUpdateAndDelete() {
	r := newRole("QA", "apply_qa_order")
	s.Require().NoError(s.store.Create(s.ctx, r))

	r.Perms = append(r.Perms, "submit_qa_order")
	s.Require().NoError(s.store.Update(s.ctx, r))
	found, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal([]string{"apply_qa_order", "submit_qa_order"}, found.Perms)

	s.Require().NoError(s.store.Delete(s.ctx, r.ID))
	_, err = s.store.FindByID(s.ctx, r.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, r.ID), sentinel.ErrNotFound)
}

func (s *InMemoryRoleStoreSuite) TestListAndGranting() {
	s.Require().NoError(s.store.Create(s.ctx, newRole("b-QA", "apply_qa_order")))
	s.Require().NoError(s.store.Create(s.ctx, newRole("a-Proof", "apply_audit_order")))

	all, err := s.store.List(s.ctx, "")
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal("a-Proof", all[0].Name)

	filtered, err := s.store.List(s.ctx, "qa")
	s.Require().NoError(err)
	s.Len(filtered, 1)

	granting, err := s.store.ListGranting(s.ctx, "apply_qa_order", "assign_qa_order")
	s.Require().NoError(err)
	s.Require().Len(granting, 1)
	s.Equal("b-QA", granting[0].Name)
}

func (s *InMemoryRoleStoreSuite) TestReturnsCopies() {
	r := newRole("Copy", "list_audit_order")
	s.Require().NoError(s.store.Create(s.ctx, r))
	found, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	found.Perms[0] = "mutated"

	again, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal("list_audit_order", again.Perms[0])
}
