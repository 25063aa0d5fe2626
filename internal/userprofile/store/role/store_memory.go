package role

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"findiff/internal/userprofile/models"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/sentinel"
)

type InMemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[id.RoleID]*models.Role
}

func New() *InMemoryRoleStore {
	return &InMemoryRoleStore{roles: make(map[id.RoleID]*models.Role)}
}

func clone(r *models.Role) *models.Role {
	c := *r
	c.Perms = slices.Clone(r.Perms)
	return &c
}

func (s *InMemoryRoleStore) nameTaken(name string, except id.RoleID) bool {
	for _, r := range s.roles {
		if r.ID != except && strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

func (s *InMemoryRoleStore) Create(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(role.Name, role.ID) {
		return sentinel.ErrConflict
	}
	s.roles[role.ID] = clone(role)
	return nil
}

func (s *InMemoryRoleStore) Update(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.nameTaken(role.Name, role.ID) {
		return sentinel.ErrConflict
	}
	s.roles[role.ID] = clone(role)
	return nil
}

func (s *InMemoryRoleStore) Delete(_ context.Context, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.roles, roleID)
	return nil
}

func (s *InMemoryRoleStore) FindByID(_ context.Context, roleID id.RoleID) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.roles[roleID]; ok {
		return clone(r), nil
	}
	return nil, sentinel.ErrNotFound
}

// FindByIDs returns the roles that exist among ids.
func (s *InMemoryRoleStore) FindByIDs(_ context.Context, ids []id.RoleID) ([]*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Role, 0, len(ids))
	for _, roleID := range ids {
		if r, ok := s.roles[roleID]; ok {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

// List returns roles whose name contains search, sorted by name.
func (s *InMemoryRoleStore) List(_ context.Context, search string) ([]*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]*models.Role, 0, len(s.roles))
	for _, r := range s.roles {
		if search != "" && !strings.Contains(strings.ToLower(r.Name), search) {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListGranting returns roles that carry any of the codenames.
func (s *InMemoryRoleStore) ListGranting(_ context.Context, codenames ...string) ([]*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Role
	for _, r := range s.roles {
		if r.Grants(codenames...) {
			out = append(out, clone(r))
		}
	}
	return out, nil
}
