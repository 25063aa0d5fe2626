package user

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"findiff/internal/userprofile/models"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users in a map guarded by a RWMutex.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[id.UserID]*models.User
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[id.UserID]*models.User)}
}

func clone(u *models.User) *models.User {
	c := *u
	c.RoleIDs = slices.Clone(u.RoleIDs)
	return &c
}

func (s *InMemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, user.Username) {
			return sentinel.ErrConflict
		}
	}
	s.users[user.ID] = clone(user)
	return nil
}

func (s *InMemoryUserStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.users[user.ID] = clone(user)
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		return clone(u), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryUserStore) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return clone(u), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// FindByIDs returns the users that exist among ids, in no particular order.
func (s *InMemoryUserStore) FindByIDs(_ context.Context, ids []id.UserID) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, 0, len(ids))
	for _, userID := range ids {
		if u, ok := s.users[userID]; ok {
			out = append(out, clone(u))
		}
	}
	return out, nil
}

func (s *InMemoryUserStore) List(_ context.Context, filter models.UserFilter, page paging.Page) ([]*models.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var matched []*models.User
	for _, u := range s.users {
		if !matches(u, filter, search) {
			continue
		}
		matched = append(matched, clone(u))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].Username < matched[j].Username
	})
	return paging.Slice(matched, page), len(matched), nil
}

func matches(u *models.User, filter models.UserFilter, search string) bool {
	if filter.ActiveOnly && !u.IsActive {
		return false
	}
	if search != "" &&
		!strings.Contains(strings.ToLower(u.Username), search) &&
		!strings.Contains(strings.ToLower(u.Nickname), search) {
		return false
	}
	if filter.RoleIDs != nil {
		if filter.IncludeSuperusers && u.IsSuperuser {
			return true
		}
		return slices.ContainsFunc(filter.RoleIDs, u.HasRole)
	}
	return true
}

func (s *InMemoryUserStore) SetRoles(_ context.Context, userID id.UserID, roleIDs []id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.RoleIDs = slices.Clone(roleIDs)
	return nil
}

// RemoveRole drops a deleted role from every user.
func (s *InMemoryUserStore) RemoveRole(_ context.Context, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		u.RoleIDs = slices.DeleteFunc(u.RoleIDs, func(r id.RoleID) bool { return r == roleID })
	}
	return nil
}
