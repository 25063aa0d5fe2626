// Package service implements user, role and permission management.
package service

import (
	"context"
	"log/slog"
	"time"

	"findiff/internal/userprofile/catalog"
	"findiff/internal/userprofile/models"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/paging"
	"findiff/pkg/requestcontext"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []id.UserID) ([]*models.User, error)
	List(ctx context.Context, filter models.UserFilter, page paging.Page) ([]*models.User, int, error)
	SetRoles(ctx context.Context, userID id.UserID, roleIDs []id.RoleID) error
	RemoveRole(ctx context.Context, roleID id.RoleID) error
}

type RoleStore interface {
	Create(ctx context.Context, role *models.Role) error
	Update(ctx context.Context, role *models.Role) error
	Delete(ctx context.Context, roleID id.RoleID) error
	FindByID(ctx context.Context, roleID id.RoleID) (*models.Role, error)
	FindByIDs(ctx context.Context, ids []id.RoleID) ([]*models.Role, error)
	List(ctx context.Context, search string) ([]*models.Role, error)
	ListGranting(ctx context.Context, codenames ...string) ([]*models.Role, error)
}

// TxRunner scopes multi-store writes to one unit of work.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserMetrics is satisfied by the platform metrics.
type UserMetrics interface {
	IncrementUsersCreated()
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

type Service struct {
	users   UserStore
	roles   RoleStore
	catalog *catalog.Catalog
	tx      TxRunner
	hasher  PasswordHasher
	logger  *slog.Logger
	metrics UserMetrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m UserMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithHasher replaces the bcrypt hasher, mainly to keep tests fast.
func WithHasher(h PasswordHasher) Option {
	return func(s *Service) {
		s.hasher = h
	}
}

func New(users UserStore, roles RoleStore, cat *catalog.Catalog, opts ...Option) *Service {
	s := &Service{
		users:   users,
		roles:   roles,
		catalog: cat,
		hasher:  BcryptHasher{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	args := append(attributes,
		"event", event,
		"log_type", "audit",
		"request_id", requestcontext.RequestID(ctx),
	)
	if actor := requestcontext.UserID(ctx); !actor.IsNil() {
		args = append(args, "actor_id", actor.String())
	}
	s.logger.InfoContext(ctx, event, args...)
}

func now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx)
}
