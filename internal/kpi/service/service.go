// Package service records reviewer KPI and aggregates it per user.
package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"findiff/internal/kpi/models"
	upmodels "findiff/internal/userprofile/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/requestcontext"
)

type Store interface {
	Add(ctx context.Context, records []models.Record) error
	Totals(ctx context.Context, filter models.Filter) ([]models.TypeTotal, error)
	ListByOrder(ctx context.Context, orderID id.OrderID) ([]models.Record, error)
}

// UserDirectory resolves the users a summary mentions.
type UserDirectory interface {
	Users(ctx context.Context, ids []id.UserID) (map[id.UserID]*upmodels.User, error)
}

type Service struct {
	store  Store
	users  UserDirectory
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, users UserDirectory, opts ...Option) *Service {
	s := &Service{store: store, users: users, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add stores records, filling ids, counts and timestamps. It joins the
// caller's transaction, which is how workflow transitions credit reviewers
// atomically.
func (s *Service) Add(ctx context.Context, records ...models.Record) error {
	if len(records) == 0 {
		return nil
	}
	now := requestcontext.Now(ctx)
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if r.ID.IsNil() {
			r.ID = id.KPIID(uuid.New())
		}
		if r.Count == 0 {
			r.Count = 1
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if err := r.Validate(); err != nil {
			return err
		}
		out = append(out, r)
	}
	if err := s.store.Add(ctx, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record kpi")
	}
	for _, r := range out {
		s.logger.InfoContext(ctx, "kpi_recorded",
			"event", "kpi_recorded",
			"log_type", "audit",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", r.UserID.String(),
			"type", string(r.Type),
			"trigger_step", string(r.TriggerStep),
		)
	}
	return nil
}

// Summary sums counts per user per type. Search matches username or
// nickname. Rows are sorted by username.
func (s *Service) Summary(ctx context.Context, filter models.Filter) ([]*models.SummaryRow, error) {
	totals, err := s.store.Totals(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load kpi")
	}
	rows := make(map[id.UserID]*models.SummaryRow)
	var userIDs []id.UserID
	for _, t := range totals {
		row, ok := rows[t.UserID]
		if !ok {
			row = &models.SummaryRow{UserID: t.UserID, Totals: make(map[models.Type]int)}
			rows[t.UserID] = row
			userIDs = append(userIDs, t.UserID)
		}
		row.Totals[t.Type] += t.Total
	}
	users, err := s.users.Users(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]*models.SummaryRow, 0, len(rows))
	for _, userID := range userIDs {
		row := rows[userID]
		if u, ok := users[userID]; ok {
			row.Username = u.Username
			row.Nickname = u.Nickname
			row.DisplayName = u.DisplayName()
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(row.Username), search) &&
			!strings.Contains(strings.ToLower(row.Nickname), search) {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// ForOrder lists what an order credited or charged, for the order history.
func (s *Service) ForOrder(ctx context.Context, orderID id.OrderID) ([]models.Record, error) {
	records, err := s.store.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load kpi")
	}
	return records, nil
}
