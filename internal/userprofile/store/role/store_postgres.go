package role

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"findiff/internal/platform/postgres"
	"findiff/internal/userprofile/models"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const roleColumns = `id, name, perms, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*models.Role, error) {
	var (
		r      models.Role
		roleID uuid.UUID
		perms  pq.StringArray
	)
	if err := row.Scan(&roleID, &r.Name, &perms, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.ID = id.RoleID(roleID)
	r.Perms = []string(perms)
	return &r, nil
}

func (s *PostgresStore) Create(ctx context.Context, role *models.Role) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO roles (id, name, perms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(role.ID), role.Name, pq.Array(role.Perms), role.CreatedAt, role.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, role *models.Role) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE roles SET name = $2, perms = $3, updated_at = $4 WHERE id = $1`,
		uuid.UUID(role.ID), role.Name, pq.Array(role.Perms), role.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, roleID id.RoleID) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, uuid.UUID(roleID))
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, roleID id.RoleID) (*models.Role, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, uuid.UUID(roleID))
	r, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find role: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.RoleID) ([]*models.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.query(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ANY($1::uuid[])`, postgres.UUIDArray(ids))
}

func (s *PostgresStore) List(ctx context.Context, search string) ([]*models.Role, error) {
	search = strings.TrimSpace(search)
	if search == "" {
		return s.query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	}
	return s.query(ctx, `SELECT `+roleColumns+` FROM roles WHERE name ILIKE $1 ORDER BY name`, "%"+search+"%")
}

func (s *PostgresStore) ListGranting(ctx context.Context, codenames ...string) ([]*models.Role, error) {
	return s.query(ctx, `SELECT `+roleColumns+` FROM roles WHERE perms && $1::text[] ORDER BY name`, pq.Array(codenames))
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Role, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()
	var out []*models.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
