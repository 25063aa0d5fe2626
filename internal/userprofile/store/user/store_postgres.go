package user

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
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/sentinel"
)

// PostgresStore persists users and their role memberships.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `u.id, u.username, u.nickname, u.email, u.password_hash, u.is_active,
	u.is_superuser, u.created_at, u.updated_at,
	ARRAY(SELECT ur.role_id::text FROM user_roles ur WHERE ur.user_id = u.id ORDER BY ur.role_id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u       models.User
		userID  uuid.UUID
		roleIDs pq.StringArray
	)
	if err := row.Scan(&userID, &u.Username, &u.Nickname, &u.Email, &u.PasswordHash, &u.IsActive,
		&u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt, &roleIDs); err != nil {
		return nil, err
	}
	u.ID = id.UserID(userID)
	roles, err := postgres.ParseUUIDs[id.RoleID](roleIDs)
	if err != nil {
		return nil, err
	}
	u.RoleIDs = roles
	return &u, nil
}

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (id, username, nickname, email, password_hash, is_active, is_superuser, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(user.ID), user.Username, user.Nickname, user.Email, user.PasswordHash,
		user.IsActive, user.IsSuperuser, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	if len(user.RoleIDs) > 0 {
		return s.SetRoles(ctx, user.ID, user.RoleIDs)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, user *models.User) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE users SET nickname = $2, email = $3, password_hash = $4, is_active = $5,
			is_superuser = $6, updated_at = $7
		WHERE id = $1`,
		uuid.UUID(user.ID), user.Nickname, user.Email, user.PasswordHash, user.IsActive,
		user.IsSuperuser, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1`, uuid.UUID(userID))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE lower(u.username) = lower($1)`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.UserID) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = ANY($1::uuid[])`, postgres.UUIDArray(ids))
	if err != nil {
		return nil, fmt.Errorf("find users by ids: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) List(ctx context.Context, filter models.UserFilter, page paging.Page) ([]*models.User, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ActiveOnly {
		where = append(where, "u.is_active")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		p := arg("%" + search + "%")
		where = append(where, fmt.Sprintf("(u.username ILIKE %s OR u.nickname ILIKE %s)", p, p))
	}
	if filter.RoleIDs != nil {
		cond := fmt.Sprintf("EXISTS (SELECT 1 FROM user_roles ur WHERE ur.user_id = u.id AND ur.role_id = ANY(%s::uuid[]))",
			arg(postgres.UUIDArray(filter.RoleIDs)))
		if filter.IncludeSuperusers {
			cond = "(u.is_superuser OR " + cond + ")"
		}
		where = append(where, cond)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := postgres.Conn(ctx, s.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM users u`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users u` + clause +
		fmt.Sprintf(` ORDER BY u.created_at, u.username LIMIT %s OFFSET %s`, arg(page.Size), arg(page.Offset()))
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	users, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func collect(rows *sql.Rows) ([]*models.User, error) {
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetRoles replaces the user's role memberships.
func (s *PostgresStore) SetRoles(ctx context.Context, userID id.UserID, roleIDs []id.RoleID) error {
	conn := postgres.Conn(ctx, s.db)
	var exists bool
	if err := conn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, uuid.UUID(userID)).Scan(&exists); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, uuid.UUID(userID)); err != nil {
		return fmt.Errorf("clear user roles: %w", err)
	}
	if len(roleIDs) == 0 {
		return nil
	}
	_, err := conn.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`,
		uuid.UUID(userID), postgres.UUIDArray(roleIDs))
	if err != nil {
		return fmt.Errorf("set user roles: %w", err)
	}
	return nil
}

// RemoveRole is handled by ON DELETE CASCADE on user_roles.
func (s *PostgresStore) RemoveRole(context.Context, id.RoleID) error {
	return nil
}
