package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"findiff/internal/platform/postgres"
	"findiff/internal/workflow/models"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/sentinel"
	"findiff/pkg/platform/tx"
)

// PostgresStore keeps reviews as JSONB next to denormalized assignee columns
// that the claim queries filter on. Reads inside a transaction lock the rows
// they return.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderColumns = `id, serial_id, article_id, book_id, order_status, returned_count, returned_remark,
	first_review, second_review, qa_review, operator_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o                     models.Order
		orderID, articleID    uuid.UUID
		book, operator        uuid.NullUUID
		first, second, review []byte
	)
	if err := row.Scan(&orderID, &o.SerialID, &articleID, &book, &o.Status, &o.ReturnedCount, &o.ReturnedRemark,
		&first, &second, &review, &operator, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.ID = id.OrderID(orderID)
	o.ArticleID = id.ArticleID(articleID)
	o.BookID = postgres.FromNull[id.BookID](book)
	o.OperatorID = postgres.FromNull[id.UserID](operator)
	if err := decodeJSON(first, &o.FirstReview); err != nil {
		return nil, fmt.Errorf("decode first review: %w", err)
	}
	if err := decodeJSON(second, &o.SecondReview); err != nil {
		return nil, fmt.Errorf("decode second review: %w", err)
	}
	if err := decodeJSON(review, &o.QAReview); err != nil {
		return nil, fmt.Errorf("decode qa review: %w", err)
	}
	return &o, nil
}

func decodeJSON[T any](raw []byte, dst **T) error {
	if len(raw) == 0 {
		*dst = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

func encodeJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// orderArgs returns the column values after id and serial_id, in
// orderColumns order, followed by the denormalized assignee columns.
func orderArgs(o *models.Order) ([]any, error) {
	first, err := encodeJSON(o.FirstReview)
	if err != nil {
		return nil, fmt.Errorf("encode first review: %w", err)
	}
	second, err := encodeJSON(o.SecondReview)
	if err != nil {
		return nil, fmt.Errorf("encode second review: %w", err)
	}
	review, err := encodeJSON(o.QAReview)
	if err != nil {
		return nil, fmt.Errorf("encode qa review: %w", err)
	}
	var bulk any
	if b := o.BulkID(); b != "" {
		bulk = b
	}
	return []any{
		uuid.UUID(o.ArticleID), postgres.NullUUID(o.BookID), string(o.Status), o.ReturnedCount, o.ReturnedRemark,
		first, second, review, postgres.NullUUID(o.OperatorID), o.CreatedAt, o.UpdatedAt,
		postgres.NullUUID(o.FirstUserID()), postgres.NullUUID(o.SecondUserID()), postgres.NullUUID(o.QAUserID()), bulk,
	}, nil
}

func (s *PostgresStore) Create(ctx context.Context, o *models.Order) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	_, err = postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO audit_orders (`+orderColumns+`, first_user_id, second_user_id, qa_user_id, qa_bulk_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		append([]any{uuid.UUID(o.ID), o.SerialID}, args...)...,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, o *models.Order) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE audit_orders SET article_id = $2, book_id = $3, order_status = $4, returned_count = $5,
			returned_remark = $6, first_review = $7, second_review = $8, qa_review = $9, operator_id = $10,
			created_at = $11, updated_at = $12, first_user_id = $13, second_user_id = $14, qa_user_id = $15,
			qa_bulk_id = $16
		WHERE id = $1`,
		append([]any{uuid.UUID(o.ID)}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, orderID id.OrderID) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM audit_orders WHERE id = $1`, uuid.UUID(orderID))
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func lockClause(ctx context.Context) string {
	if _, ok := tx.From(ctx); ok {
		return " FOR UPDATE"
	}
	return ""
}

func (s *PostgresStore) FindByID(ctx context.Context, orderID id.OrderID) (*models.Order, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM audit_orders WHERE id = $1`+lockClause(ctx), uuid.UUID(orderID))
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.OrderID) ([]*models.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+orderColumns+` FROM audit_orders WHERE id = ANY($1::uuid[]) ORDER BY created_at, id`+lockClause(ctx),
		postgres.UUIDArray(ids))
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	return collect(rows)
}

var stageColumns = map[models.Stage]string{
	models.StageFirst:  "first_user_id",
	models.StageSecond: "second_user_id",
	models.StageQA:     "qa_user_id",
}

// FindOwned returns the oldest order matching any of the assignments for
// user.
func (s *PostgresStore) FindOwned(ctx context.Context, user id.UserID, assignments []models.Assignment) (*models.Order, error) {
	if len(assignments) == 0 {
		return nil, sentinel.ErrNotFound
	}
	args := []any{uuid.UUID(user)}
	conds := make([]string, 0, len(assignments))
	for _, a := range assignments {
		col, ok := stageColumns[a.Stage]
		if !ok {
			return nil, fmt.Errorf("unknown stage %q", a.Stage)
		}
		args = append(args, string(a.Status))
		conds = append(conds, fmt.Sprintf("(order_status = $%d AND %s = $1)", len(args), col))
	}
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM audit_orders WHERE `+strings.Join(conds, " OR ")+
			` ORDER BY created_at, id LIMIT 1`+lockClause(ctx), args...)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find owned order: %w", err)
	}
	return o, nil
}

// ClaimCandidate locks the oldest order in status whose first reviewer is not
// exclude. Rows locked by concurrent claims are skipped, so two transactions
// never receive the same order. Call it inside a transaction.
func (s *PostgresStore) ClaimCandidate(ctx context.Context, status models.OrderStatus, exclude id.UserID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM audit_orders WHERE order_status = $1`
	args := []any{string(status)}
	if !exclude.IsNil() {
		query += ` AND first_user_id IS DISTINCT FROM $2`
		args = append(args, uuid.UUID(exclude))
	}
	query += ` ORDER BY created_at, id LIMIT 1 FOR UPDATE SKIP LOCKED`
	o, err := scanOrder(postgres.Conn(ctx, s.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim order: %w", err)
	}
	return o, nil
}

func whereClause(filter models.OrderFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		where = append(where, "order_status = ANY("+arg(pq.Array(statuses))+"::text[])")
	}
	if !filter.AssigneeID.IsNil() {
		p := arg(uuid.UUID(filter.AssigneeID))
		where = append(where, fmt.Sprintf("(first_user_id = %[1]s OR second_user_id = %[1]s)", p))
	}
	if !filter.QAUserID.IsNil() {
		where = append(where, "qa_user_id = "+arg(uuid.UUID(filter.QAUserID)))
	}
	if !filter.BookID.IsNil() {
		where = append(where, "book_id = "+arg(uuid.UUID(filter.BookID)))
	}
	if filter.BulkID != "" {
		where = append(where, "qa_bulk_id = "+arg(filter.BulkID))
	}
	if filter.SerialID != "" {
		where = append(where, "serial_id LIKE "+arg("%"+filter.SerialID+"%"))
	}
	if !filter.Created.From.IsZero() {
		where = append(where, "created_at >= "+arg(filter.Created.From))
	}
	if !filter.Created.To.IsZero() {
		where = append(where, "created_at <= "+arg(filter.Created.To))
	}
	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (s *PostgresStore) List(ctx context.Context, filter models.OrderFilter, page paging.Page) ([]*models.Order, int, error) {
	clause, args := whereClause(filter)
	conn := postgres.Conn(ctx, s.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM audit_orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	query := fmt.Sprintf(`SELECT %s FROM audit_orders%s ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		orderColumns, clause, len(args)+1, len(args)+2)
	rows, err := conn.QueryContext(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	orders, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *PostgresStore) Count(ctx context.Context, filter models.OrderFilter) (int, error) {
	clause, args := whereClause(filter)
	var total int
	if err := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `SELECT count(*) FROM audit_orders`+clause, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) CountByArticle(ctx context.Context, articleID id.ArticleID) (int, error) {
	var n int
	if err := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT count(*) FROM audit_orders WHERE article_id = $1`, uuid.UUID(articleID)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count article orders: %w", err)
	}
	return n, nil
}

// ListByBook returns every order of a book, oldest first.
func (s *PostgresStore) ListByBook(ctx context.Context, bookID id.BookID) ([]*models.Order, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+orderColumns+` FROM audit_orders WHERE book_id = $1 ORDER BY created_at, id`+lockClause(ctx),
		uuid.UUID(bookID))
	if err != nil {
		return nil, fmt.Errorf("list book orders: %w", err)
	}
	return collect(rows)
}

// QABooks summarizes books whose orders are all waiting for or in QA.
func (s *PostgresStore) QABooks(ctx context.Context) ([]models.BookQAStat, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT book_id, count(*),
			count(*) FILTER (WHERE order_status = $1),
			count(*) FILTER (WHERE order_status = $2)
		FROM audit_orders
		WHERE book_id IS NOT NULL
		GROUP BY book_id
		HAVING count(*) FILTER (WHERE order_status IN ($1, $2)) = count(*)
		ORDER BY book_id`,
		string(models.StatusQAUnassigned), string(models.StatusQAPending))
	if err != nil {
		return nil, fmt.Errorf("qa books: %w", err)
	}
	defer rows.Close()
	var out []models.BookQAStat
	for rows.Next() {
		var (
			st     models.BookQAStat
			bookID uuid.UUID
		)
		if err := rows.Scan(&bookID, &st.Total, &st.Unassigned, &st.Pending); err != nil {
			return nil, fmt.Errorf("scan qa book: %w", err)
		}
		st.BookID = id.BookID(bookID)
		out = append(out, st)
	}
	return out, rows.Err()
}

func collect(rows *sql.Rows) ([]*models.Order, error) {
	defer rows.Close()
	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
