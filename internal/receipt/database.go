package receipt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/zombor/receipt-capture/internal/database"
)

const tableName = "receipts"

var columns = []string{
	"id", "vendor", "amount", "date", "tax", "status", "category",
	"location", "time", "file_key", "mime_type", "created_at",
}

// ErrNotFound is returned when no receipt has the requested id
var ErrNotFound = errors.New("receipt not found")

// DB defines the interface for receipt persistence
type DB interface {
	// InsertReceipt stores a receipt and returns its generated id
	InsertReceipt(ctx context.Context, receipt *Receipt) (int64, error)

	// GetReceipt retrieves a receipt by id
	GetReceipt(ctx context.Context, id int64) (*Receipt, error)

	// ListReceipts returns one page of matching receipts, newest first, and the total match count
	ListReceipts(ctx context.Context, filter Filter, page database.Page) ([]*Receipt, int, error)

	// AllReceipts returns every matching receipt, newest first
	AllReceipts(ctx context.Context, filter Filter) ([]*Receipt, error)

	// DeleteReceipt removes a receipt
	DeleteReceipt(ctx context.Context, id int64) error
}

// SQLDB implements DB on the shared SQL store
type SQLDB struct {
	db *database.DB
}

// NewSQLDB creates a receipt repository
func NewSQLDB(db *database.DB) *SQLDB {
	return &SQLDB{db: db}
}

// InsertReceipt stores a receipt and returns its generated id
func (s *SQLDB) InsertReceipt(ctx context.Context, r *Receipt) (int64, error) {
	insert := s.db.Builder().
		Insert(tableName).
		Columns("vendor", "amount", "date", "tax", "status", "category", "location", "time", "file_key", "mime_type", "created_at").
		Values(r.Vendor, r.Amount, r.Date, r.Tax, string(r.Status), string(r.Category), r.Location, r.Time,
			nullString(r.FileKey), nullString(r.MIMEType), database.FormatTimestamp(r.CreatedAt))

	id, err := s.db.InsertReturningID(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("inserting receipt: %w", err)
	}
	return id, nil
}

// GetReceipt retrieves a receipt by id
func (s *SQLDB) GetReceipt(ctx context.Context, id int64) (*Receipt, error) {
	query, args, err := s.db.Builder().
		Select(columns...).
		From(tableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	receipt, err := scanReceipt(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns one page of matching receipts and the total match count
func (s *SQLDB) ListReceipts(ctx context.Context, filter Filter, page database.Page) ([]*Receipt, int, error) {
	where := s.where(filter)

	query, args, err := s.db.Builder().
		Select(columns...).
		From(tableName).
		Where(where).
		OrderBy("id DESC").
		Limit(page.Limit()).
		Offset(page.Offset()).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building query: %w", err)
	}

	receipts, err := s.query(ctx, query, args)
	if err != nil {
		return nil, 0, err
	}

	countQuery, countArgs, err := s.db.Builder().
		Select("COUNT(*)").
		From(tableName).
		Where(where).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building count query: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting receipts: %w", err)
	}

	return receipts, total, nil
}

// AllReceipts returns every matching receipt
func (s *SQLDB) AllReceipts(ctx context.Context, filter Filter) ([]*Receipt, error) {
	query, args, err := s.db.Builder().
		Select(columns...).
		From(tableName).
		Where(s.where(filter)).
		OrderBy("id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	return s.query(ctx, query, args)
}

// DeleteReceipt removes a receipt
func (s *SQLDB) DeleteReceipt(ctx context.Context, id int64) error {
	query, args, err := s.db.Builder().
		Delete(tableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// where turns a filter into a conjunction; an empty And renders as a no-op.
func (s *SQLDB) where(f Filter) sq.And {
	and := sq.And{}
	if f.Search != "" {
		and = append(and, s.db.Contains(f.Search, "vendor", "category", "location"))
	}
	if f.Status != "" {
		and = append(and, sq.Eq{"status": f.Status})
	}
	if f.Category != "" {
		and = append(and, sq.Eq{"category": f.Category})
	}
	if f.DateFrom != "" {
		and = append(and, sq.GtOrEq{"date": f.DateFrom})
	}
	if f.DateTo != "" {
		and = append(and, sq.LtOrEq{"date": f.DateTo})
	}
	if f.MinAmount != nil {
		and = append(and, sq.GtOrEq{"amount": f.MinAmount.InexactFloat64()})
	}
	if f.MaxAmount != nil {
		and = append(and, sq.LtOrEq{"amount": f.MaxAmount.InexactFloat64()})
	}
	return and
}

func (s *SQLDB) query(ctx context.Context, query string, args []interface{}) ([]*Receipt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]*Receipt, 0)
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating receipts: %w", err)
	}
	return receipts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*Receipt, error) {
	var (
		r         Receipt
		status    string
		category  string
		fileKey   sql.NullString
		mimeType  sql.NullString
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.Vendor, &r.Amount, &r.Date, &r.Tax, &status, &category,
		&r.Location, &r.Time, &fileKey, &mimeType, &createdAt); err != nil {
		return nil, err
	}

	t, err := database.ParseTimestamp(createdAt)
	if err != nil {
		return nil, err
	}

	r.Status = Status(status)
	r.Category = Category(category)
	r.FileKey = fileKey.String
	r.MIMEType = mimeType.String
	r.CreatedAt = t
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
