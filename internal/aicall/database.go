package aicall

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"

	"github.com/zombor/receipt-capture/internal/database"
)

const tableName = "ai_calls"

var columns = []string{
	"id", "model", "input_type", "mime_type", "filename", "status", "error", "duration_ms", "created_at",
}

// ErrNotFound is returned when no record has the requested id
var ErrNotFound = errors.New("ai call not found")

// DB defines the interface for AI call persistence
type DB interface {
	InsertCall(ctx context.Context, record *Record) (int64, error)
	ListCalls(ctx context.Context, page database.Page) ([]*Record, int, error)
	Summarize(ctx context.Context) (Summary, error)
	DeleteCall(ctx context.Context, id int64) error
}

// SQLDB implements DB on the shared SQL store
type SQLDB struct {
	db *database.DB
}

// NewSQLDB creates an AI call repository
func NewSQLDB(db *database.DB) *SQLDB {
	return &SQLDB{db: db}
}

// InsertCall appends a record
func (s *SQLDB) InsertCall(ctx context.Context, r *Record) (int64, error) {
	insert := s.db.Builder().
		Insert(tableName).
		Columns("model", "input_type", "mime_type", "filename", "status", "error", "duration_ms", "created_at").
		Values(r.Model, string(r.InputType), r.MIMEType, nullString(r.Filename), string(r.Status),
			nullString(r.Error), r.DurationMS, database.FormatTimestamp(r.CreatedAt))

	id, err := s.db.InsertReturningID(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("inserting ai call: %w", err)
	}
	return id, nil
}

// ListCalls returns one page of records, newest first, and the total count
func (s *SQLDB) ListCalls(ctx context.Context, page database.Page) ([]*Record, int, error) {
	query, args, err := s.db.Builder().
		Select(columns...).
		From(tableName).
		OrderBy("id DESC").
		Limit(page.Limit()).
		Offset(page.Offset()).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying ai calls: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning ai call: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating ai calls: %w", err)
	}

	var total int
	countQuery, _, err := s.db.Builder().Select("COUNT(*)").From(tableName).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building count query: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting ai calls: %w", err)
	}

	return records, total, nil
}

// Summarize counts outcomes and averages durations over every record
func (s *SQLDB) Summarize(ctx context.Context) (Summary, error) {
	query, args, err := s.db.Builder().
		Select(
			"COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0)",
			"COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0)",
			"COALESCE(AVG(duration_ms), 0)",
		).
		From(tableName).
		ToSql()
	if err != nil {
		return Summary{}, fmt.Errorf("building summary query: %w", err)
	}

	var (
		summary Summary
		avg     float64
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&summary.SuccessCount, &summary.ErrorCount, &avg); err != nil {
		return Summary{}, fmt.Errorf("summarizing ai calls: %w", err)
	}
	summary.AvgDuration = int64(math.Round(avg))
	return summary, nil
}

// DeleteCall removes a record
func (s *SQLDB) DeleteCall(ctx context.Context, id int64) error {
	query, args, err := s.db.Builder().
		Delete(tableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting ai call: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting ai call: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		r         Record
		inputType string
		status    string
		filename  sql.NullString
		errMsg    sql.NullString
		createdAt string
	)
	if err := rows.Scan(&r.ID, &r.Model, &inputType, &r.MIMEType, &filename, &status, &errMsg,
		&r.DurationMS, &createdAt); err != nil {
		return nil, err
	}

	t, err := database.ParseTimestamp(createdAt)
	if err != nil {
		return nil, err
	}

	r.InputType = InputType(inputType)
	r.Status = Status(status)
	r.Filename = filename.String
	r.Error = errMsg.String
	r.CreatedAt = t
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
