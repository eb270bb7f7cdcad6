package aicall

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/database"
	"github.com/zombor/receipt-capture/internal/export"
)

// ExportHeader is the column order of AI call CSV exports
var ExportHeader = []string{
	"id", "model", "input_type", "mime_type", "filename", "status", "duration_ms", "created_at", "error",
}

// Service reads and writes the AI call log
type Service struct {
	db     DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a Service
func NewService(db DB, logger *zap.Logger) *Service {
	return &Service{db: db, now: time.Now, logger: logger}
}

// Log appends one record, stamping created_at when unset
func (s *Service) Log(ctx context.Context, r *Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	if r.Status == StatusSuccess {
		r.Error = ""
	}

	id, err := s.db.InsertCall(ctx, r)
	if err != nil {
		return fmt.Errorf("logging ai call: %w", err)
	}
	r.ID = id
	return nil
}

// List returns one page of records with the overall summary
func (s *Service) List(ctx context.Context, page database.Page) (*List, error) {
	items, total, err := s.db.ListCalls(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("listing ai calls: %w", err)
	}
	summary, err := s.db.Summarize(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing ai calls: %w", err)
	}
	return &List{
		Items:    items,
		Total:    total,
		Page:     page.Number,
		PageSize: page.Size,
		Summary:  summary,
	}, nil
}

// Delete removes one record
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.db.DeleteCall(ctx, id); err != nil {
		return err
	}
	s.logger.Info("ai call deleted", zap.Int64("id", id))
	return nil
}

// Filter narrows an already loaded page of records
type Filter struct {
	Search string
	Status Status // empty matches all
}

// Apply returns the records matching f, preserving order
func (f Filter) Apply(records []*Record) []*Record {
	term := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]*Record, 0, len(records))
	for _, r := range records {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		haystack := strings.ToLower(strings.Join([]string{
			r.Model, string(r.InputType), r.MIMEType, r.Filename, string(r.Status), r.Error,
		}, " "))
		if !strings.Contains(haystack, term) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// WriteCSV exports records with every field quoted
func WriteCSV(w io.Writer, records []*Record) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.Model,
			string(r.InputType),
			r.MIMEType,
			r.Filename,
			string(r.Status),
			strconv.FormatInt(r.DurationMS, 10),
			database.FormatTimestamp(r.CreatedAt),
			r.Error,
		})
	}
	return export.WriteCSV(w, ExportHeader, rows)
}
