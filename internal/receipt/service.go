package receipt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/database"
	"github.com/zombor/receipt-capture/internal/export"
)

// ExportHeader is the column order of CSV and XLSX exports
var ExportHeader = []string{
	"id", "vendor", "amount", "date", "tax", "status", "category", "location", "time", "created_at",
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ValidationError reports request fields that failed validation
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Fields, ", "))
}

// Service handles receipt operations
type Service struct {
	db         DB
	storage    Storage
	validate   *validator.Validate
	timeSource TimeSource
	logger     *zap.Logger
}

// NewService creates a new Service with the system clock.
// storage may be nil, in which case source documents are not archived.
func NewService(db DB, storage Storage, logger *zap.Logger) *Service {
	return NewServiceWithDeps(db, storage, &defaultTimeSource{}, logger)
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, timeSrc TimeSource, logger *zap.Logger) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return &Service{
		db:         db,
		storage:    storage,
		validate:   v,
		timeSource: timeSrc,
		logger:     logger,
	}
}

// List returns one page of receipts matching filter
func (s *Service) List(ctx context.Context, filter Filter, page database.Page) (*List, error) {
	items, total, err := s.db.ListReceipts(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return &List{
		Items:    items,
		Total:    total,
		Page:     page.Number,
		PageSize: page.Size,
	}, nil
}

// Create validates and stores a receipt, returning its id
func (s *Service) Create(ctx context.Context, draft Draft) (int64, error) {
	return s.CreateWithAttachment(ctx, draft, nil)
}

// CreateWithAttachment stores a receipt and archives its source document.
// The archived file is removed again if the insert fails.
func (s *Service) CreateWithAttachment(ctx context.Context, draft Draft, att *Attachment) (int64, error) {
	draft.Vendor = strings.TrimSpace(draft.Vendor)
	draft.Location = strings.TrimSpace(draft.Location)
	draft.Time = strings.TrimSpace(draft.Time)
	if err := s.validateDraft(draft); err != nil {
		return 0, err
	}

	now := s.timeSource.Now()
	r := &Receipt{
		Vendor:    draft.Vendor,
		Amount:    *draft.Amount,
		Date:      draft.Date,
		Tax:       *draft.Tax,
		Status:    draft.Status,
		Category:  draft.Category,
		Location:  draft.Location,
		Time:      draft.Time,
		CreatedAt: now,
	}

	if att != nil && len(att.Data) > 0 && s.storage != nil {
		key := fmt.Sprintf("%d_%s", now.UnixNano(), sanitizeFilename(att.Filename))
		saved, err := s.storage.Save(ctx, key, att.Data, att.MIMEType)
		if err != nil {
			return 0, fmt.Errorf("saving file: %w", err)
		}
		r.FileKey = saved
		r.MIMEType = att.MIMEType
	}

	id, err := s.db.InsertReceipt(ctx, r)
	if err != nil {
		if r.HasFile() {
			if delErr := s.storage.Delete(ctx, r.FileKey); delErr != nil {
				s.logger.Warn("failed to remove orphaned file", zap.String("key", r.FileKey), zap.Error(delErr))
			}
		}
		return 0, fmt.Errorf("saving receipt: %w", err)
	}

	s.logger.Info("receipt created",
		zap.Int64("id", id),
		zap.String("vendor", r.Vendor),
		zap.String("amount", r.Amount.StringFixed(2)),
		zap.Bool("archived", r.HasFile()),
	)
	return id, nil
}

// Get retrieves a receipt by id
func (s *Service) Get(ctx context.Context, id int64) (*Receipt, error) {
	r, err := s.db.GetReceipt(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return r, nil
}

// File returns the archived source document of a receipt and its MIME type
func (s *Service) File(ctx context.Context, id int64) ([]byte, string, error) {
	r, err := s.db.GetReceipt(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}
	if !r.HasFile() || s.storage == nil {
		return nil, "", fmt.Errorf("%w: no file for receipt %d", ErrNotFound, id)
	}

	data, err := s.storage.Get(ctx, r.FileKey)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, r.MIMEType, nil
}

// Delete removes a receipt and its archived file
func (s *Service) Delete(ctx context.Context, id int64) error {
	r, err := s.db.GetReceipt(ctx, id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.db.DeleteReceipt(ctx, id); err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}

	if r.HasFile() && s.storage != nil {
		if err := s.storage.Delete(ctx, r.FileKey); err != nil {
			s.logger.Warn("failed to delete file", zap.String("key", r.FileKey), zap.Error(err))
		}
	}
	return nil
}

// ExportCSV writes every receipt matching filter as CSV
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, filter Filter) error {
	receipts, err := s.db.AllReceipts(ctx, filter)
	if err != nil {
		return fmt.Errorf("exporting receipts: %w", err)
	}

	rows := make([][]string, 0, len(receipts))
	for _, r := range receipts {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.Vendor,
			r.Amount.String(),
			r.Date,
			r.Tax.String(),
			string(r.Status),
			string(r.Category),
			r.Location,
			r.Time,
			database.FormatTimestamp(r.CreatedAt),
		})
	}
	return export.WriteCSV(w, ExportHeader, rows)
}

// ExportXLSX writes every receipt matching filter as a spreadsheet
func (s *Service) ExportXLSX(ctx context.Context, w io.Writer, filter Filter) error {
	receipts, err := s.db.AllReceipts(ctx, filter)
	if err != nil {
		return fmt.Errorf("exporting receipts: %w", err)
	}

	rows := make([][]any, 0, len(receipts))
	for _, r := range receipts {
		rows = append(rows, []any{
			r.ID,
			r.Vendor,
			r.Amount.InexactFloat64(),
			r.Date,
			r.Tax.InexactFloat64(),
			string(r.Status),
			string(r.Category),
			r.Location,
			r.Time,
			database.FormatTimestamp(r.CreatedAt),
		})
	}
	return export.WriteXLSX(w, "Receipts", ExportHeader, rows)
}

// ParseFilter reads list and export filters from query parameters
func ParseFilter(q url.Values) (Filter, error) {
	f := Filter{
		Search:   strings.TrimSpace(q.Get("search")),
		Status:   q.Get("status"),
		Category: q.Get("category"),
		DateFrom: q.Get("dateFrom"),
		DateTo:   q.Get("dateTo"),
	}

	var bad []string
	for _, p := range []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"minAmount", &f.MinAmount},
		{"maxAmount", &f.MaxAmount},
	} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			bad = append(bad, p.name)
			continue
		}
		*p.dst = &d
	}
	if len(bad) > 0 {
		return Filter{}, &ValidationError{Fields: bad, Reason: "invalid amount"}
	}
	return f, nil
}

func (s *Service) validateDraft(d Draft) error {
	err := s.validate.Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating receipt: %w", err)
	}

	missing := make([]string, 0, len(verrs))
	invalid := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fe.Field())
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing, Reason: "missing required fields"}
	}
	return &ValidationError{Fields: invalid, Reason: "invalid fields"}
}

// sanitizeFilename strips characters that phones put in capture names and bounds the length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	ext = unsafeFilenameChars.ReplaceAllString(strings.TrimPrefix(ext, "."), "")
	if ext == "" {
		return base
	}
	return base + "." + ext
}
