// Package scanning sends receipt documents to vision models and parses
// the structured fields they return.
package scanning

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-capture/internal/receipt"
)

// ErrEmptyResponse is returned when the model answers with no content
var ErrEmptyResponse = errors.New("empty model response")

// Result holds the fields extracted from a receipt
type Result struct {
	Vendor     string           `json:"vendor"`
	Date       string           `json:"date"` // YYYY-MM-DD or empty
	Amount     decimal.Decimal  `json:"amount"`
	Tax        decimal.Decimal  `json:"tax"`
	Confidence float64          `json:"confidence"`
	Category   receipt.Category `json:"category"`
}

// ManualEntry is the placeholder result used when extraction is unavailable
func ManualEntry(now time.Time) *Result {
	return &Result{
		Vendor:   "Manual Entry Required",
		Date:     now.Format("2006-01-02"),
		Amount:   decimal.Zero,
		Tax:      decimal.Zero,
		Category: receipt.CategoryOther,
	}
}

// Document is a decoded receipt file
type Document struct {
	Data     []byte
	MIMEType string
	Filename string
}

// IsPDF reports whether the document should be treated as a PDF
func (d Document) IsPDF() bool {
	return IsPDF(d.MIMEType, d.Filename)
}

// IsPDF reports whether a MIME type or filename denotes a PDF
func IsPDF(mimeType, filename string) bool {
	return strings.EqualFold(strings.TrimSpace(mimeType), "application/pdf") ||
		strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// Scan sends the document to the model and parses its answer
	Scan(ctx context.Context, doc Document) (*Result, error)
	// Model names the model used, for the call log
	Model() string
	// Close releases resources
	Close() error
}
