package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-capture/internal/receipt"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

type rawResult struct {
	Vendor     string           `json:"vendor"`
	Date       string           `json:"date"`
	Amount     *decimal.Decimal `json:"amount"`
	Tax        *decimal.Decimal `json:"tax"`
	Confidence float64          `json:"confidence"`
	Category   string           `json:"category"`
}

// parseResult decodes a model answer, tolerating code fences and loose values
func parseResult(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	start := strings.Index(text, "{")
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	res := &Result{
		Vendor:     strings.TrimSpace(raw.Vendor),
		Date:       normalizeDate(raw.Date),
		Amount:     decimal.Zero,
		Tax:        decimal.Zero,
		Confidence: clamp(raw.Confidence, 0, 100),
		Category:   normalizeCategory(raw.Category),
	}
	if raw.Amount != nil {
		res.Amount = *raw.Amount
	}
	if raw.Tax != nil {
		res.Tax = *raw.Tax
	}
	return res, nil
}

// normalizeDate rewrites recognised dates as YYYY-MM-DD and leaves anything else as given
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return s
}

func normalizeCategory(s string) receipt.Category {
	s = strings.TrimSpace(s)
	for _, c := range receipt.Categories {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return receipt.CategoryOther
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
