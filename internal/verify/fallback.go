package verify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/scanning"
)

type fallbackExtractor struct {
	next   Extractor
	now    func() time.Time
	logger *zap.Logger
}

// WithFallback wraps an extractor so that any failure yields the manual entry
// placeholder instead of an error
func WithFallback(next Extractor, now func() time.Time, logger *zap.Logger) Extractor {
	if now == nil {
		now = time.Now
	}
	return &fallbackExtractor{next: next, now: now, logger: logger}
}

func (f *fallbackExtractor) Extract(ctx context.Context, p capture.Payload) (*scanning.Result, error) {
	res, err := f.next.Extract(ctx, p)
	if err != nil || res == nil {
		f.logger.Warn("extraction unavailable, falling back to manual entry",
			zap.String("mime_type", p.MIMEType),
			zap.Error(err),
		)
		return scanning.ManualEntry(f.now()), nil
	}
	return res, nil
}
