// Package extraction runs one AI extraction per request and logs every attempt.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/aicall"
	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/scanning"
)

// EmptyResponseMessage is logged for answers with no content
const EmptyResponseMessage = "Empty model response"

var (
	// ErrNotConfigured means no provider credential was supplied
	ErrNotConfigured = errors.New("extraction provider is not configured")
	// ErrMissingInput means the payload lacks a data URL or MIME type
	ErrMissingInput = errors.New("missing dataUrl or mimeType")
	// ErrEmptyResponse means the model answered with nothing
	ErrEmptyResponse = errors.New(EmptyResponseMessage)
	// ErrExtractionFailed covers every other failed attempt
	ErrExtractionFailed = errors.New("extraction failed")
)

// CallLog persists one record per attempt
type CallLog interface {
	Log(ctx context.Context, r *aicall.Record) error
}

// Observer receives extraction outcomes, typically metrics
type Observer interface {
	ObserveExtraction(status, inputType string, d time.Duration)
}

// Gateway sends payloads to the configured scanner
type Gateway struct {
	scanner  scanning.Scanner
	calls    CallLog
	observer Observer
	now      func() time.Time
	logger   *zap.Logger
}

// NewGateway creates a Gateway. A nil scanner reports ErrNotConfigured on every call.
func NewGateway(scanner scanning.Scanner, calls CallLog, observer Observer, logger *zap.Logger) *Gateway {
	return &Gateway{
		scanner:  scanner,
		calls:    calls,
		observer: observer,
		now:      time.Now,
		logger:   logger,
	}
}

// Configured reports whether a provider is available
func (g *Gateway) Configured() bool {
	return g.scanner != nil
}

// Extract decodes the payload, asks the model for its fields, and logs the attempt
func (g *Gateway) Extract(ctx context.Context, p capture.Payload) (*scanning.Result, error) {
	if g.scanner == nil {
		return nil, ErrNotConfigured
	}
	if !p.Valid() {
		return nil, ErrMissingInput
	}

	inputType := aicall.InputImage
	if scanning.IsPDF(p.MIMEType, p.Filename) {
		inputType = aicall.InputPDF
	}

	started := g.now()
	res, err := g.scan(ctx, p)
	elapsed := g.now().Sub(started)

	record := &aicall.Record{
		Model:      g.scanner.Model(),
		InputType:  inputType,
		MIMEType:   p.MIMEType,
		Filename:   p.Filename,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  started,
	}

	switch {
	case err == nil:
		record.Status = aicall.StatusSuccess
	case errors.Is(err, scanning.ErrEmptyResponse):
		record.Status = aicall.StatusError
		record.Error = EmptyResponseMessage
		err = ErrEmptyResponse
	default:
		record.Status = aicall.StatusError
		record.Error = err.Error()
		g.logger.Error("extraction failed",
			zap.String("mime_type", p.MIMEType),
			zap.String("filename", p.Filename),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		err = fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	if logErr := g.calls.Log(context.WithoutCancel(ctx), record); logErr != nil {
		g.logger.Error("failed to log ai call", zap.Error(logErr))
	}
	if g.observer != nil {
		g.observer.ObserveExtraction(string(record.Status), string(inputType), elapsed)
	}

	if err != nil {
		return nil, err
	}

	g.logger.Info("extraction succeeded",
		zap.String("model", record.Model),
		zap.String("input_type", string(inputType)),
		zap.Int64("duration_ms", record.DurationMS),
		zap.Float64("confidence", res.Confidence),
	)
	return res, nil
}

func (g *Gateway) scan(ctx context.Context, p capture.Payload) (*scanning.Result, error) {
	data, err := p.Decode()
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return g.scanner.Scan(ctx, scanning.Document{
		Data:     data,
		MIMEType: p.MIMEType,
		Filename: p.Filename,
	})
}
