// Package verify drives a staged receipt from extraction to approval.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/receipt"
	"github.com/zombor/receipt-capture/internal/scanning"
)

// DefaultLocation is stamped on approved receipts
const DefaultLocation = "Field Office A"

// TimeLayout formats the approval time
const TimeLayout = "03:04 PM"

// State is a step of the verification flow
type State string

const (
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateApproved   State = "approved"
	StateDiscarded  State = "discarded"
)

var (
	// ErrNoPayload means there is nothing to verify; return to capture
	ErrNoPayload = errors.New("no receipt to verify")
	// ErrNotReady means the flow has no result to edit or approve
	ErrNotReady = errors.New("verification is not ready")
	// ErrUnknownField is returned by Edit for unsupported fields
	ErrUnknownField = errors.New("unknown field")
)

// Extractor turns a payload into fields
type Extractor interface {
	Extract(ctx context.Context, p capture.Payload) (*scanning.Result, error)
}

// Sessions is the subset of the capture store used by the flow
type Sessions interface {
	Get(ctx context.Context, id string) (*capture.Session, error)
	SaveResult(ctx context.Context, id string, res *scanning.Result) error
	Delete(ctx context.Context, id string) error
}

// Saver persists an approved receipt, optionally with its source document
type Saver interface {
	Save(ctx context.Context, draft receipt.Draft, source *capture.Payload) (int64, error)
}

// Start is what the flow starts from. The first present source wins:
// an in-memory result, then an explicit payload, then the session.
type Start struct {
	SessionID string
	Payload   *capture.Payload
	Result    *scanning.Result
}

// Outcome reports what happened to an approved receipt
type Outcome struct {
	ReceiptID int64  `json:"id,omitempty"`
	Saved     bool   `json:"saved"`
	Warning   string `json:"warning,omitempty"`
}

// Flow is one verification of one receipt. It is not safe for concurrent use.
type Flow struct {
	extractor Extractor
	sessions  Sessions
	saver     Saver
	now       func() time.Time
	location  string
	logger    *zap.Logger

	state     State
	sessionID string
	payload   *capture.Payload
	result    *scanning.Result
}

// Option customizes a Flow
type Option func(*Flow)

// WithClock overrides the clock used for the approval time
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// WithLocation overrides the location stamped on approved receipts
func WithLocation(location string) Option {
	return func(f *Flow) { f.location = location }
}

// NewFlow creates a flow. sessions may be nil when no session is involved.
func NewFlow(extractor Extractor, sessions Sessions, saver Saver, logger *zap.Logger, opts ...Option) *Flow {
	f := &Flow{
		extractor: extractor,
		sessions:  sessions,
		saver:     saver,
		now:       time.Now,
		location:  DefaultLocation,
		logger:    logger,
		state:     StateProcessing,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current step
func (f *Flow) State() State {
	return f.state
}

// SessionID returns the session the flow is bound to, if any
func (f *Flow) SessionID() string {
	return f.sessionID
}

// Result returns a copy of the current fields, or nil before ready
func (f *Flow) Result() *scanning.Result {
	if f.result == nil {
		return nil
	}
	r := *f.result
	return &r
}

// Enter resolves the entry into a result and moves to ready
func (f *Flow) Enter(ctx context.Context, e Start) error {
	f.state = StateProcessing
	f.sessionID = e.SessionID
	f.payload = e.Payload

	switch {
	case e.Result != nil:
		r := *e.Result
		f.result = &r
	case e.Payload != nil && e.Payload.Valid():
		if err := f.extract(ctx, *e.Payload); err != nil {
			return err
		}
	case e.SessionID != "" && f.sessions != nil:
		sess, err := f.sessions.Get(ctx, e.SessionID)
		if errors.Is(err, capture.ErrSessionNotFound) {
			f.state = StateDiscarded
			return ErrNoPayload
		}
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}
		f.payload = sess.Payload
		if sess.Result != nil {
			f.result = sess.Result
			break
		}
		if sess.Payload == nil || !sess.Payload.Valid() {
			f.state = StateDiscarded
			return ErrNoPayload
		}
		if err := f.extract(ctx, *sess.Payload); err != nil {
			return err
		}
	default:
		f.state = StateDiscarded
		return ErrNoPayload
	}

	f.state = StateReady
	return nil
}

func (f *Flow) extract(ctx context.Context, p capture.Payload) error {
	res, err := f.extractor.Extract(ctx, p)
	if err != nil {
		return fmt.Errorf("extracting receipt: %w", err)
	}
	f.result = res

	if f.sessionID != "" && f.sessions != nil {
		if err := f.sessions.SaveResult(ctx, f.sessionID, res); err != nil {
			f.logger.Warn("failed to save result to session", zap.String("session", f.sessionID), zap.Error(err))
		}
	}
	return nil
}

// Edit changes one field of the result
func (f *Flow) Edit(field, value string) error {
	if f.state != StateReady {
		return ErrNotReady
	}

	value = strings.TrimSpace(value)
	switch field {
	case "vendor":
		f.result.Vendor = value
	case "date":
		f.result.Date = value
	case "amount", "tax":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q", field, value)
		}
		if field == "amount" {
			f.result.Amount = d
		} else {
			f.result.Tax = d
		}
	case "category":
		c := receipt.Category(value)
		if !c.Valid() {
			return fmt.Errorf("invalid category %q", value)
		}
		f.result.Category = c
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

// Checkpoint stores the edited result in the session
func (f *Flow) Checkpoint(ctx context.Context) error {
	if f.state != StateReady {
		return ErrNotReady
	}
	if f.sessionID == "" || f.sessions == nil {
		return nil
	}
	if err := f.sessions.SaveResult(ctx, f.sessionID, f.result); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Draft maps the current result to a verified receipt stamped with the approval time
func (f *Flow) Draft() receipt.Draft {
	amount := f.result.Amount
	tax := f.result.Tax
	return receipt.Draft{
		Vendor:   f.result.Vendor,
		Amount:   &amount,
		Date:     f.result.Date,
		Tax:      &tax,
		Status:   receipt.StatusVerified,
		Category: f.result.Category,
		Location: f.location,
		Time:     f.now().Format(TimeLayout),
	}
}

// Approve saves the receipt and ends the flow. A failed save does not block
// approval; it is logged and reported in the outcome.
func (f *Flow) Approve(ctx context.Context) (Outcome, error) {
	if f.state != StateReady {
		return Outcome{}, ErrNotReady
	}

	var out Outcome
	id, err := f.saver.Save(ctx, f.Draft(), f.payload)
	if err != nil {
		f.logger.Warn("failed to save approved receipt", zap.String("vendor", f.result.Vendor), zap.Error(err))
		out.Warning = "Receipt approved but could not be saved: " + err.Error()
	} else {
		out.ReceiptID = id
		out.Saved = true
	}

	f.clearSession(ctx)
	f.state = StateApproved
	return out, nil
}

// Discard abandons the receipt and ends the flow
func (f *Flow) Discard(ctx context.Context) {
	f.clearSession(ctx)
	f.state = StateDiscarded
}

func (f *Flow) clearSession(ctx context.Context) {
	if f.sessionID == "" || f.sessions == nil {
		return
	}
	if err := f.sessions.Delete(ctx, f.sessionID); err != nil && !errors.Is(err, capture.ErrSessionNotFound) {
		f.logger.Warn("failed to clear session", zap.String("session", f.sessionID), zap.Error(err))
	}
}
