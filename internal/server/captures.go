package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/receipt"
	"github.com/zombor/receipt-capture/internal/scanning"
	"github.com/zombor/receipt-capture/internal/verify"
)

// captureView is the client-facing shape of a session; the data URL stays server side
type captureView struct {
	ID        string           `json:"id"`
	State     verify.State     `json:"state"`
	MIMEType  string           `json:"mimeType,omitempty"`
	Filename  string           `json:"filename,omitempty"`
	Result    *scanning.Result `json:"result,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

func newCaptureView(sess *capture.Session) captureView {
	v := captureView{
		ID:        sess.ID,
		State:     verify.StateProcessing,
		Result:    sess.Result,
		CreatedAt: sess.CreatedAt,
	}
	if sess.Result != nil {
		v.State = verify.StateReady
	}
	if sess.Payload != nil {
		v.MIMEType = sess.Payload.MIMEType
		v.Filename = sess.Payload.Filename
	}
	return v
}

func (s *Server) newFlow() *verify.Flow {
	return verify.NewFlow(s.extractor, s.sessions, receiptSaver{receipts: s.receipts, logger: s.logger}, s.logger,
		verify.WithClock(s.opts.Now),
		verify.WithLocation(s.opts.Location),
	)
}

// readySession loads a session that already has a result to edit or approve
func (s *Server) readySession(w http.ResponseWriter, r *http.Request) (*capture.Session, bool) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	if sess.Result == nil {
		s.writeError(w, http.StatusConflict, "Receipt has not been extracted yet")
		return nil, false
	}
	return sess, true
}

// handleCreateCapture stages a payload in a new session
func (s *Server) handleCreateCapture(w http.ResponseWriter, r *http.Request) {
	var p capture.Payload
	if !s.decodeJSON(w, r, &p) {
		return
	}
	if !p.Valid() {
		s.writeError(w, http.StatusBadRequest, "Missing dataUrl or mimeType")
		return
	}

	sess, err := s.sessions.Create(r.Context(), p)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newCaptureView(sess))
}

// handleGetCapture returns a session
func (s *Server) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCaptureView(sess))
}

// handleVerifyCapture extracts the staged payload unless a result is already stored.
// Extraction failures yield the manual entry placeholder.
func (s *Server) handleVerifyCapture(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flow := s.newFlow()
	if err := flow.Enter(r.Context(), verify.Start{SessionID: id}); err != nil {
		if errors.Is(err, verify.ErrNoPayload) {
			s.writeError(w, http.StatusNotFound, "No receipt to verify")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	view := newCaptureView(sess)
	view.State = flow.State()
	view.Result = flow.Result()
	s.writeJSON(w, http.StatusOK, view)
}

// handleEditCapture applies field edits, e.g. {"vendor": "Acme", "amount": "12.50"}
func (s *Server) handleEditCapture(w http.ResponseWriter, r *http.Request) {
	var edits map[string]string
	if !s.decodeJSON(w, r, &edits) {
		return
	}
	sess, ok := s.readySession(w, r)
	if !ok {
		return
	}

	flow := s.newFlow()
	if err := flow.Enter(r.Context(), verify.Start{SessionID: sess.ID, Payload: sess.Payload, Result: sess.Result}); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	fields := make([]string, 0, len(edits))
	for field := range edits {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if err := flow.Edit(field, edits[field]); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := flow.Checkpoint(r.Context()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	sess.Result = flow.Result()
	s.writeJSON(w, http.StatusOK, newCaptureView(sess))
}

// handleApproveCapture saves the verified receipt and ends the session.
// A failed save is reported as a warning, not an error.
func (s *Server) handleApproveCapture(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.readySession(w, r)
	if !ok {
		return
	}

	flow := s.newFlow()
	if err := flow.Enter(r.Context(), verify.Start{SessionID: sess.ID, Payload: sess.Payload, Result: sess.Result}); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out, err := flow.Approve(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleDiscardCapture drops a session
func (s *Server) handleDiscardCapture(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// receiptSaver stores approved receipts together with their source document
type receiptSaver struct {
	receipts *receipt.Service
	logger   *zap.Logger
}

func (rs receiptSaver) Save(ctx context.Context, draft receipt.Draft, source *capture.Payload) (int64, error) {
	if source == nil || !source.Valid() {
		return rs.receipts.Create(ctx, draft)
	}

	data, err := source.Decode()
	if err != nil {
		rs.logger.Warn("source document not archived", zap.String("mime_type", source.MIMEType), zap.Error(err))
		return rs.receipts.Create(ctx, draft)
	}

	return rs.receipts.CreateWithAttachment(ctx, draft, &receipt.Attachment{
		Filename: attachmentName(source.Filename, source.MIMEType),
		MIMEType: source.MIMEType,
		Data:     data,
	})
}

var extensionsByType = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"image/heif":      ".heif",
}

// attachmentName names unnamed payloads, such as legacy ones, after their type
func attachmentName(filename, mimeType string) string {
	if filename != "" && filename != capture.LegacyFilename {
		return filename
	}
	return capture.LegacyFilename + extensionsByType[mimeType]
}
