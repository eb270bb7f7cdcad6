package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/aicall"
	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/database"
	"github.com/zombor/receipt-capture/internal/extraction"
	"github.com/zombor/receipt-capture/internal/receipt"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// writeJSON encodes v with the given status
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding response", zap.Error(err))
	}
}

// writeError writes the {"error": ...} envelope
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps domain errors to HTTP statuses
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *receipt.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, receipt.ErrNotFound), errors.Is(err, aicall.ErrNotFound), errors.Is(err, capture.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, "Not found")
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads a size-limited JSON body into v, writing a 4xx on failure
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "Request body too large. Maximum size is 50MB.")
			return false
		}
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		s.writeError(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleExtract runs one extraction for a payload
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if !s.gateway.Configured() {
		s.writeError(w, http.StatusInternalServerError, "Missing extraction provider credential")
		return
	}

	var p capture.Payload
	if !s.decodeJSON(w, r, &p) {
		return
	}

	res, err := s.gateway.Extract(r.Context(), p)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, res)
	case errors.Is(err, extraction.ErrMissingInput):
		s.writeError(w, http.StatusBadRequest, "Missing dataUrl or mimeType")
	case errors.Is(err, extraction.ErrNotConfigured):
		s.writeError(w, http.StatusInternalServerError, "Missing extraction provider credential")
	case errors.Is(err, extraction.ErrEmptyResponse):
		s.writeError(w, http.StatusBadGateway, extraction.EmptyResponseMessage)
	default:
		s.writeError(w, http.StatusBadGateway, "Extraction failed")
	}
}

// handleListReceipts returns one filtered page of receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := receipt.ParseFilter(q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	list, err := s.receipts.List(r.Context(), filter, database.NewPage(q.Get("page"), q.Get("pageSize")))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleCreateReceipt stores a receipt
func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var draft receipt.Draft
	if !s.decodeJSON(w, r, &draft) {
		return
	}

	id, err := s.receipts.Create(r.Context(), draft)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// handleExportReceipts streams every matching receipt as CSV
func (s *Server) handleExportReceipts(w http.ResponseWriter, r *http.Request) {
	filter, err := receipt.ParseFilter(r.URL.Query())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.receipts.ExportCSV(r.Context(), &buf, filter); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=receipts.csv")
	w.Write(buf.Bytes())
}

// handleExportReceiptsXLSX is the spreadsheet variant of handleExportReceipts
func (s *Server) handleExportReceiptsXLSX(w http.ResponseWriter, r *http.Request) {
	filter, err := receipt.ParseFilter(r.URL.Query())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.receipts.ExportXLSX(r.Context(), &buf, filter); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=receipts.xlsx")
	w.Write(buf.Bytes())
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	rec, err := s.receipts.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// handleGetReceiptFile returns the archived source document of a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	data, contentType, err := s.receipts.File(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.receipts.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListAICalls returns one page of the AI call log with its summary
func (s *Server) handleListAICalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.calls.List(r.Context(), database.NewPage(q.Get("page"), q.Get("pageSize")))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleDeleteAICall deletes an AI call record
func (s *Server) handleDeleteAICall(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.calls.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIndex serves the UI shell for every non-API path
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		s.writeError(w, http.StatusNotFound, "Not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleStatic(body []byte, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write(body)
	}
}
