// Package server exposes receipts, AI calls and capture sessions over HTTP
// and serves the embedded browser UI.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/aicall"
	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/extraction"
	"github.com/zombor/receipt-capture/internal/metrics"
	"github.com/zombor/receipt-capture/internal/receipt"
	"github.com/zombor/receipt-capture/internal/verify"
)

// maxBodySize bounds JSON bodies that carry a data URL
const maxBodySize = 50 << 20

// Deps are the services behind the routes
type Deps struct {
	Receipts *receipt.Service
	AICalls  *aicall.Service
	Gateway  *extraction.Gateway
	Sessions *capture.Store
	Metrics  *metrics.Metrics // optional
	Logger   *zap.Logger
}

// Options tune server behavior
type Options struct {
	// Development enables CORS and leaves the UI to a separate dev server
	Development bool
	// Location is stamped on receipts approved through capture sessions
	Location string
	// Now is the clock used for approval times
	Now func() time.Time
}

// Server handles HTTP requests
type Server struct {
	receipts  *receipt.Service
	calls     *aicall.Service
	gateway   *extraction.Gateway
	extractor verify.Extractor
	sessions  *capture.Store
	metrics   *metrics.Metrics
	opts      Options
	logger    *zap.Logger
	mux       *http.ServeMux
	handler   http.Handler
}

// NewServer creates a new Server with default mux
func NewServer(deps Deps, opts Options) *Server {
	return NewServerWithMux(deps, opts, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(deps Deps, opts Options, mux *http.ServeMux) *Server {
	if opts.Location == "" {
		opts.Location = verify.DefaultLocation
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		receipts:  deps.Receipts,
		calls:     deps.AICalls,
		gateway:   deps.Gateway,
		extractor: verify.WithFallback(deps.Gateway, opts.Now, deps.Logger),
		sessions:  deps.Sessions,
		metrics:   deps.Metrics,
		opts:      opts,
		logger:    deps.Logger,
		mux:       mux,
	}
	s.registerRoutes()

	var h http.Handler = s.mux
	if opts.Development {
		h = corsMiddleware(h)
	}
	if s.metrics != nil {
		h = metricsMiddleware(s.metrics, h)
	}
	s.handler = h
	return s
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/extract", s.handleExtract)

	s.mux.HandleFunc("GET /api/receipts/export", s.handleExportReceipts)
	s.mux.HandleFunc("GET /api/receipts/export.xlsx", s.handleExportReceiptsXLSX)
	s.mux.HandleFunc("GET /api/receipts/{id}/file", s.handleGetReceiptFile)
	s.mux.HandleFunc("GET /api/receipts/{id}", s.handleGetReceipt)
	s.mux.HandleFunc("DELETE /api/receipts/{id}", s.handleDeleteReceipt)
	s.mux.HandleFunc("GET /api/receipts", s.handleListReceipts)
	s.mux.HandleFunc("POST /api/receipts", s.handleCreateReceipt)

	s.mux.HandleFunc("GET /api/ai-calls", s.handleListAICalls)
	s.mux.HandleFunc("DELETE /api/ai-calls/{id}", s.handleDeleteAICall)

	s.mux.HandleFunc("POST /api/captures", s.handleCreateCapture)
	s.mux.HandleFunc("GET /api/captures/{id}", s.handleGetCapture)
	s.mux.HandleFunc("POST /api/captures/{id}/verify", s.handleVerifyCapture)
	s.mux.HandleFunc("PATCH /api/captures/{id}", s.handleEditCapture)
	s.mux.HandleFunc("POST /api/captures/{id}/approve", s.handleApproveCapture)
	s.mux.HandleFunc("DELETE /api/captures/{id}", s.handleDiscardCapture)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	if !s.opts.Development {
		s.mux.HandleFunc("GET /static/app.css", s.handleStatic(appCSS, "text/css; charset=utf-8"))
		s.mux.HandleFunc("GET /static/app.js", s.handleStatic(appJS, "application/javascript; charset=utf-8"))
		// catch-all for client-side routes
		s.mux.HandleFunc("GET /", s.handleIndex)
	}
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.String("address", addr), zap.Bool("development", s.opts.Development))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler with the full middleware chain
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// corsMiddleware allows the development UI on another origin
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request counts and latency by route pattern
func metricsMiddleware(m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.ObserveRequest(r.Method, routeLabel(r), rec.status, time.Since(started))
	})
}

// routeLabel uses the matched mux pattern so ids do not explode label cardinality
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}
