package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/aicall"
	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/config"
	"github.com/zombor/receipt-capture/internal/database"
	"github.com/zombor/receipt-capture/internal/extraction"
	"github.com/zombor/receipt-capture/internal/logging"
	"github.com/zombor/receipt-capture/internal/metrics"
	"github.com/zombor/receipt-capture/internal/receipt"
	"github.com/zombor/receipt-capture/internal/scanning"
	"github.com/zombor/receipt-capture/internal/server"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.ParseServer(os.Args[1:])
	if errors.Is(err, ff.ErrHelp) {
		fmt.Fprintf(os.Stderr, "%s\n", cfg.Usage())
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", cfg.Usage())
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cfg.ShowVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger := logging.New(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Server, logger *zap.Logger) error {
	logger.Info("Initializing database...", zap.String("driver", cfg.Database.Driver))
	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	logger.Info("Initializing capture sessions...", zap.String("path", cfg.SessionsPath))
	if dir := filepath.Dir(cfg.SessionsPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating session directory: %w", err)
		}
	}
	sessions, err := capture.OpenStore(cfg.SessionsPath, cfg.SessionTTL, logger)
	if err != nil {
		return fmt.Errorf("initializing capture sessions: %w", err)
	}
	defer sessions.Close()

	store, err := newStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	scanner, err := newScanner(ctx, cfg.Scanner, logger)
	if err != nil {
		return fmt.Errorf("initializing scanner: %w", err)
	}
	if scanner != nil {
		defer scanner.Close()
	}

	m := metrics.New()
	calls := aicall.NewService(aicall.NewSQLDB(db), logger)

	srv := server.NewServer(server.Deps{
		Receipts: receipt.NewService(receipt.NewSQLDB(db), store, logger),
		AICalls:  calls,
		Gateway:  extraction.NewGateway(scanner, calls, m, logger),
		Sessions: sessions,
		Metrics:  m,
		Logger:   logger,
	}, server.Options{Development: cfg.Development()})

	logger.Info("Server started", zap.String("address", fmt.Sprintf("http://localhost%s", cfg.Addr())), zap.String("version", version))
	return srv.Start(ctx, cfg.Addr())
}

// newStorage returns nil when archiving is disabled
func newStorage(ctx context.Context, cfg config.Storage, logger *zap.Logger) (receipt.Storage, error) {
	switch cfg.Backend {
	case config.StorageLocal:
		logger.Info("Archiving source documents locally", zap.String("path", cfg.Path))
		return receipt.NewLocalStorage(cfg.Path)
	case config.StorageS3:
		logger.Info("Archiving source documents to S3", zap.String("bucket", cfg.S3.Bucket), zap.String("prefix", cfg.S3.Prefix))
		return receipt.NewS3Storage(ctx, cfg.S3)
	default:
		logger.Info("Source document archiving disabled")
		return nil, nil
	}
}

// newScanner returns nil when the provider has no credential, so extraction
// requests fail with a configuration error instead of the server refusing to start
func newScanner(ctx context.Context, cfg config.Scanner, logger *zap.Logger) (scanning.Scanner, error) {
	switch cfg.Provider {
	case config.ScannerOpenAI:
		if cfg.OpenAIKey == "" {
			logger.Warn("OpenAI API key missing; extraction disabled. Set --openai-key or OPENAI_API_KEY")
			return nil, nil
		}
		logger.Info("Initializing OpenAI scanner...", zap.String("model", cfg.OpenAIModel))
		return scanning.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case config.ScannerGemini:
		if cfg.GeminiKey == "" {
			logger.Warn("Gemini API key missing; extraction disabled. Set --gemini-key or GEMINI_API_KEY")
			return nil, nil
		}
		logger.Info("Initializing Gemini scanner...", zap.String("model", cfg.GeminiModel))
		return scanning.NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
	case config.ScannerOllama:
		logger.Info("Initializing Ollama scanner...", zap.String("url", cfg.OllamaURL), zap.String("model", cfg.OllamaModel))
		return scanning.NewOllama(cfg.OllamaURL, cfg.OllamaModel), nil
	default:
		return nil, fmt.Errorf("invalid scanner type %q", cfg.Provider)
	}
}
