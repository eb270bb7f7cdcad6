// Package config reads server configuration from flags, the environment
// and optional .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/database"
	"github.com/zombor/receipt-capture/internal/logging"
	"github.com/zombor/receipt-capture/internal/receipt"
	"github.com/zombor/receipt-capture/internal/scanning"
)

// EnvPrefix prefixes every server environment variable
const EnvPrefix = "RECEIPT_CAPTURE"

// Run modes
const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Storage backends for archived source documents
const (
	StorageNone  = "none"
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Extraction providers
const (
	ScannerOpenAI = "openai"
	ScannerGemini = "gemini"
	ScannerOllama = "ollama"
)

// Scanner holds extraction provider configuration
type Scanner struct {
	Provider      string
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string
	GeminiKey     string
	GeminiModel   string
	OllamaURL     string
	OllamaModel   string
}

// Storage holds source document archive configuration
type Storage struct {
	Backend string
	Path    string
	S3      receipt.S3Config
}

// Server is the configuration of cmd/receipt-capture
type Server struct {
	Port         int
	Mode         string
	Database     database.Config
	SessionsPath string
	SessionTTL   time.Duration
	Storage      Storage
	Scanner      Scanner
	Log          logging.Config
	ShowVersion  bool

	usage string
}

// Development reports whether CORS is enabled and the UI is served elsewhere
func (s *Server) Development() bool {
	return s.Mode == ModeDevelopment
}

// Addr is the listen address
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// Usage renders flag help
func (s *Server) Usage() string {
	return s.usage
}

// LoadEnvFiles loads .env.local then .env. Variables already set win,
// so .env.local takes precedence over .env. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env.local", ".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ParseServer parses server flags with RECEIPT_CAPTURE_ environment fallbacks.
// The returned config is non-nil even on error so callers can print Usage.
func ParseServer(args []string) (*Server, error) {
	fs := ff.NewFlagSet("receipt-capture")
	var (
		port          = fs.IntLong("port", 3001, "HTTP server port")
		mode          = fs.StringLong("mode", ModeProduction, "Run mode: 'production' serves the UI, 'development' enables CORS")
		dbDriver      = fs.StringLong("db-driver", database.DriverSQLite, "Database driver: 'sqlite3' or 'pgx'")
		dbDSN         = fs.StringLong("db-dsn", "data/receipts.db", "SQLite file path or Postgres connection string")
		dbMaxOpen     = fs.IntLong("db-max-open-conns", 10, "Maximum open database connections")
		sessionsPath  = fs.StringLong("sessions-db", "data/sessions.db", "Capture session store path")
		sessionTTL    = fs.DurationLong("session-ttl", capture.DefaultSessionTTL, "How long an unfinished capture session is kept")
		storage       = fs.StringLong("storage", StorageLocal, "Source document archive: 'none', 'local' or 's3'")
		storagePath   = fs.StringLong("storage-path", "data/receipts", "Local archive directory")
		s3Bucket      = fs.StringLong("s3-bucket", "", "S3 bucket for archived documents")
		s3Region      = fs.StringLong("s3-region", "", "S3 region")
		s3Prefix      = fs.StringLong("s3-prefix", "receipts", "S3 key prefix")
		s3Endpoint    = fs.StringLong("s3-endpoint", "", "Custom endpoint for S3-compatible services")
		s3AccessKey   = fs.StringLong("s3-access-key", "", "S3 access key (default AWS credential chain when empty)")
		s3SecretKey   = fs.StringLong("s3-secret-key", "", "S3 secret key")
		s3PathStyle   = fs.BoolLong("s3-path-style", "Use path-style S3 addressing")
		scanner       = fs.StringLong("scanner", ScannerOpenAI, "Extraction provider: 'openai', 'gemini' or 'ollama'")
		openAIKey     = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY)")
		openAIModel   = fs.StringLong("openai-model", firstNonEmpty(os.Getenv("OPENAI_MODEL"), scanning.DefaultOpenAIModel), "OpenAI model name")
		openAIBaseURL = fs.StringLong("openai-base-url", "", "OpenAI-compatible API base URL")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY)")
		geminiModel   = fs.StringLong("gemini-model", scanning.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn, error")
		logFormat     = fs.StringLong("log-format", "console", "Log format: 'console' or 'json'")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	cfg := &Server{usage: ffhelp.Flags(fs).String()}
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix(EnvPrefix)); err != nil {
		return cfg, err
	}

	*cfg = Server{
		Port: *port,
		Mode: *mode,
		Database: database.Config{
			Driver:       *dbDriver,
			DSN:          *dbDSN,
			MaxOpenConns: *dbMaxOpen,
		},
		SessionsPath: *sessionsPath,
		SessionTTL:   *sessionTTL,
		Storage: Storage{
			Backend: *storage,
			Path:    *storagePath,
			S3: receipt.S3Config{
				Bucket:          *s3Bucket,
				Region:          *s3Region,
				Prefix:          *s3Prefix,
				Endpoint:        *s3Endpoint,
				AccessKeyID:     *s3AccessKey,
				SecretAccessKey: *s3SecretKey,
				UsePathStyle:    *s3PathStyle,
			},
		},
		Scanner: Scanner{
			Provider:      *scanner,
			OpenAIKey:     firstNonEmpty(*openAIKey, os.Getenv("OPENAI_API_KEY")),
			OpenAIModel:   *openAIModel,
			OpenAIBaseURL: *openAIBaseURL,
			GeminiKey:     firstNonEmpty(*geminiKey, os.Getenv("GEMINI_API_KEY")),
			GeminiModel:   *geminiModel,
			OllamaURL:     *ollamaURL,
			OllamaModel:   *ollamaModel,
		},
		Log:         logging.Config{Level: *logLevel, Format: *logFormat},
		ShowVersion: *showVersion,
		usage:       cfg.usage,
	}

	return cfg, cfg.validate()
}

func (s *Server) validate() error {
	var errs []error
	switch s.Mode {
	case ModeProduction, ModeDevelopment:
	default:
		errs = append(errs, fmt.Errorf("invalid mode %q", s.Mode))
	}
	switch s.Database.Driver {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("invalid db-driver %q", s.Database.Driver))
	}
	switch s.Storage.Backend {
	case StorageNone, StorageLocal:
	case StorageS3:
		if s.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("s3-bucket is required with storage s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage %q", s.Storage.Backend))
	}
	switch s.Scanner.Provider {
	case ScannerOpenAI, ScannerGemini, ScannerOllama:
	default:
		errs = append(errs, fmt.Errorf("invalid scanner %q", s.Scanner.Provider))
	}
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", s.Port))
	}
	return errors.Join(errs...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
