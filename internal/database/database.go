// Package database opens the relational store shared by the receipt and
// AI call repositories and owns its schema.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Supported database/sql driver names
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// TimestampLayout is the textual form of created_at columns.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Config holds database configuration
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB wraps sql.DB with the dialect needed to build portable queries
type DB struct {
	*sql.DB
	driver string
	logger *zap.Logger
}

// Open connects to the database and applies the schema
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*DB, error) {
	dsn, err := dataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{DB: sqlDB, driver: cfg.Driver, logger: logger}
	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Info("Database ready", zap.String("driver", cfg.Driver))
	return db, nil
}

func dataSourceName(cfg Config) (string, error) {
	switch cfg.Driver {
	case DriverSQLite:
		if cfg.DSN == "" {
			return "", errors.New("sqlite database path is required")
		}
		if strings.HasPrefix(cfg.DSN, "file:") || cfg.DSN == ":memory:" {
			return cfg.DSN, nil
		}
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", fmt.Errorf("creating database directory: %w", err)
			}
		}
		return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", cfg.DSN), nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return "", errors.New("postgres connection string is required")
		}
		return cfg.DSN, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Builder returns a squirrel statement builder using the driver's placeholders
func (db *DB) Builder() sq.StatementBuilderType {
	if db.driver == DriverPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// likeEscaper makes LIKE wildcards in a search term match literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Contains matches rows where any of the columns contains term literally.
// SQLite LIKE is already case-insensitive for ASCII; Postgres needs ILIKE.
func (db *DB) Contains(term string, columns ...string) sq.Sqlizer {
	pattern := "%" + likeEscaper.Replace(term) + "%"
	op := "LIKE"
	if db.driver == DriverPostgres {
		op = "ILIKE"
	}
	or := make(sq.Or, 0, len(columns))
	for _, col := range columns {
		or = append(or, sq.Expr(col+" "+op+` ? ESCAPE '\'`, pattern))
	}
	return or
}

// InsertReturningID executes an insert and returns the generated primary key
func (db *DB) InsertReturningID(ctx context.Context, insert sq.InsertBuilder) (int64, error) {
	if db.driver == DriverPostgres {
		query, args, err := insert.Suffix("RETURNING id").ToSql()
		if err != nil {
			return 0, fmt.Errorf("building insert: %w", err)
		}
		var id int64
		if err := db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building insert: %w", err)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FormatTimestamp renders a timestamp for a created_at column
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a created_at column value
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
