// Package sqldb opens the database the SQL agent talks to and exposes the
// read-only introspection and query helpers its tools are built on.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/upb/analytics-tools/services"
	"go.uber.org/zap"
)

// Dialect identifies the SQL flavour behind a DB
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgresql"
)

const (
	defaultSampleRows = 3
	defaultMaxRows    = 100
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
	logger  *zap.Logger

	// SampleRows is the number of example rows TableInfo appends per table
	SampleRows int
	// MaxRows caps the rows Run renders
	MaxRows int
}

// ParseURL resolves a database URL into its dialect and the driver DSN.
// Accepted forms: sqlite:///relative.db, sqlite:////absolute.db, a bare
// path ending in .db/.sqlite/.sqlite3, and postgres:// or postgresql:// URLs.
func ParseURL(raw string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(raw, "sqlite:///"):
		path := strings.TrimPrefix(raw, "sqlite:///")
		if path == "" {
			return "", "", services.NewDomainError(services.ErrorTypeDatabase, "sqlite URL has no file path", nil).
				WithDetail("url", raw)
		}
		return DialectSQLite, path, nil
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return DialectPostgres, raw, nil
	}

	switch strings.ToLower(filepath.Ext(raw)) {
	case ".db", ".sqlite", ".sqlite3":
		return DialectSQLite, raw, nil
	}

	return "", "", services.NewDomainError(services.ErrorTypeDatabase, "unsupported database URL", nil).
		WithDetail("url", sanitize(raw))
}

// Open connects to the database named by rawURL and verifies the connection.
// SQLite files are opened read-only and must already exist.
func Open(ctx context.Context, rawURL string, logger *zap.Logger) (*DB, error) {
	dialect, target, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch dialect {
	case DialectSQLite:
		if _, err := os.Stat(target); err != nil {
			return nil, services.NewDomainError(services.ErrorTypeDatabase, "database file not found", err).
				WithDetail("path", target)
		}
		db, err = sql.Open("sqlite3", "file:"+target+"?mode=ro")
	case DialectPostgres:
		db, err = sql.Open("postgres", target)
	}
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeDatabase, "failed to open database", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, services.NewDomainError(services.ErrorTypeDatabase, "failed to ping database", err)
	}

	logger.Info("database connection established",
		zap.String("dialect", string(dialect)),
		zap.String("connection", sanitize(rawURL)))

	return New(db, dialect, logger), nil
}

// New wraps an open connection pool
func New(db *sql.DB, dialect Dialect, logger *zap.Logger) *DB {
	builder := sq.StatementBuilder
	if dialect == DialectPostgres {
		builder = builder.PlaceholderFormat(sq.Dollar)
	}
	return &DB{
		DB:         db,
		dialect:    dialect,
		builder:    builder,
		logger:     logger,
		SampleRows: defaultSampleRows,
		MaxRows:    defaultMaxRows,
	}
}

// Dialect returns the SQL dialect name shown to the model
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// sanitize strips the password from URL-shaped connection strings
func sanitize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User(u.User.Username())
	return u.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func dbError(message string, err error) error {
	return services.NewDomainError(services.ErrorTypeDatabase, message, err)
}

func buildErr(err error) error {
	return fmt.Errorf("failed to build query: %w", err)
}
