// Package warehouse provides the DuckDB-backed handle the pipeline loads
// into. Every statement addresses tables by fully qualified
// catalog.schema.table name, so connections never depend on session state.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DB is a long-lived warehouse handle, created once per process and shared.
type DB interface {
	Catalog() string
	Schema() string
	Conn(ctx context.Context) (Connection, error)
	Close() error
}

// Connection is a single pinned database connection. Callers that run
// multi-statement work (stage loads, merges) hold one Connection for the
// whole sequence.
type Connection interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

type Config struct {
	Logger *slog.Logger

	// Path is the DuckDB database file. It is created on first open.
	Path string

	// Optional with defaults.
	Catalog string // default "bannerlake"
	Schema  string // default "main"
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	if c.Catalog == "" {
		c.Catalog = "bannerlake"
	}
	if c.Schema == "" {
		c.Schema = "main"
	}
	return nil
}

// DuckDB implements DB over an embedded DuckDB database file.
type DuckDB struct {
	log     *slog.Logger
	db      *sql.DB
	catalog string
	schema  string
}

// New opens (creating if needed) the database file and attaches it under the
// configured catalog name.
func New(ctx context.Context, cfg Config) (*DuckDB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	attach := fmt.Sprintf("ATTACH IF NOT EXISTS '%s' AS %s", escapeSingleQuotes(cfg.Path), cfg.Catalog)
	if _, err := db.ExecContext(ctx, attach); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("attach database %s: %w", cfg.Path, err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s.%s", cfg.Catalog, cfg.Schema)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema %s.%s: %w", cfg.Catalog, cfg.Schema, err)
	}

	cfg.Logger.Debug("opened warehouse", "path", cfg.Path, "catalog", cfg.Catalog, "schema", cfg.Schema)

	return &DuckDB{
		log:     cfg.Logger,
		db:      db,
		catalog: cfg.Catalog,
		schema:  cfg.Schema,
	}, nil
}

func (d *DuckDB) Catalog() string { return d.catalog }
func (d *DuckDB) Schema() string  { return d.schema }

func (d *DuckDB) Conn(ctx context.Context) (Connection, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pin connection: %w", err)
	}
	return &duckConn{conn: conn}, nil
}

func (d *DuckDB) Close() error {
	return d.db.Close()
}

type duckConn struct {
	conn *sql.Conn
}

func (c *duckConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *duckConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *duckConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *duckConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.conn.BeginTx(ctx, opts)
}

func (c *duckConn) Close() error {
	return c.conn.Close()
}

func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
