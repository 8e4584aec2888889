package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tracked/internal/canon"
	"github.com/roach88/tracked/internal/provider"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - records table keyed by (resource, id)
const currentSchemaVersion = 1

// Backend stores records in a SQLite database.
type Backend struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Backend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	b := &Backend{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	b.logger.Debug("sqlite backend opened", "path", path)
	return b, nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (b *Backend) DB() *sql.DB {
	return b.db
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Get returns the record stored under (resource, id).
func (b *Backend) Get(ctx context.Context, resource, id string) (map[string]any, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `
		SELECT data FROM records WHERE resource = ? AND id = ?
	`, resource, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, provider.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	return unmarshalRecord(data)
}

// Put inserts or replaces a record. Rewriting identical content is a no-op.
func (b *Backend) Put(ctx context.Context, resource, id string, record map[string]any) error {
	data, err := marshalRecord(record)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	rev, err := canon.RecordRevision(resource, record)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	res, err := b.db.ExecContext(ctx, `
		INSERT INTO records (resource, id, data, revision, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM records))
		ON CONFLICT(resource, id) DO UPDATE
		SET data = excluded.data, revision = excluded.revision
		WHERE records.revision != excluded.revision
	`, resource, id, data, rev)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		b.logger.Debug("record unchanged", "resource", resource, "id", id, "revision", rev)
	}
	return nil
}

// Delete removes a record.
func (b *Backend) Delete(ctx context.Context, resource, id string) error {
	res, err := b.db.ExecContext(ctx, `
		DELETE FROM records WHERE resource = ? AND id = ?
	`, resource, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		return provider.ErrNotFound
	}
	return nil
}

// List returns every record of resource in insertion order.
//
// Returns an empty slice (not nil) if the resource has no records.
func (b *Backend) List(ctx context.Context, resource string) ([]map[string]any, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT data FROM records
		WHERE resource = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, resource)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []map[string]any{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := unmarshalRecord(data)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Resources returns the distinct resource names in the database, sorted.
func (b *Backend) Resources(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT DISTINCT resource FROM records ORDER BY resource COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	resources := []string{}
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return resources, nil
}

// Revision returns the stored content revision of a record.
func (b *Backend) Revision(ctx context.Context, resource, id string) (string, error) {
	var rev string
	err := b.db.QueryRowContext(ctx, `
		SELECT revision FROM records WHERE resource = ? AND id = ?
	`, resource, id).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", provider.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query revision: %w", err)
	}
	return rev, nil
}

var _ provider.Backend = (*Backend)(nil)
