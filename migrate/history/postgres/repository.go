// Package postgres provides a PostgreSQL history repository using an
// advisory lock to serialize concurrent migration runs.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/relforge/relforge"
	"github.com/relforge/relforge/migrate/history"
)

// TableConfig holds the table name for the history repository.
type TableConfig struct {
	// Table is the history table name (default: history.DefaultTableName).
	Table string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{Table: history.DefaultTableName}
}

// Repository is a PostgreSQL implementation of history.Repository.
// The migration lock is a session advisory lock keyed on the table
// name, held on a dedicated connection for the duration of the run.
type Repository struct {
	db    *sql.DB
	table string
}

// New creates a new PostgreSQL history repository with default table name.
func New(db *sql.DB) *Repository {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a new PostgreSQL history repository with a
// custom table name.
func NewWithConfig(db *sql.DB, config TableConfig) *Repository {
	if config.Table == "" {
		config.Table = history.DefaultTableName
	}
	return &Repository{db: db, table: config.Table}
}

// lockKey derives the advisory lock key from the table name, so
// distinct history tables in one database lock independently.
func (r *Repository) lockKey() int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("relforge:" + r.table))
	return int64(h.Sum64())
}

// Exists reports whether the history table exists.
func (r *Repository) Exists(ctx context.Context) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, r.table).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check history table: %w", err)
	}
	return exists, nil
}

// Create creates the history table.
func (r *Repository) Create(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.CreateIfNotExistsScript()); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}
	return nil
}

// AcquireLock acquires the advisory lock, polling until the timeout.
// The lock is session-scoped, so it is held on a dedicated connection
// that the returned release function unlocks and closes.
func (r *Repository) AcquireLock(ctx context.Context, timeout time.Duration) (history.ReleaseFunc, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock connection: %w", err)
	}

	key := r.lockKey()
	deadline := time.Now().Add(timeout)
	for {
		var acquired bool
		if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
		}
		if acquired {
			break
		}
		if time.Now().After(deadline) {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: waited %s", relforge.ErrLockTimeout, timeout)
		}
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	release := func(ctx context.Context) error {
		defer func() { _ = conn.Close() }()
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
			return fmt.Errorf("failed to release advisory lock: %w", err)
		}
		return nil
	}
	return release, nil
}

// AppliedMigrations returns all ledger rows ordered by migration id.
func (r *Repository) AppliedMigrations(ctx context.Context) ([]history.Row, error) {
	query := fmt.Sprintf(
		`SELECT migration_id, product_version FROM %s ORDER BY migration_id`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	var out []history.Row
	for rows.Next() {
		var row history.Row
		if err := rows.Scan(&row.MigrationID, &row.ProductVersion); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	return out, nil
}

// InsertRow records a migration as applied.
func (r *Repository) InsertRow(ctx context.Context, row history.Row) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (migration_id, product_version) VALUES ($1, $2)`, r.table)

	if _, err := r.db.ExecContext(ctx, query, row.MigrationID, row.ProductVersion); err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}
	return nil
}

// DeleteRow removes a migration's ledger record.
func (r *Repository) DeleteRow(ctx context.Context, migrationID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE migration_id = $1`, r.table)

	if _, err := r.db.ExecContext(ctx, query, migrationID); err != nil {
		return fmt.Errorf("failed to delete history row: %w", err)
	}
	return nil
}

// CreateIfNotExistsScript returns the table-creation fragment.
func (r *Repository) CreateIfNotExistsScript() string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (migration_id text NOT NULL PRIMARY KEY, product_version text NOT NULL);",
		r.table)
}

// InsertScript returns the row-insert fragment.
func (r *Repository) InsertScript(row history.Row) string {
	return fmt.Sprintf("INSERT INTO %s (migration_id, product_version) VALUES (%s, %s);",
		r.table, history.QuoteLiteral(row.MigrationID), history.QuoteLiteral(row.ProductVersion))
}

// DeleteScript returns the row-delete fragment.
func (r *Repository) DeleteScript(migrationID string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE migration_id = %s;",
		r.table, history.QuoteLiteral(migrationID))
}

// BeginIfNotExistsScript opens a DO block guarding on the migration
// being unrecorded.
func (r *Repository) BeginIfNotExistsScript(migrationID string) string {
	return fmt.Sprintf("DO $MIG$\nBEGIN\nIF NOT EXISTS (SELECT 1 FROM %s WHERE migration_id = %s) THEN",
		r.table, history.QuoteLiteral(migrationID))
}

// BeginIfExistsScript opens a DO block guarding on the migration being
// recorded.
func (r *Repository) BeginIfExistsScript(migrationID string) string {
	return fmt.Sprintf("DO $MIG$\nBEGIN\nIF EXISTS (SELECT 1 FROM %s WHERE migration_id = %s) THEN",
		r.table, history.QuoteLiteral(migrationID))
}

// EndIfScript closes a guard block.
func (r *Repository) EndIfScript() string {
	return "END IF;\nEND $MIG$;"
}

// BeginTransactionScript returns the transaction opener. The script
// writer emits it before the DO block: PL/pgSQL forbids transaction
// control inside the block, so the bracket must wrap the guard.
func (r *Repository) BeginTransactionScript() string {
	return "BEGIN TRANSACTION;"
}

// CommitScript returns the transaction closer.
func (r *Repository) CommitScript() string {
	return "COMMIT;"
}

// Creator ensures database existence using a maintenance connection,
// typically to the "postgres" database.
type Creator struct {
	// AdminDB is a connection with permission to create databases.
	AdminDB *sql.DB

	// Name is the target database name.
	Name string
}

// Exists reports whether the target database exists.
func (c Creator) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := c.AdminDB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, c.Name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check database existence: %w", err)
	}
	return exists, nil
}

// Create creates the target database.
func (c Creator) Create(ctx context.Context) error {
	if _, err := c.AdminDB.ExecContext(ctx, fmt.Sprintf(`CREATE DATABASE %q`, c.Name)); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	return nil
}
