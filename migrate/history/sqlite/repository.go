// Package sqlite provides a SQLite history repository. SQLite has no
// server-side lock primitive, so the migration lock is a single-row
// lock table claimed with an owner token.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/relforge/relforge"
	"github.com/relforge/relforge/migrate/history"
)

// TableConfig holds the table name for the history repository.
type TableConfig struct {
	// Table is the history table name (default: history.DefaultTableName).
	// The lock table is named Table + "_lock".
	Table string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{Table: history.DefaultTableName}
}

// Repository is a SQLite implementation of history.Repository.
type Repository struct {
	db    *sql.DB
	table string
}

// New creates a new SQLite history repository with default table name.
func New(db *sql.DB) *Repository {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a new SQLite history repository with a custom
// table name.
func NewWithConfig(db *sql.DB, config TableConfig) *Repository {
	if config.Table == "" {
		config.Table = history.DefaultTableName
	}
	return &Repository{db: db, table: config.Table}
}

func (r *Repository) lockTable() string {
	return r.table + "_lock"
}

// Exists reports whether the history table exists.
func (r *Repository) Exists(ctx context.Context) (bool, error) {
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, r.table).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check history table: %w", err)
	}
	return count > 0, nil
}

// Create creates the history table.
func (r *Repository) Create(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.CreateIfNotExistsScript()); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}
	return nil
}

// AcquireLock claims the single lock-table row, polling until the
// timeout. The row carries an owner token so only the claimant's
// release deletes it.
func (r *Repository) AcquireLock(ctx context.Context, timeout time.Duration) (history.ReleaseFunc, error) {
	createLock := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id INTEGER NOT NULL PRIMARY KEY, owner TEXT NOT NULL, acquired_at TEXT NOT NULL)`,
		r.lockTable())
	if _, err := r.db.ExecContext(ctx, createLock); err != nil {
		return nil, fmt.Errorf("failed to create lock table: %w", err)
	}

	owner := uuid.NewString()
	claim := fmt.Sprintf(`INSERT INTO %s (id, owner, acquired_at) VALUES (1, ?, ?)`, r.lockTable())
	deadline := time.Now().Add(timeout)
	for {
		_, err := r.db.ExecContext(ctx, claim, owner, time.Now().UTC().Format(time.RFC3339))
		if err == nil {
			break
		}
		// Only a primary-key conflict means another holder owns the
		// row. Anything else is a real failure, not contention.
		var sqliteErr sqlite3.Error
		if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
			return nil, fmt.Errorf("failed to claim migration lock: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: waited %s", relforge.ErrLockTimeout, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	release := func(ctx context.Context) error {
		query := fmt.Sprintf(`DELETE FROM %s WHERE id = 1 AND owner = ?`, r.lockTable())
		if _, err := r.db.ExecContext(ctx, query, owner); err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
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
		`INSERT INTO %s (migration_id, product_version) VALUES (?, ?)`, r.table)

	if _, err := r.db.ExecContext(ctx, query, row.MigrationID, row.ProductVersion); err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}
	return nil
}

// DeleteRow removes a migration's ledger record.
func (r *Repository) DeleteRow(ctx context.Context, migrationID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE migration_id = ?`, r.table)

	if _, err := r.db.ExecContext(ctx, query, migrationID); err != nil {
		return fmt.Errorf("failed to delete history row: %w", err)
	}
	return nil
}

// CreateIfNotExistsScript returns the table-creation fragment.
func (r *Repository) CreateIfNotExistsScript() string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (migration_id TEXT NOT NULL PRIMARY KEY, product_version TEXT NOT NULL);",
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

// BeginIfNotExistsScript returns the empty string: SQLite has no
// procedural IF block, so idempotent scripts degrade to plain scripts.
func (r *Repository) BeginIfNotExistsScript(migrationID string) string {
	return ""
}

// BeginIfExistsScript returns the empty string; see
// BeginIfNotExistsScript.
func (r *Repository) BeginIfExistsScript(migrationID string) string {
	return ""
}

// EndIfScript returns the empty string; see BeginIfNotExistsScript.
func (r *Repository) EndIfScript() string {
	return ""
}

// BeginTransactionScript returns the transaction opener.
func (r *Repository) BeginTransactionScript() string {
	return "BEGIN TRANSACTION;"
}

// CommitScript returns the transaction closer.
func (r *Repository) CommitScript() string {
	return "COMMIT;"
}

// Creator ensures database-file existence. SQLite creates the file on
// first write, so Create only touches the path to surface permission
// errors early.
type Creator struct {
	// Path is the database file path. ":memory:" always exists.
	Path string
}

// Exists reports whether the database file exists.
func (c Creator) Exists(ctx context.Context) (bool, error) {
	if c.Path == ":memory:" {
		return true, nil
	}
	_, err := os.Stat(c.Path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check database file: %w", err)
}

// Create creates an empty database file.
func (c Creator) Create(ctx context.Context) error {
	f, err := os.OpenFile(c.Path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create database file: %w", err)
	}
	return f.Close()
}
