// Package mysql provides a MySQL/MariaDB history repository using
// GET_LOCK to serialize concurrent migration runs.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
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

// Repository is a MySQL implementation of history.Repository.
// The migration lock is a named server lock (GET_LOCK) keyed on the
// table name, held on a dedicated connection for the duration of the
// run.
type Repository struct {
	db    *sql.DB
	table string
}

// New creates a new MySQL history repository with default table name.
func New(db *sql.DB) *Repository {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a new MySQL history repository with a custom
// table name.
func NewWithConfig(db *sql.DB, config TableConfig) *Repository {
	if config.Table == "" {
		config.Table = history.DefaultTableName
	}
	return &Repository{db: db, table: config.Table}
}

func (r *Repository) lockName() string {
	return "relforge:" + r.table
}

// Exists reports whether the history table exists.
func (r *Repository) Exists(ctx context.Context) (bool, error) {
	query := `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`

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

// AcquireLock acquires the named server lock, waiting up to timeout.
// GET_LOCK is session-scoped, so the lock is held on a dedicated
// connection that the returned release function unlocks and closes.
func (r *Repository) AcquireLock(ctx context.Context, timeout time.Duration) (history.ReleaseFunc, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock connection: %w", err)
	}

	seconds := int(timeout / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	var acquired sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, r.lockName(), seconds).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired.Valid || acquired.Int64 != 1 {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: waited %s", relforge.ErrLockTimeout, timeout)
	}

	release := func(ctx context.Context) error {
		defer func() { _ = conn.Close() }()
		if _, err := conn.ExecContext(ctx, `SELECT RELEASE_LOCK(?)`, r.lockName()); err != nil {
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
		"CREATE TABLE IF NOT EXISTS %s (migration_id VARCHAR(150) NOT NULL PRIMARY KEY, product_version VARCHAR(32) NOT NULL) ENGINE=InnoDB;",
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

// guardProcedure is the throwaway stored procedure that gives each
// guarded block the procedural context MySQL requires for IF. The
// script drops and recreates it per block.
const guardProcedure = "relforge_migration_guard"

// beginGuard renders the procedure wrapper around a conditional block.
// The DELIMITER directives target the mysql client, which is how
// generated scripts are expected to be run.
func (r *Repository) beginGuard(condition string) string {
	return fmt.Sprintf("DROP PROCEDURE IF EXISTS %s;\n"+
		"DELIMITER //\n"+
		"CREATE PROCEDURE %s()\n"+
		"BEGIN\n"+
		"%s", guardProcedure, guardProcedure, condition)
}

// BeginIfNotExistsScript opens a guard on the migration being
// unrecorded, wrapped in the stored procedure MySQL needs to execute
// an IF block.
func (r *Repository) BeginIfNotExistsScript(migrationID string) string {
	return r.beginGuard(fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM %s WHERE migration_id = %s) THEN",
		r.table, history.QuoteLiteral(migrationID)))
}

// BeginIfExistsScript opens a guard on the migration being recorded.
func (r *Repository) BeginIfExistsScript(migrationID string) string {
	return r.beginGuard(fmt.Sprintf("IF EXISTS (SELECT 1 FROM %s WHERE migration_id = %s) THEN",
		r.table, history.QuoteLiteral(migrationID)))
}

// EndIfScript closes the guard block, invokes the procedure, and drops
// it again.
func (r *Repository) EndIfScript() string {
	return fmt.Sprintf("END IF;\n"+
		"END //\n"+
		"DELIMITER ;\n"+
		"CALL %s();\n"+
		"DROP PROCEDURE %s;", guardProcedure, guardProcedure)
}

// BeginTransactionScript returns the empty string: MySQL DDL commits
// implicitly, so scripts omit transaction brackets instead of emitting
// ones the server would cut short at the first DDL statement.
func (r *Repository) BeginTransactionScript() string {
	return ""
}

// CommitScript returns the empty string; see BeginTransactionScript.
func (r *Repository) CommitScript() string {
	return ""
}

// Creator ensures database existence using a connection without a
// default schema.
type Creator struct {
	// AdminDB is a connection with permission to create databases.
	AdminDB *sql.DB

	// Name is the target database name.
	Name string
}

// Exists reports whether the target database exists.
func (c Creator) Exists(ctx context.Context) (bool, error) {
	var count int
	err := c.AdminDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?`, c.Name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check database existence: %w", err)
	}
	return count > 0, nil
}

// Create creates the target database.
func (c Creator) Create(ctx context.Context) error {
	query := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4", c.Name)
	if _, err := c.AdminDB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	return nil
}
