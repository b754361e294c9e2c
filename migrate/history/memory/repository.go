// Package memory provides an in-memory history Repository for testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/relforge/relforge"
	"github.com/relforge/relforge/migrate/history"
)

// Repository is an in-memory implementation of history.Repository.
// It provides thread-safe access to ledger rows using a sync.Mutex and
// models the cross-process lock with a buffered channel.
type Repository struct {
	mu      sync.Mutex
	created bool
	rows    map[string]history.Row

	lock chan struct{}
}

// New creates a new in-memory history repository.
func New() *Repository {
	r := &Repository{
		rows: make(map[string]history.Row),
		lock: make(chan struct{}, 1),
	}
	r.lock <- struct{}{}
	return r
}

// Exists reports whether Create has been called.
func (r *Repository) Exists(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created, nil
}

// Create marks the history table as created.
func (r *Repository) Create(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = true
	return nil
}

// AcquireLock acquires the migration lock, waiting up to timeout.
func (r *Repository) AcquireLock(ctx context.Context, timeout time.Duration) (history.ReleaseFunc, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.lock:
	case <-timer.C:
		return nil, fmt.Errorf("%w: waited %s", relforge.ErrLockTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func(ctx context.Context) error {
		once.Do(func() { r.lock <- struct{}{} })
		return nil
	}
	return release, nil
}

// AppliedMigrations returns all ledger rows ordered by migration id.
func (r *Repository) AppliedMigrations(ctx context.Context) ([]history.Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]history.Row, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MigrationID < out[j].MigrationID })
	return out, nil
}

// InsertRow records a migration as applied.
func (r *Repository) InsertRow(ctx context.Context, row history.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[row.MigrationID]; exists {
		return fmt.Errorf("history row %q already exists", row.MigrationID)
	}
	r.rows[row.MigrationID] = row
	return nil
}

// DeleteRow removes a migration's ledger record.
func (r *Repository) DeleteRow(ctx context.Context, migrationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[migrationID]; !exists {
		return fmt.Errorf("history row %q not found", migrationID)
	}
	delete(r.rows, migrationID)
	return nil
}

// CreateIfNotExistsScript returns the table-creation fragment.
func (r *Repository) CreateIfNotExistsScript() string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (migration_id TEXT NOT NULL PRIMARY KEY, product_version TEXT NOT NULL);",
		history.DefaultTableName)
}

// InsertScript returns the row-insert fragment.
func (r *Repository) InsertScript(row history.Row) string {
	return fmt.Sprintf("INSERT INTO %s (migration_id, product_version) VALUES (%s, %s);",
		history.DefaultTableName,
		history.QuoteLiteral(row.MigrationID),
		history.QuoteLiteral(row.ProductVersion))
}

// DeleteScript returns the row-delete fragment.
func (r *Repository) DeleteScript(migrationID string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE migration_id = %s;",
		history.DefaultTableName, history.QuoteLiteral(migrationID))
}

// BeginIfNotExistsScript returns the idempotent apply guard opener.
func (r *Repository) BeginIfNotExistsScript(migrationID string) string {
	return fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM %s WHERE migration_id = %s) THEN",
		history.DefaultTableName, history.QuoteLiteral(migrationID))
}

// BeginIfExistsScript returns the idempotent revert guard opener.
func (r *Repository) BeginIfExistsScript(migrationID string) string {
	return fmt.Sprintf("IF EXISTS (SELECT 1 FROM %s WHERE migration_id = %s) THEN",
		history.DefaultTableName, history.QuoteLiteral(migrationID))
}

// EndIfScript returns the guard closer.
func (r *Repository) EndIfScript() string {
	return "END IF;"
}

// BeginTransactionScript returns the transaction opener.
func (r *Repository) BeginTransactionScript() string {
	return "BEGIN TRANSACTION;"
}

// CommitScript returns the transaction closer.
func (r *Repository) CommitScript() string {
	return "COMMIT;"
}
