package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/relforge/relforge"
	"github.com/relforge/relforge/metrics"
	"github.com/relforge/relforge/migrate/history"
	"github.com/relforge/relforge/model"
)

// DefaultLockTimeout bounds migration lock acquisition when the config
// does not override it.
const DefaultLockTimeout = 30 * time.Minute

// SQLGenerator turns abstract migration operations and a target model
// into executable commands. Provider-specific; treated as a pure
// function by the executor.
type SQLGenerator interface {
	Generate(operations []Operation, target *model.Model) ([]Command, error)
}

// DefaultSQLGenerator renders SQLOperations verbatim. It fails on any
// other operation kind; richer operations need a provider generator.
type DefaultSQLGenerator struct{}

// Generate implements SQLGenerator.
func (DefaultSQLGenerator) Generate(operations []Operation, target *model.Model) ([]Command, error) {
	commands := make([]Command, 0, len(operations))
	for _, op := range operations {
		sqlOp, ok := op.(SQLOperation)
		if !ok {
			return nil, fmt.Errorf("unsupported operation type %T", op)
		}
		commands = append(commands, Command{
			Text:                sqlOp.SQL,
			SuppressTransaction: sqlOp.SuppressTransaction,
		})
	}
	return commands, nil
}

// DatabaseCreator confirms and establishes database existence before a
// migration run. Providers whose databases always exist (e.g. sqlite
// files created on open) can omit it.
type DatabaseCreator interface {
	// Exists reports whether the target database exists.
	Exists(ctx context.Context) (bool, error)

	// Create creates the target database.
	Create(ctx context.Context) error
}

// Config holds configuration for a Migrator.
type Config struct {
	// DB is the open connection to the target database (required for
	// Migrate; GenerateScript never touches it).
	DB *sql.DB

	// Registry is the ordered set of discoverable migrations (required).
	Registry *Registry

	// History is the ledger repository (required).
	History history.Repository

	// Generator renders operations into commands
	// (default: DefaultSQLGenerator).
	Generator SQLGenerator

	// Creator ensures database existence before migrating (optional).
	Creator DatabaseCreator

	// LockTimeout bounds migration lock acquisition
	// (default: DefaultLockTimeout).
	LockTimeout time.Duration

	// ProductVersion is recorded in history rows
	// (default: relforge.Version).
	ProductVersion string

	// Logger is for observability (optional).
	Logger *slog.Logger

	// Collector records migration metrics (optional).
	Collector *metrics.Collector
}

// Migrator executes migration plans against a database and renders
// migration scripts.
type Migrator struct {
	config  Config
	planner *Planner
}

// New creates a Migrator with the given configuration.
// Applies defaults for Generator, LockTimeout, and ProductVersion.
func New(cfg Config) (*Migrator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("history repository is required")
	}
	if cfg.Generator == nil {
		cfg.Generator = DefaultSQLGenerator{}
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.ProductVersion == "" {
		cfg.ProductVersion = relforge.Version
	}

	planner, err := NewPlanner(cfg.Registry)
	if err != nil {
		return nil, err
	}
	return &Migrator{config: cfg, planner: planner}, nil
}

// Planner returns the migrator's planner.
func (m *Migrator) Planner() *Planner { return m.planner }

// Migrate moves the database to the target migration: the latest for an
// empty target, or the empty database for InitialDatabase.
//
// The run ensures the database exists, acquires the cross-process
// migration lock for the whole apply sequence, ensures the history
// table, then executes the planned command lists strictly sequentially
// with history bookkeeping after each migration. The lock is released
// on every exit path. Each migration's command list is the unit of
// atomicity: cancellation between migrations leaves a consistent,
// resumable database.
func (m *Migrator) Migrate(ctx context.Context, target string) (err error) {
	if m.config.DB == nil {
		return fmt.Errorf("database connection is required")
	}
	start := time.Now()

	if m.config.Creator != nil {
		exists, cerr := m.config.Creator.Exists(ctx)
		if cerr != nil {
			return fmt.Errorf("failed to check database existence: %w", cerr)
		}
		if !exists {
			if cerr := m.config.Creator.Create(ctx); cerr != nil {
				return fmt.Errorf("failed to create database: %w", cerr)
			}
		}
	}

	lockStart := time.Now()
	release, err := m.config.History.AcquireLock(ctx, m.config.LockTimeout)
	if err != nil {
		return err
	}
	if m.config.Collector != nil {
		m.config.Collector.ObserveLockWait(time.Since(lockStart).Seconds())
	}
	defer func() {
		// The lock must come off on every exit path, including
		// cancellation, so release under a detached context.
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil && err == nil {
			err = fmt.Errorf("failed to release migration lock: %w", rerr)
		}
	}()

	if err := m.ensureHistory(ctx); err != nil {
		return err
	}

	rows, err := m.config.History.AppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	appliedIDs := make([]string, len(rows))
	for i, row := range rows {
		appliedIDs[i] = row.MigrationID
	}

	plan, err := m.planner.PopulateMigrations(appliedIDs, target)
	if err != nil {
		return err
	}

	if m.config.Logger != nil {
		m.config.Logger.Info("migration plan computed",
			"applied", len(appliedIDs), "toApply", len(plan.ToApply), "toRevert", len(plan.ToRevert))
	}

	for i, mig := range plan.ToRevert {
		commands, gerr := m.config.Generator.Generate(mig.Down, revertTargetModel(plan, i))
		if gerr != nil {
			return gerr
		}
		if err := m.executeCommands(ctx, commands); err != nil {
			return fmt.Errorf("reverting %s: %w", mig.ID, err)
		}
		if err := m.config.History.DeleteRow(ctx, mig.ID); err != nil {
			return fmt.Errorf("reverting %s: %w", mig.ID, err)
		}
		if m.config.Collector != nil {
			m.config.Collector.IncMigrationsReverted()
		}
		if m.config.Logger != nil {
			m.config.Logger.Info("migration reverted", "id", mig.ID)
		}
	}

	for _, mig := range plan.ToApply {
		commands, gerr := m.config.Generator.Generate(mig.Up, mig.TargetModel)
		if gerr != nil {
			return gerr
		}
		if err := m.executeCommands(ctx, commands); err != nil {
			return fmt.Errorf("applying %s: %w", mig.ID, err)
		}
		row := history.Row{MigrationID: mig.ID, ProductVersion: m.config.ProductVersion}
		if err := m.config.History.InsertRow(ctx, row); err != nil {
			return fmt.Errorf("applying %s: %w", mig.ID, err)
		}
		if m.config.Collector != nil {
			m.config.Collector.IncMigrationsApplied()
		}
		if m.config.Logger != nil {
			m.config.Logger.Info("migration applied", "id", mig.ID)
		}
	}

	if m.config.Collector != nil {
		m.config.Collector.ObserveMigrationDuration(time.Since(start).Seconds())
	}
	return nil
}

func (m *Migrator) ensureHistory(ctx context.Context) error {
	exists, err := m.config.History.Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check history table: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.config.History.Create(ctx); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}
	return nil
}

// executeCommands runs one migration's command list with transactional
// batching: a transaction opens before the first non-suppressed command
// and commits before any suppressed command and at the end of the list.
// Commands run strictly sequentially.
func (m *Migrator) executeCommands(ctx context.Context, commands []Command) error {
	var tx *sql.Tx
	commit := func() error {
		if tx == nil {
			return nil
		}
		err := tx.Commit()
		tx = nil
		return err
	}

	for _, cmd := range commands {
		if cmd.SuppressTransaction {
			if err := commit(); err != nil {
				return err
			}
			if _, err := m.config.DB.ExecContext(ctx, cmd.Text); err != nil {
				return err
			}
			continue
		}

		if tx == nil {
			var err error
			tx, err = m.config.DB.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, cmd.Text); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return commit()
}

// revertTargetModel resolves the model state the i-th revert undoes
// *to*: the next migration in the revert list, or the actual target
// migration for the last revert, or nil for the initial database.
func revertTargetModel(plan Plan, i int) *model.Model {
	if i+1 < len(plan.ToRevert) {
		return plan.ToRevert[i+1].TargetModel
	}
	if plan.ActualTarget != nil {
		return plan.ActualTarget.TargetModel
	}
	return nil
}
