// Package gen writes migration-history bootstrap files: the SQL that
// establishes the history ledger table (and, for SQLite, the lock
// table) ahead of the first migration run, for teams that provision
// schemas through external migration tooling.
package gen

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/relforge/relforge/migrate/history"
	"github.com/relforge/relforge/migrate/history/mysql"
	"github.com/relforge/relforge/migrate/history/postgres"
	"github.com/relforge/relforge/migrate/history/sqlite"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters
// for interpolation into DDL.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter or underscore and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// Config configures history bootstrap file generation.
type Config struct {
	// OutputFolder is the directory where the file will be written
	OutputFolder string

	// OutputFilename is the name of the generated file
	OutputFilename string

	// Table is the history table name
	Table string
}

// DefaultConfig returns the default generation configuration.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_migration_history.sql", timestamp),
		Table:          history.DefaultTableName,
	}
}

func write(config *Config, sql string) error {
	if err := validateIdentifier(config.Table, "Table"); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write bootstrap file: %w", err)
	}
	return nil
}

func header(dialect string) string {
	return fmt.Sprintf("-- Migration History Bootstrap\n-- Generated: %s\n-- Database: %s\n\n",
		time.Now().Format(time.RFC3339), dialect)
}

// GeneratePostgres writes a PostgreSQL history bootstrap file.
func GeneratePostgres(config *Config) error {
	repo := postgres.NewWithConfig(nil, postgres.TableConfig{Table: config.Table})
	sql := header("PostgreSQL") + repo.CreateIfNotExistsScript() + "\n"
	return write(config, sql)
}

// GenerateMySQL writes a MySQL/MariaDB history bootstrap file.
func GenerateMySQL(config *Config) error {
	repo := mysql.NewWithConfig(nil, mysql.TableConfig{Table: config.Table})
	sql := header("MySQL/MariaDB") + repo.CreateIfNotExistsScript() + "\n"
	return write(config, sql)
}

// GenerateSQLite writes a SQLite history bootstrap file. The lock table
// is included because SQLite's migration lock is table-based.
func GenerateSQLite(config *Config) error {
	repo := sqlite.NewWithConfig(nil, sqlite.TableConfig{Table: config.Table})
	sql := header("SQLite") +
		repo.CreateIfNotExistsScript() + "\n" +
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s_lock (id INTEGER NOT NULL PRIMARY KEY, owner TEXT NOT NULL, acquired_at TEXT NOT NULL);\n", config.Table)
	return write(config, sql)
}
