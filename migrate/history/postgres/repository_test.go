package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relforge/relforge/migrate/history"
)

func TestNewWithConfig_DefaultsTableName(t *testing.T) {
	r := NewWithConfig(nil, TableConfig{})
	assert.Equal(t, history.DefaultTableName, r.table)

	r = NewWithConfig(nil, TableConfig{Table: "my_history"})
	assert.Equal(t, "my_history", r.table)
}

func TestLockKey_DistinctPerTable(t *testing.T) {
	a := NewWithConfig(nil, TableConfig{Table: "a"})
	b := NewWithConfig(nil, TableConfig{Table: "b"})

	assert.NotEqual(t, a.lockKey(), b.lockKey())
	assert.Equal(t, a.lockKey(), a.lockKey())
}

func TestScriptFragments(t *testing.T) {
	r := New(nil)

	create := r.CreateIfNotExistsScript()
	assert.Contains(t, create, "CREATE TABLE IF NOT EXISTS __migration_history")
	assert.Contains(t, create, "migration_id text NOT NULL PRIMARY KEY")

	assert.Equal(t,
		"INSERT INTO __migration_history (migration_id, product_version) VALUES ('001_a', '1.0');",
		r.InsertScript(history.Row{MigrationID: "001_a", ProductVersion: "1.0"}))
	assert.Equal(t,
		"DELETE FROM __migration_history WHERE migration_id = '001_a';",
		r.DeleteScript("001_a"))
}

func TestGuardFragments_UseDoBlocks(t *testing.T) {
	r := New(nil)

	begin := r.BeginIfNotExistsScript("001_a")
	assert.Contains(t, begin, "DO $MIG$")
	assert.Contains(t, begin, "IF NOT EXISTS (SELECT 1 FROM __migration_history WHERE migration_id = '001_a') THEN")

	require.Contains(t, r.BeginIfExistsScript("001_a"), "IF EXISTS")
	assert.Equal(t, "END IF;\nEND $MIG$;", r.EndIfScript())

	// Transaction control cannot live inside the DO body, so the
	// fragments keep it as separate top-level statements.
	assert.NotContains(t, r.BeginIfNotExistsScript("001_a"), "BEGIN TRANSACTION")
	assert.Equal(t, "BEGIN TRANSACTION;", r.BeginTransactionScript())
	assert.Equal(t, "COMMIT;", r.CommitScript())
}

func TestScriptFragments_QuoteEmbeddedQuotes(t *testing.T) {
	r := New(nil)
	assert.Contains(t, r.DeleteScript("it's"), "'it''s'")
}
