// Package migrate implements the migration planner and executor: it
// computes the ordered set of schema operations needed to move a
// database between two declared model states, executes them under a
// cross-process lock, and renders equivalent SQL scripts.
package migrate

import (
	"fmt"
	"strings"

	"github.com/relforge/relforge"
	"github.com/relforge/relforge/model"
)

// InitialDatabase is the sentinel migration target meaning "the empty
// database, before any migration": migrating to it reverts everything.
const InitialDatabase = "0"

// Operation is one abstract schema operation carried by a migration.
// The SQL generator turns operations into executable commands.
type Operation interface {
	isOperation()
}

// SQLOperation is a raw-SQL operation, the built-in operation kind.
// Provider packages may define richer operation types alongside their
// own SQL generators.
type SQLOperation struct {
	// SQL is the statement text to execute.
	SQL string

	// SuppressTransaction indicates the statement must not run inside
	// an ambient transaction, as some engines require for DDL.
	SuppressTransaction bool
}

func (SQLOperation) isOperation() {}

// Command is one executable SQL-bearing command produced by a SQL
// generator.
type Command struct {
	// Text is the statement text.
	Text string

	// SuppressTransaction indicates the command must not run inside an
	// ambient transaction.
	SuppressTransaction bool
}

// Migration is a named, ordered unit of schema change. The ID must be
// sortable, conventionally a zero-padded timestamp prefix followed by a
// name, e.g. "20240101120000_init".
type Migration struct {
	// ID is the migration's unique sortable identifier.
	ID string

	// Up holds the operations applying the migration.
	Up []Operation

	// Down holds the operations reverting the migration.
	Down []Operation

	// TargetModel is the full model state after this migration is
	// applied. The SQL generator needs it to emit correct statements.
	TargetModel *model.Model
}

// IDCompare orders two migration ids. Implementations must induce a
// strict total order over the registry's ids.
type IDCompare func(a, b string) int

// DefaultIDCompare is case-insensitive lexicographic comparison, the
// conventional collation for timestamp-prefixed ids.
func DefaultIDCompare(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// Registry is the ordered set of discoverable migrations.
type Registry struct {
	compare    IDCompare
	migrations []Migration
}

// NewRegistry creates a registry using the default id collation.
// Migrations may be given in any order; the registry sorts them.
func NewRegistry(migrations ...Migration) (*Registry, error) {
	return NewRegistryWithCompare(DefaultIDCompare, migrations...)
}

// NewRegistryWithCompare creates a registry with an explicit id
// collation.
func NewRegistryWithCompare(compare IDCompare, migrations ...Migration) (*Registry, error) {
	if compare == nil {
		compare = DefaultIDCompare
	}
	r := &Registry{compare: compare}
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && compare(sorted[j].ID, sorted[j-1].ID) < 0; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	for i := 1; i < len(sorted); i++ {
		if compare(sorted[i].ID, sorted[i-1].ID) == 0 {
			return nil, fmt.Errorf("duplicate migration id %q", sorted[i].ID)
		}
	}
	r.migrations = sorted
	return r, nil
}

// Migrations returns the migrations in ascending id order.
func (r *Registry) Migrations() []Migration {
	out := make([]Migration, len(r.migrations))
	copy(out, r.migrations)
	return out
}

// Find returns the migration with the given id under the registry's
// collation. Fails with relforge.ErrMigrationNotFound.
func (r *Registry) Find(id string) (Migration, error) {
	for _, m := range r.migrations {
		if r.compare(m.ID, id) == 0 {
			return m, nil
		}
	}
	return Migration{}, fmt.Errorf("%w: %q", relforge.ErrMigrationNotFound, id)
}
