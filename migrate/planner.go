package migrate

import (
	"fmt"

	"github.com/relforge/relforge"
)

// Plan is the ordered outcome of migration planning: the migrations to
// apply ascending, the migrations to revert descending, and the applied
// migration matching the target, when any. The actual target supplies
// the model state the last revert undoes *to*.
type Plan struct {
	ToApply  []Migration
	ToRevert []Migration

	// ActualTarget is the applied migration exactly matching the
	// requested target id, nil when the target is unapplied, empty, or
	// the initial database.
	ActualTarget *Migration
}

// Planner computes migration plans from the registry and the ledger.
type Planner struct {
	registry *Registry
}

// NewPlanner creates a planner over the given registry.
func NewPlanner(registry *Registry) (*Planner, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	return &Planner{registry: registry}, nil
}

// PopulateMigrations computes the plan moving the database from the
// applied set to the target:
//
//   - empty target: apply every unapplied migration, revert nothing
//   - InitialDatabase: apply nothing, revert every applied migration
//   - otherwise: apply unapplied migrations with id <= target, revert
//     applied migrations with id > target
//
// The applied ids must form a contiguous prefix of the registry under
// its collation; a gap fails with relforge.ErrLedgerGap. An unknown
// target fails with relforge.ErrMigrationNotFound before any SQL is
// generated.
func (p *Planner) PopulateMigrations(appliedIDs []string, target string) (Plan, error) {
	applied, err := p.appliedPrefix(appliedIDs)
	if err != nil {
		return Plan{}, err
	}
	all := p.registry.migrations
	unapplied := all[len(applied):]

	switch {
	case target == "":
		return Plan{ToApply: append([]Migration(nil), unapplied...)}, nil

	case p.registry.compare(target, InitialDatabase) == 0:
		return Plan{ToRevert: reversed(applied)}, nil

	default:
		if _, err := p.registry.Find(target); err != nil {
			return Plan{}, err
		}

		plan := Plan{}
		for _, m := range unapplied {
			if p.registry.compare(m.ID, target) <= 0 {
				plan.ToApply = append(plan.ToApply, m)
			}
		}
		var toRevert []Migration
		for _, m := range applied {
			if p.registry.compare(m.ID, target) > 0 {
				toRevert = append(toRevert, m)
			} else if p.registry.compare(m.ID, target) == 0 {
				actual := m
				plan.ActualTarget = &actual
			}
		}
		plan.ToRevert = reversed(toRevert)
		return plan, nil
	}
}

// appliedPrefix validates the ledger invariant: the applied ids,
// ordered by the registry collation, are a contiguous prefix of the
// registry. Returns the corresponding registry migrations.
func (p *Planner) appliedPrefix(appliedIDs []string) ([]Migration, error) {
	ids := make([]string, len(appliedIDs))
	copy(ids, appliedIDs)
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && p.registry.compare(ids[j], ids[j-1]) < 0; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}

	all := p.registry.migrations
	if len(ids) > len(all) {
		return nil, fmt.Errorf("%w: ledger has %d rows but registry has %d migrations",
			relforge.ErrLedgerGap, len(ids), len(all))
	}
	for i, id := range ids {
		if p.registry.compare(id, all[i].ID) != 0 {
			return nil, fmt.Errorf("%w: ledger row %q does not match registry migration %q",
				relforge.ErrLedgerGap, id, all[i].ID)
		}
	}
	return all[:len(ids)], nil
}

func reversed(migrations []Migration) []Migration {
	if len(migrations) == 0 {
		return nil
	}
	out := make([]Migration, len(migrations))
	for i, m := range migrations {
		out[len(migrations)-1-i] = m
	}
	return out
}
