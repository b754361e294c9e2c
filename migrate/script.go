package migrate

import (
	"strings"

	"github.com/relforge/relforge/migrate/history"
)

// ScriptOptions controls migration script rendering.
type ScriptOptions struct {
	// Idempotent wraps each migration's SQL in an existence guard
	// against the history table, so re-running the script on an
	// already-migrated database is a no-op.
	Idempotent bool

	// NoTransactions omits transaction statements entirely.
	NoTransactions bool
}

// GenerateScript renders the plan moving the database from migration
// `from` to migration `to` as a SQL script, without touching any
// connection. Empty `from` means the empty database; empty `to` means
// the latest migration; InitialDatabase reverts everything.
//
// Within each migration's command list a transaction opens before the
// first non-suppressed command, commits before any transaction-
// suppressed command, and commits at the end of the list, unless
// NoTransactions is set.
func (m *Migrator) GenerateScript(from, to string, opts ScriptOptions) (string, error) {
	appliedIDs, err := m.appliedThrough(from)
	if err != nil {
		return "", err
	}
	plan, err := m.planner.PopulateMigrations(appliedIDs, to)
	if err != nil {
		return "", err
	}

	w := &scriptWriter{
		noTransactions: opts.NoTransactions,
		beginTxn:       m.config.History.BeginTransactionScript(),
		commitTxn:      m.config.History.CommitScript(),
	}
	w.writeStatement(m.config.History.CreateIfNotExistsScript())
	w.endBlock()

	for i, mig := range plan.ToRevert {
		commands, gerr := m.config.Generator.Generate(mig.Down, revertTargetModel(plan, i))
		if gerr != nil {
			return "", gerr
		}
		if opts.Idempotent {
			w.beginMigration(m.config.History.BeginIfExistsScript(mig.ID), m.config.History.EndIfScript())
		}
		for _, cmd := range commands {
			w.writeCommand(cmd)
		}
		w.writeCommand(Command{Text: m.config.History.DeleteScript(mig.ID)})
		w.endMigration()
	}

	for _, mig := range plan.ToApply {
		commands, gerr := m.config.Generator.Generate(mig.Up, mig.TargetModel)
		if gerr != nil {
			return "", gerr
		}
		if opts.Idempotent {
			w.beginMigration(m.config.History.BeginIfNotExistsScript(mig.ID), m.config.History.EndIfScript())
		}
		for _, cmd := range commands {
			w.writeCommand(cmd)
		}
		row := history.Row{MigrationID: mig.ID, ProductVersion: m.config.ProductVersion}
		w.writeCommand(Command{Text: m.config.History.InsertScript(row)})
		w.endMigration()
	}

	return w.String(), nil
}

// appliedThrough resolves the assumed applied set for script
// generation: every registry migration up to and including `from`.
func (m *Migrator) appliedThrough(from string) ([]string, error) {
	if from == "" || m.config.Registry.compare(from, InitialDatabase) == 0 {
		return nil, nil
	}
	if _, err := m.config.Registry.Find(from); err != nil {
		return nil, err
	}
	var ids []string
	for _, mig := range m.config.Registry.migrations {
		ids = append(ids, mig.ID)
		if m.config.Registry.compare(mig.ID, from) == 0 {
			break
		}
	}
	return ids, nil
}

// scriptWriter accumulates script text and implements the transaction
// and guard bracketing rules for one command list at a time. The
// transaction bracket wraps the guard block, never the other way
// around: procedural dialects reject transaction control inside their
// conditional constructs.
type scriptWriter struct {
	sb             strings.Builder
	noTransactions bool
	beginTxn       string
	commitTxn      string
	guardOpen      string
	guardClose     string
	inTransaction  bool
	inGuard        bool
}

// beginMigration arms the guard fragments for the next command list.
// Dialects without procedural guards supply empty fragments, which are
// skipped.
func (w *scriptWriter) beginMigration(guardOpen, guardClose string) {
	w.guardOpen = guardOpen
	w.guardClose = guardClose
}

// writeCommand emits a command, opening or closing the ambient
// transaction and guard as its suppression flag requires. Suppressed
// commands close both brackets and run bare.
func (w *scriptWriter) writeCommand(cmd Command) {
	if cmd.SuppressTransaction {
		w.closeSegment()
		w.writeStatement(cmd.Text)
		return
	}
	if !w.noTransactions && w.beginTxn != "" && !w.inTransaction {
		w.writeStatement(w.beginTxn)
		w.inTransaction = true
	}
	if w.guardOpen != "" && !w.inGuard {
		w.writeFragment(w.guardOpen)
		w.inGuard = true
	}
	w.writeStatement(cmd.Text)
}

// endMigration closes any open brackets, disarms the guard, and
// separates the migration from the next with a blank line.
func (w *scriptWriter) endMigration() {
	w.closeSegment()
	w.guardOpen, w.guardClose = "", ""
	w.endBlock()
}

// closeSegment closes the guard before committing, mirroring the open
// order in writeCommand.
func (w *scriptWriter) closeSegment() {
	if w.inGuard {
		w.writeFragment(w.guardClose)
		w.inGuard = false
	}
	if w.inTransaction {
		w.writeStatement(w.commitTxn)
		w.inTransaction = false
	}
}

// writeFragment emits a guard fragment verbatim.
func (w *scriptWriter) writeFragment(text string) {
	w.sb.WriteString(text)
	w.sb.WriteString("\n")
}

func (w *scriptWriter) writeStatement(text string) {
	w.sb.WriteString(text)
	if !strings.HasSuffix(text, ";") {
		w.sb.WriteString(";")
	}
	w.sb.WriteString("\n")
}

// endBlock separates migrations with a blank line.
func (w *scriptWriter) endBlock() {
	w.sb.WriteString("\n")
}

func (w *scriptWriter) String() string {
	return w.sb.String()
}
