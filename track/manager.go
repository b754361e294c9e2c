package track

import (
	"fmt"
	"log/slog"

	"github.com/relforge/relforge"
	"github.com/relforge/relforge/metrics"
	"github.com/relforge/relforge/model"
)

// Config holds configuration for a state Manager.
type Config struct {
	// Model is the finalized metadata the manager tracks against (required).
	Model *model.Model

	// Cascade holds the default cascade timings. Unset timings default
	// to CascadeImmediate. Per-call overrides are available on the
	// Remove and DetectChanges variants that accept a timing.
	Cascade relforge.CascadeConfig

	// Logger is for observability (optional).
	Logger *slog.Logger

	// Collector records tracking metrics (optional).
	Collector *metrics.Collector
}

// Manager owns the complete set of tracked entries for one logical
// session or unit of work. Entries are keyed by instance identity;
// enumeration follows insertion order.
//
// A Manager is single-writer by design: it is exclusively owned by one
// session and performs no internal locking. Concurrent mutation from
// multiple goroutines is undefined behavior.
type Manager struct {
	config   Config
	detector *ChangeDetector

	entries map[any]*Entry
	order   []*Entry

	// Deferred cascade work for the CascadeOnSaveChanges timing.
	pendingDeletes []*Entry
	pendingOrphans []*Entry

	trackedObservers []func(*Entry)
	stateObservers   []func(*Entry, relforge.EntityState)

	txn *attachTxn
}

// New creates a state Manager for the given model.
func New(cfg Config) (*Manager, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	cfg.Cascade = cfg.Cascade.ApplyDefaults()

	m := &Manager{
		config:  cfg,
		entries: make(map[any]*Entry),
	}
	m.detector = &ChangeDetector{manager: m}
	return m, nil
}

// Model returns the model the manager tracks against.
func (m *Manager) Model() *model.Model { return m.config.Model }

// ChangeDetector returns the manager's change detector.
func (m *Manager) ChangeDetector() *ChangeDetector { return m.detector }

// OnTracked registers an observer fired once per newly tracked entity,
// synchronously and in registration order.
func (m *Manager) OnTracked(fn func(*Entry)) {
	m.trackedObservers = append(m.trackedObservers, fn)
}

// OnStateChanged registers an observer fired on every state transition
// after initial tracking, with the entry and its previous state.
func (m *Manager) OnStateChanged(fn func(*Entry, relforge.EntityState)) {
	m.stateObservers = append(m.stateObservers, fn)
}

// Entry returns the tracking entry for an entity instance.
// Fails with relforge.ErrEntityTypeNotFound for unmapped types,
// relforge.ErrKeylessEntityType for types without a key, and
// relforge.ErrNotTracked when the instance has no entry.
func (m *Manager) Entry(entity any) (*Entry, error) {
	if _, err := m.resolveType(entity); err != nil {
		return nil, err
	}
	e, ok := m.entries[entity]
	if !ok {
		return nil, relforge.ErrNotTracked
	}
	return e, nil
}

// Entries returns all tracked entries in insertion order.
func (m *Manager) Entries() []*Entry {
	out := make([]*Entry, len(m.order))
	copy(out, m.order)
	return out
}

// Add begins tracking an entity as StateAdded.
func (m *Manager) Add(entity any) (*Entry, error) {
	return m.trackAs(entity, relforge.StateAdded)
}

// Attach begins tracking an entity as StateUnchanged, as if it had been
// returned from a tracking query.
func (m *Manager) Attach(entity any) (*Entry, error) {
	return m.trackAs(entity, relforge.StateUnchanged)
}

func (m *Manager) trackAs(entity any, state relforge.EntityState) (*Entry, error) {
	e, err := m.ensureEntry(entity)
	if err != nil {
		return nil, err
	}
	if err := e.SetState(state); err != nil {
		return nil, err
	}
	return e, nil
}

// Remove marks an entity as StateDeleted and cascades to its tracked
// dependents per the configured cascade-delete timing. Untracked
// entities are attached and deleted in one step.
func (m *Manager) Remove(entity any) (*Entry, error) {
	return m.RemoveWithTiming(entity, m.config.Cascade.CascadeDeleteTiming)
}

// RemoveWithTiming is Remove with an explicit cascade-delete timing
// overriding the manager default.
func (m *Manager) RemoveWithTiming(entity any, timing relforge.CascadeTiming) (*Entry, error) {
	e, err := m.ensureEntry(entity)
	if err != nil {
		return nil, err
	}
	if err := e.SetState(relforge.StateDeleted); err != nil {
		return nil, err
	}
	m.cascadeDelete(e, timing)
	return e, nil
}

// Detach stops tracking an entity. The entry reverts to StateDetached.
func (m *Manager) Detach(entity any) error {
	e, err := m.Entry(entity)
	if err != nil {
		return err
	}
	return e.SetState(relforge.StateDetached)
}

// Clear detaches every tracked entry in bulk. Unlike Detach, no
// state-changed notifications are fired.
func (m *Manager) Clear() {
	for _, e := range m.order {
		e.state = relforge.StateDetached
		e.modified = make(map[int]bool)
		e.original = nil
		e.navOriginal = nil
	}
	m.entries = make(map[any]*Entry)
	m.order = nil
	m.pendingDeletes = nil
	m.pendingOrphans = nil
	if m.config.Collector != nil {
		m.config.Collector.SetTrackedEntities(0)
	}
}

// HasChanges reports whether any tracked entry is added, modified, or
// deleted. It does not run change detection first.
func (m *Manager) HasChanges() bool {
	for _, e := range m.order {
		switch e.state {
		case relforge.StateAdded, relforge.StateModified, relforge.StateDeleted:
			return true
		}
	}
	return false
}

// DetectChanges diffs every tracked entry against its snapshot.
// See ChangeDetector.DetectAll.
func (m *Manager) DetectChanges() {
	m.detector.DetectAll()
}

// AcceptAllChanges applies the post-save transitions to every entry:
// added and modified entries become unchanged with fresh snapshots,
// deleted entries detach. Idempotent.
func (m *Manager) AcceptAllChanges() {
	for _, e := range m.Entries() {
		e.acceptChanges()
	}
	m.pendingDeletes = nil
	m.pendingOrphans = nil
}

// CascadeChanges flushes cascade work deferred by the
// CascadeOnSaveChanges timing: dependents of deleted principals are
// deleted, and severed orphans are deleted. The save pipeline invokes
// this before building persistence commands.
func (m *Manager) CascadeChanges() {
	deletes := m.pendingDeletes
	orphans := m.pendingOrphans
	m.pendingDeletes = nil
	m.pendingOrphans = nil

	for _, principal := range deletes {
		if principal.state == relforge.StateDeleted {
			m.deleteDependents(principal)
		}
	}
	for _, orphan := range orphans {
		if orphan.state.IsTracked() && orphan.state != relforge.StateDeleted {
			orphan.setStateUnchecked(relforge.StateDeleted)
			m.deleteDependents(orphan)
		}
	}
}

// cascadeDelete propagates a principal's deletion per the given timing.
func (m *Manager) cascadeDelete(principal *Entry, timing relforge.CascadeTiming) {
	switch timing {
	case relforge.CascadeImmediate:
		m.deleteDependents(principal)
	case relforge.CascadeOnSaveChanges:
		m.pendingDeletes = append(m.pendingDeletes, principal)
	case relforge.CascadeNever:
	}
}

// deleteDependents deletes every tracked dependent holding a required
// reference to the principal, recursively.
func (m *Manager) deleteDependents(principal *Entry) {
	for _, dependent := range m.Entries() {
		if dependent == principal || !dependent.state.IsTracked() || dependent.state == relforge.StateDeleted {
			continue
		}
		for _, nav := range dependent.entityType.Navigations() {
			if nav.IsCollection() || nav.TargetType() != principal.entityType || !nav.Required() {
				continue
			}
			if nav.Get(dependent.entity) == principal.entity {
				dependent.setStateUnchecked(relforge.StateDeleted)
				if m.config.Logger != nil {
					m.config.Logger.Debug("cascade delete",
						"entityType", dependent.entityType.Name(),
						"principal", principal.entityType.Name())
				}
				m.deleteDependents(dependent)
			}
		}
	}
}

// deleteOrphan handles a dependent whose required reference was severed,
// per the given timing.
func (m *Manager) deleteOrphan(dependent *Entry, timing relforge.CascadeTiming) {
	switch timing {
	case relforge.CascadeImmediate:
		if dependent.state != relforge.StateDeleted {
			dependent.setStateUnchecked(relforge.StateDeleted)
			m.deleteDependents(dependent)
		}
	case relforge.CascadeOnSaveChanges:
		m.pendingOrphans = append(m.pendingOrphans, dependent)
	case relforge.CascadeNever:
	}
}

// ensureEntry returns the existing entry for the instance or creates a
// detached one ready to be transitioned.
func (m *Manager) ensureEntry(entity any) (*Entry, error) {
	et, err := m.resolveType(entity)
	if err != nil {
		return nil, err
	}
	if e, ok := m.entries[entity]; ok {
		return e, nil
	}
	return newEntry(m, entity, et), nil
}

func (m *Manager) resolveType(entity any) (*model.EntityType, error) {
	et, err := m.config.Model.EntityTypeOf(entity)
	if err != nil {
		return nil, fmt.Errorf("%w: %T", err, entity)
	}
	if !et.HasKey() {
		return nil, fmt.Errorf("%w: %s", relforge.ErrKeylessEntityType, et.Name())
	}
	return et, nil
}

// startTracking registers a newly tracked entry, snapshots it, and
// fires the tracked notification.
func (m *Manager) startTracking(e *Entry) {
	if m.txn != nil {
		m.txn.created = append(m.txn.created, e)
	}
	m.entries[e.entity] = e
	m.order = append(m.order, e)
	e.takeSnapshot()

	for _, fn := range m.trackedObservers {
		fn(e)
	}
	if m.config.Collector != nil {
		m.config.Collector.SetTrackedEntities(len(m.order))
		m.config.Collector.IncStateTransition(string(e.state))
	}
	if m.config.Logger != nil {
		m.config.Logger.Debug("entity tracked",
			"entityType", e.entityType.Name(), "state", string(e.state))
	}
}

// stopTracking removes a detached entry from the manager.
func (m *Manager) stopTracking(e *Entry) {
	delete(m.entries, e.entity)
	for i, other := range m.order {
		if other == e {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.config.Collector != nil {
		m.config.Collector.SetTrackedEntities(len(m.order))
	}
}

// stateChanged fires the state-changed notification for a transition of
// an already-tracked entry.
func (m *Manager) stateChanged(e *Entry, old relforge.EntityState) {
	if m.txn != nil {
		m.txn.changed = append(m.txn.changed, stateChange{entry: e, old: old})
	}
	for _, fn := range m.stateObservers {
		fn(e, old)
	}
	if m.config.Collector != nil {
		m.config.Collector.IncStateTransition(string(e.state))
	}
	if m.config.Logger != nil {
		m.config.Logger.Debug("entity state changed",
			"entityType", e.entityType.Name(), "from", string(old), "to", string(e.state))
	}
}
