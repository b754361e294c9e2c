// Package track implements the change-tracking runtime: per-instance
// entity entries, the state manager that owns them, snapshot-based
// change detection, and graph attachment.
package track

import (
	"fmt"

	"github.com/relforge/relforge"
	"github.com/relforge/relforge/model"
)

// validTransitions is the adjacency table of the entry state machine.
// A transition to the current state is always a permitted no-op.
var validTransitions = map[relforge.EntityState][]relforge.EntityState{
	relforge.StateDetached:  {relforge.StateAdded, relforge.StateUnchanged, relforge.StateDeleted},
	relforge.StateUnchanged: {relforge.StateModified, relforge.StateDeleted, relforge.StateDetached},
	relforge.StateAdded:     {relforge.StateUnchanged, relforge.StateDeleted, relforge.StateDetached},
	relforge.StateModified:  {relforge.StateUnchanged, relforge.StateDeleted, relforge.StateDetached},
	relforge.StateDeleted:   {relforge.StateDetached},
}

func transitionAllowed(from, to relforge.EntityState) bool {
	if from == to {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Entry is the tracking record for one entity instance. It holds the
// entity handle, the lazily captured original value vector, the
// per-property modified flags, and the state tag.
//
// Entries are created by the state manager; an entry whose state is
// StateDetached is not tracked.
type Entry struct {
	manager    *Manager
	entity     any
	entityType *model.EntityType
	state      relforge.EntityState

	// original holds snapshot values indexed by property ordinal.
	// nil until a snapshot is taken; an absent original defaults to the
	// current value.
	original []any

	// navOriginal holds snapshot navigation references indexed by
	// navigation position, for relationship change detection.
	navOriginal []any

	modified map[int]bool
}

func newEntry(m *Manager, entity any, et *model.EntityType) *Entry {
	return &Entry{
		manager:    m,
		entity:     entity,
		entityType: et,
		state:      relforge.StateDetached,
		modified:   make(map[int]bool),
	}
}

// Entity returns the tracked entity instance.
func (e *Entry) Entity() any { return e.entity }

// EntityType returns the metadata for the tracked instance.
func (e *Entry) EntityType() *model.EntityType { return e.entityType }

// State returns the entry's current tracking state.
func (e *Entry) State() relforge.EntityState { return e.state }

// SetState transitions the entry to a new state. Only adjacent
// transitions of the state machine are permitted; anything else fails
// with relforge.ErrInvalidTransition.
//
// Transitioning out of StateDetached registers the entry with its
// manager and fires the tracked notification; transitioning into
// StateDetached removes it and stops tracking.
func (e *Entry) SetState(state relforge.EntityState) error {
	if !transitionAllowed(e.state, state) {
		return fmt.Errorf("%w: %s -> %s", relforge.ErrInvalidTransition, e.state, state)
	}
	e.setStateUnchecked(state)
	return nil
}

// setStateUnchecked applies a transition the caller has already
// validated, handling manager registration and notifications.
func (e *Entry) setStateUnchecked(state relforge.EntityState) {
	old := e.state
	if old == state {
		return
	}

	wasTracked := old.IsTracked()
	e.state = state

	switch {
	case !wasTracked && state.IsTracked():
		e.manager.startTracking(e)
	case wasTracked && !state.IsTracked():
		e.manager.stateChanged(e, old)
		e.manager.stopTracking(e)
		e.modified = make(map[int]bool)
		e.original = nil
		e.navOriginal = nil
	default:
		e.manager.stateChanged(e, old)
	}

	if state == relforge.StateUnchanged {
		// Fresh baseline: nothing is modified relative to it.
		e.modified = make(map[int]bool)
	}
}

// CurrentValue returns the current value of the named property, read
// from the entity instance.
func (e *Entry) CurrentValue(property string) any {
	p := e.mustProperty(property)
	return p.Get(e.entity)
}

// SetCurrentValue writes a property value on the entity and marks the
// property modified when the entry is tracked and the value differs
// from the original.
func (e *Entry) SetCurrentValue(property string, value any) {
	p := e.mustProperty(property)
	p.Set(e.entity, value)
	if !e.state.IsTracked() || e.state == relforge.StateAdded || e.state == relforge.StateDeleted {
		return
	}
	if !p.Comparer().Equal(value, e.originalValue(p)) {
		e.markModified(p)
	}
}

// OriginalValue returns the snapshot value of the named property.
// Properties without a captured original report their current value.
func (e *Entry) OriginalValue(property string) any {
	return e.originalValue(e.mustProperty(property))
}

func (e *Entry) originalValue(p *model.Property) any {
	if e.original == nil || e.original[p.Index()] == nil {
		return p.Get(e.entity)
	}
	return e.original[p.Index()]
}

// SetOriginalValue overrides the snapshot value of the named property.
// The save pipeline uses this to seed optimistic-concurrency predicates.
func (e *Entry) SetOriginalValue(property string, value any) {
	p := e.mustProperty(property)
	e.ensureSnapshotStorage()
	e.original[p.Index()] = value
}

// IsModified reports whether the named property is flagged modified.
func (e *Entry) IsModified(property string) bool {
	return e.modified[e.mustProperty(property).Index()]
}

// SetModified flags or clears the modified state of the named property.
// Flagging a property on an unchanged entry transitions it to
// StateModified.
func (e *Entry) SetModified(property string, modified bool) {
	p := e.mustProperty(property)
	if modified {
		e.markModified(p)
		return
	}
	delete(e.modified, p.Index())
}

// ModifiedProperties returns the names of all flagged properties in
// property order.
func (e *Entry) ModifiedProperties() []string {
	var names []string
	for _, p := range e.entityType.Properties() {
		if e.modified[p.Index()] {
			names = append(names, p.Name())
		}
	}
	return names
}

func (e *Entry) markModified(p *model.Property) {
	e.modified[p.Index()] = true
	if e.state == relforge.StateUnchanged {
		e.setStateUnchecked(relforge.StateModified)
	}
}

func (e *Entry) mustProperty(name string) *model.Property {
	p := e.entityType.FindProperty(name)
	if p == nil {
		panic(fmt.Sprintf("track: entity type %s has no property %q", e.entityType.Name(), name))
	}
	return p
}

func (e *Entry) ensureSnapshotStorage() {
	if e.original == nil {
		e.original = make([]any, len(e.entityType.Properties()))
	}
}

// takeSnapshot captures original values and navigation references as
// the diff baseline. Skipped entirely when the model declares change
// detection unnecessary.
func (e *Entry) takeSnapshot() {
	if e.manager.config.Model.SkipDetectChanges() {
		return
	}
	e.ensureSnapshotStorage()
	for _, p := range e.entityType.Properties() {
		e.original[p.Index()] = p.Comparer().Snapshot(p.Get(e.entity))
	}
	e.snapshotNavigations()
}

// snapshotNavigations re-captures reference navigation values. The
// change detector calls this after evaluating relationship changes so
// the next detection pass diffs against the new baseline.
func (e *Entry) snapshotNavigations() {
	navs := e.entityType.Navigations()
	if len(navs) == 0 {
		return
	}
	if e.navOriginal == nil {
		e.navOriginal = make([]any, len(navs))
	}
	for i, n := range navs {
		if n.IsCollection() {
			continue
		}
		e.navOriginal[i] = n.Get(e.entity)
	}
}

// acceptChanges applies the post-save transition: Added and Modified
// become Unchanged with a fresh snapshot, Deleted becomes Detached.
// Unchanged entries are unaffected, making the operation idempotent.
func (e *Entry) acceptChanges() {
	switch e.state {
	case relforge.StateAdded, relforge.StateModified:
		e.setStateUnchecked(relforge.StateUnchanged)
		e.takeSnapshot()
	case relforge.StateDeleted:
		e.setStateUnchecked(relforge.StateDetached)
	}
}

// TypedEntry is a typed view over an Entry. It carries no state of its
// own; all tracking state lives on the one underlying entry.
type TypedEntry[T any] struct {
	*Entry
}

// As wraps an entry in a typed view.
func As[T any](e *Entry) TypedEntry[T] {
	return TypedEntry[T]{Entry: e}
}

// Entity returns the tracked instance with its static type.
func (e TypedEntry[T]) Entity() T {
	return e.Entry.entity.(T)
}
