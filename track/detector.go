package track

import (
	"time"

	"github.com/relforge/relforge"
)

// ChangeDetector diffs tracked entries against their snapshots, flags
// modified properties, and evaluates relationship changes. It is owned
// by a Manager and shares its single-writer contract.
type ChangeDetector struct {
	manager *Manager
}

// DetectAll scans every tracked entry. It is a no-op when the model
// declares change detection unnecessary.
//
// Depending on the manager's delete-orphans timing, severed required
// references may delete dependents synchronously.
func (d *ChangeDetector) DetectAll() {
	d.DetectAllWithTiming(d.manager.config.Cascade.DeleteOrphansTiming)
}

// DetectAllWithTiming is DetectAll with an explicit delete-orphans
// timing overriding the manager default.
func (d *ChangeDetector) DetectAllWithTiming(orphanTiming relforge.CascadeTiming) {
	if d.manager.config.Model.SkipDetectChanges() {
		return
	}
	start := time.Now()
	for _, e := range d.manager.Entries() {
		d.detect(e, orphanTiming)
	}
	if c := d.manager.config.Collector; c != nil {
		c.ObserveDetectChangesDuration(time.Since(start).Seconds())
	}
}

// DetectEntry scans a single tracked entry.
func (d *ChangeDetector) DetectEntry(e *Entry) {
	if d.manager.config.Model.SkipDetectChanges() {
		return
	}
	d.detect(e, d.manager.config.Cascade.DeleteOrphansTiming)
}

func (d *ChangeDetector) detect(e *Entry, orphanTiming relforge.CascadeTiming) {
	if !e.state.IsTracked() || e.state == relforge.StateDeleted {
		return
	}

	if e.state == relforge.StateUnchanged || e.state == relforge.StateModified {
		d.detectScalars(e)
	}
	d.detectRelationships(e, orphanTiming)
}

// detectScalars compares each scalar property's current value to its
// snapshot using the property's configured comparer.
func (d *ChangeDetector) detectScalars(e *Entry) {
	for _, p := range e.entityType.Properties() {
		if e.modified[p.Index()] {
			continue
		}
		if !p.Comparer().Equal(p.Get(e.entity), e.originalValue(p)) {
			e.markModified(p)
		}
	}
}

// detectRelationships diffs reference navigations against their
// snapshot, fixing up foreign keys on re-parenting and evaluating
// orphan cascades on severance, then re-snapshots the navigations.
func (d *ChangeDetector) detectRelationships(e *Entry, orphanTiming relforge.CascadeTiming) {
	navs := e.entityType.Navigations()
	for i, nav := range navs {
		if nav.IsCollection() {
			continue
		}

		current := nav.Get(e.entity)
		var original any
		if e.navOriginal != nil {
			original = e.navOriginal[i]
		} else {
			original = current
		}
		if current == original {
			continue
		}

		switch {
		case current == nil:
			// Severed reference. Required dependents become orphans;
			// optional dependents just lose their foreign key values.
			if nav.Required() {
				d.manager.deleteOrphan(e, orphanTiming)
			} else {
				for _, fk := range nav.ForeignKeys() {
					fk.Set(e.entity, nil)
					d.flagRelationshipChange(e, fk.Name())
				}
			}
		default:
			// New or re-parented reference: mirror the principal key
			// into the dependent's foreign key properties.
			principalKey := nav.TargetType().Key()
			for k, fk := range nav.ForeignKeys() {
				if k >= len(principalKey) {
					break
				}
				fk.Set(e.entity, principalKey[k].Get(current))
				d.flagRelationshipChange(e, fk.Name())
			}
		}
	}
	e.snapshotNavigations()
}

// flagRelationshipChange marks a foreign key property modified unless
// the entry is pending insert or delete, where the flag is meaningless.
func (d *ChangeDetector) flagRelationshipChange(e *Entry, property string) {
	switch e.state {
	case relforge.StateUnchanged, relforge.StateModified:
		e.SetModified(property, true)
	}
}
