package track

import (
	"fmt"

	"github.com/relforge/relforge"
	"github.com/relforge/relforge/model"
)

// GraphNode is one discovered node during graph traversal: the entry
// for the instance plus the inbound linkage it was reached through.
type GraphNode struct {
	entry      *Entry
	source     *Entry
	navigation *model.Navigation
}

// Entry returns the entry for the discovered instance.
func (n *GraphNode) Entry() *Entry { return n.entry }

// SourceEntry returns the entry the node was reached from, nil for the
// traversal root.
func (n *GraphNode) SourceEntry() *Entry { return n.source }

// Navigation returns the navigation the node was reached through, nil
// for the traversal root.
func (n *GraphNode) Navigation() *model.Navigation { return n.navigation }

// attachTxn records tracking side effects of an in-progress graph
// attach so a failed traversal can be rolled back completely.
type attachTxn struct {
	created        []*Entry
	changed        []stateChange
	pendingDeletes int
	pendingOrphans int
}

type stateChange struct {
	entry *Entry
	old   relforge.EntityState
}

// TrackGraph traverses root and everything reachable through navigation
// properties, invoking callback once per newly discovered node. The
// callback decides whether to track the node, typically by setting the
// entry state; a node left detached is not recursed into.
//
// Nodes already tracked before the call are skipped without invoking
// the callback, which guarantees termination on cyclic graphs. No node
// is visited twice within one call.
//
// The whole traversal is an attach transaction: if the callback returns
// an error or panics, every tracking side effect of this call is rolled
// back and the manager is left exactly as it was.
func (m *Manager) TrackGraph(root any, callback func(*GraphNode) error) error {
	return m.trackGraph(root, func(node *GraphNode) (bool, error) {
		if node.entry.state.IsTracked() {
			// Already tracked before this call: skip and stop descending.
			return false, nil
		}
		if err := callback(node); err != nil {
			return false, err
		}
		return node.entry.state.IsTracked(), nil
	}, true)
}

// TrackGraphWithState traverses like Manager.TrackGraph but hands the
// continuation decision entirely to the caller: the callback is invoked
// for every discovered node, already tracked or not, and its boolean
// return decides whether traversal descends into the node's
// navigations. There is no built-in cycle protection; the caller must
// guarantee termination.
func TrackGraphWithState[S any](m *Manager, root any, state S, callback func(*GraphNode, S) (bool, error)) error {
	return m.trackGraph(root, func(node *GraphNode) (bool, error) {
		return callback(node, state)
	}, false)
}

func (m *Manager) trackGraph(root any, visit func(*GraphNode) (bool, error), suppressRevisit bool) (err error) {
	if m.txn != nil {
		return fmt.Errorf("graph attach already in progress")
	}
	m.txn = &attachTxn{
		pendingDeletes: len(m.pendingDeletes),
		pendingOrphans: len(m.pendingOrphans),
	}
	defer func() {
		if r := recover(); r != nil {
			m.rollbackAttach()
			panic(r)
		}
		if err != nil {
			m.rollbackAttach()
			return
		}
		m.txn = nil
	}()

	type pending struct {
		entity     any
		source     *Entry
		navigation *model.Navigation
	}

	// Explicit worklist keeps arbitrarily deep graphs off the call stack.
	stack := []pending{{entity: root}}
	var visited map[any]bool
	if suppressRevisit {
		visited = make(map[any]bool)
	}

	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited != nil {
			if visited[next.entity] {
				continue
			}
			visited[next.entity] = true
		}

		entry, entryErr := m.ensureEntry(next.entity)
		if entryErr != nil {
			return entryErr
		}

		descend, visitErr := visit(&GraphNode{entry: entry, source: next.source, navigation: next.navigation})
		if visitErr != nil {
			return visitErr
		}
		if !descend {
			continue
		}

		for _, nav := range entry.entityType.Navigations() {
			for _, target := range nav.GetAll(entry.entity) {
				stack = append(stack, pending{entity: target, source: entry, navigation: nav})
			}
		}
	}

	return nil
}

// rollbackAttach undoes every tracking side effect recorded since the
// attach transaction began, silently: no notifications fire for the
// restoration.
func (m *Manager) rollbackAttach() {
	txn := m.txn
	m.txn = nil
	if txn == nil {
		return
	}

	created := make(map[*Entry]bool, len(txn.created))
	for _, e := range txn.created {
		created[e] = true
	}

	// Restore state changes of pre-existing entries, newest first.
	for i := len(txn.changed) - 1; i >= 0; i-- {
		change := txn.changed[i]
		if created[change.entry] {
			continue
		}
		change.entry.state = change.old
	}

	// Detach entries this transaction started tracking.
	for i := len(txn.created) - 1; i >= 0; i-- {
		e := txn.created[i]
		e.state = relforge.StateDetached
		e.modified = make(map[int]bool)
		e.original = nil
		e.navOriginal = nil
		m.stopTracking(e)
	}

	m.pendingDeletes = m.pendingDeletes[:txn.pendingDeletes]
	m.pendingOrphans = m.pendingOrphans[:txn.pendingOrphans]
}
