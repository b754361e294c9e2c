package track

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relforge/relforge"
)

func attachAll(node *GraphNode) error {
	return node.Entry().SetState(relforge.StateUnchanged)
}

func TestTrackGraph_ReachesEveryNavigation(t *testing.T) {
	m := newManager(t, Config{})

	a := &author{ID: 1}
	p1 := &post{ID: 10, AuthorID: 1, Author: a}
	p2 := &post{ID: 11, AuthorID: 1, Author: a}
	a.Posts = []*post{p1, p2}

	var visited []*GraphNode
	err := m.TrackGraph(a, func(node *GraphNode) error {
		visited = append(visited, node)
		return attachAll(node)
	})
	require.NoError(t, err)

	assert.Len(t, visited, 3)
	assert.Len(t, m.Entries(), 3)

	// The root has no inbound linkage; the posts were reached through
	// the Posts collection.
	root := visited[0]
	assert.Same(t, a, root.Entry().Entity())
	assert.Nil(t, root.SourceEntry())
	assert.Nil(t, root.Navigation())

	for _, node := range visited[1:] {
		require.NotNil(t, node.SourceEntry())
		assert.Same(t, a, node.SourceEntry().Entity())
		assert.Equal(t, "Posts", node.Navigation().Name())
	}
}

func TestTrackGraph_VisitsCyclicGraphOnce(t *testing.T) {
	m := newManager(t, Config{})

	a := &author{ID: 1}
	p := &post{ID: 10, AuthorID: 1, Author: a}
	a.Posts = []*post{p}

	visits := map[any]int{}
	err := m.TrackGraph(a, func(node *GraphNode) error {
		visits[node.Entry().Entity()]++
		return attachAll(node)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, visits[a])
	assert.Equal(t, 1, visits[p])
	assert.Len(t, m.Entries(), 2)
}

func TestTrackGraph_SkipsAlreadyTrackedNodes(t *testing.T) {
	m := newManager(t, Config{})

	a := &author{ID: 1}
	p := &post{ID: 10, AuthorID: 1, Author: a}
	a.Posts = []*post{p}

	_, err := m.Attach(a)
	require.NoError(t, err)

	var calls int
	err = m.TrackGraph(a, func(node *GraphNode) error {
		calls++
		return attachAll(node)
	})
	require.NoError(t, err)

	// The tracked root is skipped and not descended into.
	assert.Zero(t, calls)
	assert.Len(t, m.Entries(), 1)
}

func TestTrackGraph_DetachedNodeStopsDescent(t *testing.T) {
	m := newManager(t, Config{})

	a := &author{ID: 1}
	p := &post{ID: 10, AuthorID: 1, Author: a}
	a.Posts = []*post{p}

	var calls int
	err := m.TrackGraph(a, func(node *GraphNode) error {
		calls++
		// Leave every node detached.
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Empty(t, m.Entries())
}

func TestTrackGraph_RollsBackOnCallbackError(t *testing.T) {
	m := newManager(t, Config{})

	pre := &author{ID: 99}
	preEntry, err := m.Attach(pre)
	require.NoError(t, err)

	a := &author{ID: 1}
	p1 := &post{ID: 10, AuthorID: 1, Author: a}
	p2 := &post{ID: 11, AuthorID: 1, Author: a}
	a.Posts = []*post{p1, p2}

	boom := errors.New("boom")
	var calls int
	err = m.TrackGraph(a, func(node *GraphNode) error {
		calls++
		if calls == 3 {
			return boom
		}
		return attachAll(node)
	})
	require.ErrorIs(t, err, boom)

	// Everything this call tracked is gone; the pre-existing entry stays.
	entries := m.Entries()
	require.Len(t, entries, 1)
	assert.Same(t, preEntry, entries[0])
	assert.False(t, m.HasChanges())
}

func TestTrackGraph_RollsBackOnCallbackPanic(t *testing.T) {
	m := newManager(t, Config{})

	a := &author{ID: 1}
	p := &post{ID: 10, AuthorID: 1, Author: a}
	a.Posts = []*post{p}

	assert.Panics(t, func() {
		_ = m.TrackGraph(a, func(node *GraphNode) error {
			if _, ok := node.Entry().Entity().(*post); ok {
				panic("mid-traversal failure")
			}
			return attachAll(node)
		})
	})

	assert.Empty(t, m.Entries())

	// The manager is usable after the rollback.
	_, err := m.Attach(a)
	assert.NoError(t, err)
}

func TestTrackGraph_RollbackRestoresChangedStates(t *testing.T) {
	m := newManager(t, Config{})

	pre := &author{ID: 1}
	preEntry, err := m.Attach(pre)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = TrackGraphWithState(m, pre, 0, func(node *GraphNode, _ int) (bool, error) {
		// Mutate the pre-existing entry, then fail the traversal.
		if serr := node.Entry().SetState(relforge.StateDeleted); serr != nil {
			return false, serr
		}
		return false, boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, relforge.StateUnchanged, preEntry.State())
}

func TestTrackGraph_RejectsNestedAttach(t *testing.T) {
	m := newManager(t, Config{})

	a := &author{ID: 1}
	err := m.TrackGraph(a, func(node *GraphNode) error {
		return m.TrackGraph(&author{ID: 2}, attachAll)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")
}

func TestTrackGraphWithState_CallerControlsDescent(t *testing.T) {
	m := newManager(t, Config{})

	a := &author{ID: 1}
	p := &post{ID: 10, AuthorID: 1, Author: a}
	a.Posts = []*post{p}

	// Cyclic graph with no built-in cycle protection: the state caps the
	// number of visits to guarantee termination.
	type budget struct{ remaining int }
	state := &budget{remaining: 5}

	var visits int
	err := TrackGraphWithState(m, a, state, func(node *GraphNode, s *budget) (bool, error) {
		visits++
		if serr := node.Entry().SetState(relforge.StateUnchanged); serr != nil {
			return false, serr
		}
		s.remaining--
		return s.remaining > 0, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 5, visits)
	assert.Len(t, m.Entries(), 2)
}

func TestTrackGraph_UnmappedEntityFailsAndRollsBack(t *testing.T) {
	m := newManager(t, Config{})

	err := m.TrackGraph(&struct{ ID int64 }{}, attachAll)
	require.ErrorIs(t, err, relforge.ErrEntityTypeNotFound)
	assert.Empty(t, m.Entries())
}
