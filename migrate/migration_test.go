package migrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relforge/relforge"
)

func sqlUp(statements ...string) []Operation {
	ops := make([]Operation, len(statements))
	for i, s := range statements {
		ops[i] = SQLOperation{SQL: s}
	}
	return ops
}

// testRegistry is the three-step fixture used across the planner,
// executor, and script tests.
func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(
		Migration{
			ID:   "20240101000000_create_users",
			Up:   sqlUp("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)"),
			Down: sqlUp("DROP TABLE users"),
		},
		Migration{
			ID: "20240201000000_create_posts",
			Up: sqlUp(
				"CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER NOT NULL, title TEXT NOT NULL)",
				"CREATE INDEX idx_posts_user ON posts (user_id)",
			),
			Down: sqlUp("DROP TABLE posts"),
		},
		Migration{
			ID:   "20240301000000_add_flags",
			Up:   sqlUp("ALTER TABLE posts ADD COLUMN flags INTEGER NOT NULL DEFAULT 0"),
			Down: sqlUp("ALTER TABLE posts DROP COLUMN flags"),
		},
	)
	require.NoError(t, err)
	return r
}

func ids(migrations []Migration) []string {
	out := make([]string, len(migrations))
	for i, m := range migrations {
		out[i] = m.ID
	}
	return out
}

func TestRegistry_SortsMigrationsByID(t *testing.T) {
	r, err := NewRegistry(
		Migration{ID: "20240301000000_c"},
		Migration{ID: "20240101000000_a"},
		Migration{ID: "20240201000000_b"},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"20240101000000_a",
		"20240201000000_b",
		"20240301000000_c",
	}, ids(r.Migrations()))
}

func TestRegistry_RejectsDuplicateIDs(t *testing.T) {
	_, err := NewRegistry(
		Migration{ID: "20240101000000_a"},
		Migration{ID: "20240101000000_A"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate migration id")
}

func TestRegistry_FindIsCaseInsensitiveByDefault(t *testing.T) {
	r := testRegistry(t)

	m, err := r.Find("20240101000000_CREATE_USERS")
	require.NoError(t, err)
	assert.Equal(t, "20240101000000_create_users", m.ID)

	_, err = r.Find("20240401000000_missing")
	assert.ErrorIs(t, err, relforge.ErrMigrationNotFound)
}

func TestRegistry_CustomCompare(t *testing.T) {
	caseSensitive := strings.Compare
	r, err := NewRegistryWithCompare(caseSensitive,
		Migration{ID: "001_a"},
		Migration{ID: "001_A"},
	)
	require.NoError(t, err)
	require.Len(t, r.Migrations(), 2)

	_, err = r.Find("001_B")
	assert.ErrorIs(t, err, relforge.ErrMigrationNotFound)
}
