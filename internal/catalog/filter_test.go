package catalog

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRegex(t *testing.T, expr string) Predicate {
	t.Helper()
	pred, err := ParseSelector("regex:" + expr)
	require.NoError(t, err)
	return pred
}

func TestFilterFocalPlane(t *testing.T) {
	filtered := fixtureTree().Filter(mustRegex(t, "focal-plane/.*"))
	assert.Equal(t, []string{"focal-plane"}, childNames(filtered.Root()))
}

func TestFilterCaseSensitivePredicate(t *testing.T) {
	re := regexp.MustCompile(`^(?:.*/freememory)$`)
	filtered := fixtureTree().Filter(re.MatchString)
	assert.True(t, filtered.IsEmpty(), "plain predicates are applied as given")
}

func TestFilterTestsLeavesOnly(t *testing.T) {
	tree := Build([]Record{
		{ID: "1", Path: []string{"rack", "slot", "temp"}},
		{ID: "2", Path: []string{"rack", "other", "volts"}},
	})

	// "rack/slot" is an intermediate node and is never tested itself.
	filtered := tree.Filter(func(p string) bool { return p == "rack/slot" })
	assert.True(t, filtered.IsEmpty())

	filtered = tree.Filter(func(p string) bool { return strings.HasPrefix(p, "rack/slot/") })
	assert.Equal(t, []string{"rack/slot/temp"}, leafPaths(filtered))
}

func TestFilterKeepsIDs(t *testing.T) {
	filtered := fixtureTree().Filter(mustRegex(t, ".*/R34/.*/rds/.*"))
	leaves := filtered.Leaves()
	require.Len(t, leaves, 4)
	for _, leaf := range leaves {
		assert.NotEmpty(t, leaf.ID)
		assert.Contains(t, leaf.FullPath(), "/R34/")
	}
}

func TestFilterNewHandles(t *testing.T) {
	tree := fixtureTree()
	filtered := tree.Filter(mustRegex(t, "vacuum/.*"))

	assert.Less(t, filtered.Len(), tree.Len())
	for h := 0; h < filtered.Len(); h++ {
		n, ok := filtered.Lookup(h)
		require.True(t, ok)
		assert.Equal(t, h, n.Handle())
	}
}

func TestFilterIdempotent(t *testing.T) {
	selectors := []string{
		"regex:.*/freememory",
		"regex:focal-plane/.*",
		"**/rds/*",
		"*/Runtime/*Memory",
	}
	for _, sel := range selectors {
		t.Run(sel, func(t *testing.T) {
			pred, err := ParseSelector(sel)
			require.NoError(t, err)

			once := fixtureTree().Filter(pred)
			twice := once.Filter(pred)
			assert.NotEmpty(t, once.Leaves())
			assert.Equal(t, once.Leaves(), twice.Leaves())
		})
	}
}

func TestFilterNoMatch(t *testing.T) {
	filtered := fixtureTree().Filter(func(string) bool { return false })
	assert.True(t, filtered.IsEmpty())
	assert.Equal(t, 1, filtered.Len())
}
