package catalog

import "strings"

// Filter returns a new tree holding every leaf of t whose full path
// satisfies pred. Only leaves are tested: an intermediate segment matching
// the predicate does not by itself pull anything into the result.
func (t *Tree) Filter(pred func(path string) bool) *Tree {
	result := New()
	t.walk(func(path []string, n *Node) {
		if !n.IsLeaf() || n.IsRoot() {
			return
		}
		if pred(strings.Join(path, PathSeparator)) {
			result.insert(path, n.dataID, n.hasID)
		}
	})
	return result
}
