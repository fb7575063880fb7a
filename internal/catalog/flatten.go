package catalog

import "strings"

// span is a run of consecutive path depths whose nodes each have exactly
// one child. Depth 0 is the first segment below the root.
type span struct {
	start  int
	length int
}

func (s span) end() int { return s.start + s.length }

// Flatten returns a new tree in which every chain of single-child nodes is
// collapsed into one compound segment together with the node that follows
// the chain. Compound segments are joined with PathSeparator, so splitting
// a leaf's path on it gives back the original segments. Leaf ids are kept.
//
// The root is never part of a chain.
func (t *Tree) Flatten() *Tree {
	result := New()
	var spans []span

	t.walk(func(path []string, n *Node) {
		if n.IsRoot() {
			return
		}
		depth := len(path) - 1

		// Drop spans that belong to a subtree we have left. Spans are
		// ordered by start, so stale ones are always at the end.
		for len(spans) > 0 && spans[len(spans)-1].end() > depth {
			spans = spans[:len(spans)-1]
		}

		switch len(n.children) {
		case 0:
			result.insert(compact(path, spans), n.dataID, n.hasID)
		case 1:
			if k := len(spans) - 1; k >= 0 && spans[k].end() == depth {
				spans[k].length++
			} else {
				spans = append(spans, span{start: depth, length: 1})
			}
		}
	})
	return result
}

// compact merges each span of path, plus the segment right after it, into
// a single segment.
func compact(path []string, spans []span) []string {
	out := make([]string, 0, len(path))
	next := 0
	for i := 0; i < len(path); {
		if next < len(spans) && spans[next].start == i {
			stop := min(spans[next].end()+1, len(path))
			out = append(out, strings.Join(path[i:stop], PathSeparator))
			i = stop
			next++
			continue
		}
		out = append(out, path[i])
		i++
	}
	return out
}
