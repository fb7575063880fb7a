package catalog

import "strings"

// PathSeparator joins path segments into the full channel path.
const PathSeparator = "/"

// Record is one decoded channel: its opaque id and its structural path.
type Record struct {
	ID   string
	Path []string
}

// FullPath returns the segments of r joined with PathSeparator.
func (r Record) FullPath() string {
	return strings.Join(r.Path, PathSeparator)
}

// Tree owns a namespace of nodes and the handle registry for them.
//
// The registry is a slice indexed by handle. Handles are assigned
// sequentially and nodes are never removed, so every handle ever issued by
// the tree stays valid for its lifetime.
type Tree struct {
	root     *Node
	registry []*Node
}

// New returns an empty tree containing only the root.
func New() *Tree {
	root := &Node{handle: RootHandle}
	return &Tree{
		root:     root,
		registry: []*Node{root},
	}
}

// Build creates a tree from records. Records may arrive in any order; when
// two records share a path the later one's id wins.
func Build(records []Record) *Tree {
	t := New()
	for _, r := range records {
		t.Insert(r)
	}
	return t
}

// Message returns a tree whose only entry is a leaf named text. It is used
// to present a notice ("Filter returned no results") as a catalog.
func Message(text string) *Tree {
	t := New()
	t.insert([]string{text}, "", false)
	return t
}

// Insert adds r to the tree, creating missing path nodes, and returns the
// node for the final segment.
func (t *Tree) Insert(r Record) *Node {
	return t.insert(r.Path, r.ID, true)
}

func (t *Tree) insert(path []string, id string, hasID bool) *Node {
	node := t.root
	for _, segment := range path {
		child, i := node.child(segment)
		if child == nil {
			child = &Node{handle: len(t.registry), name: segment}
			node.insertChild(i, child)
			t.registry = append(t.registry, child)
		}
		node = child
	}
	if hasID {
		node.dataID = id
		node.hasID = true
	}
	return node
}

// Root returns the synthetic root node.
func (t *Tree) Root() *Node { return t.root }

// Len returns the number of nodes in the tree, root included.
func (t *Tree) Len() int { return len(t.registry) }

// Lookup returns the node with the given handle.
func (t *Tree) Lookup(handle int) (*Node, bool) {
	if handle < 0 || handle >= len(t.registry) {
		return nil, false
	}
	return t.registry[handle], true
}

// IsEmpty reports whether the root has no children.
func (t *Tree) IsEmpty() bool { return t.root.IsLeaf() }

// Leaves returns every leaf below the root with its full path, in
// lexicographic path order. A leaf without a data id yields an empty ID.
func (t *Tree) Leaves() []Record {
	var out []Record
	t.walk(func(path []string, n *Node) {
		if n.IsLeaf() && !n.IsRoot() {
			out = append(out, Record{
				ID:   n.dataID,
				Path: append([]string(nil), path...),
			})
		}
	})
	return out
}

// frame is one pending visit of an explicit depth-first traversal.
type frame struct {
	node  *Node
	depth int // number of path segments up to and including node
}

// walk visits every node in pre-order. path holds the segments from below
// the root down to the visited node and is only valid during the call.
func (t *Tree) walk(visit func(path []string, n *Node)) {
	stack := []frame{{node: t.root}}
	path := make([]string, 0, 16)

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		path = path[:max(f.depth-1, 0)]
		if f.depth > 0 {
			path = append(path, f.node.name)
		}

		visit(path, f.node)

		// Push in reverse so children are visited in name order.
		for i := len(f.node.children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: f.node.children[i], depth: f.depth + 1})
		}
	}
}
