// Package catalog builds and transforms the hierarchical namespace of
// trending channels.
//
// A Tree is built from flat (id, path) records. Every node gets a handle
// that is unique within its tree; Filter and Flatten always produce a new,
// independently numbered tree, so handles from one tree must never be used
// to look up nodes in another.
package catalog

import "sort"

// RootHandle is the handle of the synthetic root of every tree.
const RootHandle = 0

// Node is a single element of the namespace. Nodes are owned by exactly one
// Tree and are never mutated after the tree is handed to a caller.
type Node struct {
	handle   int
	name     string
	children []*Node // sorted by name
	dataID   string
	hasID    bool
}

// Handle returns the tree-local identifier of the node.
func (n *Node) Handle() int { return n.handle }

// Name returns the path segment of the node. It is empty for the root.
func (n *Node) Name() string { return n.name }

// IsRoot reports whether n is the synthetic root.
func (n *Node) IsRoot() bool { return n.handle == RootHandle }

// DataID returns the channel id of the node, if it corresponds to a record.
func (n *Node) DataID() (string, bool) { return n.dataID, n.hasID }

// Children returns the children of n ordered by name. The slice must not be
// modified.
func (n *Node) Children() []*Node { return n.children }

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// child returns the child named name and the index where it is (or would
// be) stored.
func (n *Node) child(name string) (*Node, int) {
	i := sort.Search(len(n.children), func(i int) bool {
		return n.children[i].name >= name
	})
	if i < len(n.children) && n.children[i].name == name {
		return n.children[i], i
	}
	return nil, i
}

func (n *Node) insertChild(i int, c *Node) {
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = c
}
