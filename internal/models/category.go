package models

import (
	"errors"
	"fmt"
)

// ErrCategoryNotFound is returned when a tree operation names an unknown node
var ErrCategoryNotFound = errors.New("category not found")

// CategoryNode is one node of the indicator category tree
type CategoryNode struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Children []CategoryNode `json:"children,omitempty"`
	IsOpen   bool           `json:"isOpen,omitempty"`
}

// CategoryTree is the ordered list of root categories. Every operation
// returns a new tree and leaves the receiver untouched.
type CategoryTree []CategoryNode

// FlatCategory is a node with its depth, in display order
type FlatCategory struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Depth    int    `json:"depth"`
	ParentID string `json:"parentId,omitempty"`
}

func cloneNodes(nodes []CategoryNode) []CategoryNode {
	if nodes == nil {
		return nil
	}
	out := make([]CategoryNode, len(nodes))
	for i, n := range nodes {
		n.Children = cloneNodes(n.Children)
		out[i] = n
	}
	return out
}

// Clone returns a deep copy of the tree
func (t CategoryTree) Clone() CategoryTree {
	return CategoryTree(cloneNodes(t))
}

// Find returns a copy of the node with the given id
func (t CategoryTree) Find(id string) (CategoryNode, bool) {
	var walk func(nodes []CategoryNode) (CategoryNode, bool)
	walk = func(nodes []CategoryNode) (CategoryNode, bool) {
		for _, n := range nodes {
			if n.ID == id {
				return n, true
			}
			if found, ok := walk(n.Children); ok {
				return found, true
			}
		}
		return CategoryNode{}, false
	}
	return walk(t)
}

// Contains reports whether a node with the given id exists
func (t CategoryTree) Contains(id string) bool {
	_, ok := t.Find(id)
	return ok
}

// AddRoot appends a new root category
func (t CategoryTree) AddRoot(node CategoryNode) (CategoryTree, error) {
	if t.Contains(node.ID) {
		return nil, fmt.Errorf("category %s already exists", node.ID)
	}
	out := t.Clone()
	return append(out, CategoryNode{ID: node.ID, Name: node.Name, Children: cloneNodes(node.Children)}), nil
}

// AddChild appends node under parentID and opens the parent
func (t CategoryTree) AddChild(parentID string, node CategoryNode) (CategoryTree, error) {
	if t.Contains(node.ID) {
		return nil, fmt.Errorf("category %s already exists", node.ID)
	}
	out := t.Clone()
	if !updateNode(out, parentID, func(n *CategoryNode) {
		n.Children = append(n.Children, CategoryNode{ID: node.ID, Name: node.Name, Children: cloneNodes(node.Children)})
		n.IsOpen = true
	}) {
		return nil, ErrCategoryNotFound
	}
	return out, nil
}

// Rename changes the display name of a node
func (t CategoryTree) Rename(id, name string) (CategoryTree, error) {
	out := t.Clone()
	if !updateNode(out, id, func(n *CategoryNode) { n.Name = name }) {
		return nil, ErrCategoryNotFound
	}
	return out, nil
}

// Toggle flips the open flag of a node
func (t CategoryTree) Toggle(id string) (CategoryTree, error) {
	out := t.Clone()
	if !updateNode(out, id, func(n *CategoryNode) { n.IsOpen = !n.IsOpen }) {
		return nil, ErrCategoryNotFound
	}
	return out, nil
}

// Delete removes a node together with its subtree
func (t CategoryTree) Delete(id string) (CategoryTree, error) {
	if !t.Contains(id) {
		return nil, ErrCategoryNotFound
	}
	var prune func(nodes []CategoryNode) []CategoryNode
	prune = func(nodes []CategoryNode) []CategoryNode {
		out := make([]CategoryNode, 0, len(nodes))
		for _, n := range nodes {
			if n.ID == id {
				continue
			}
			n.Children = prune(n.Children)
			if len(n.Children) == 0 {
				n.Children = nil
			}
			out = append(out, n)
		}
		return out
	}
	return CategoryTree(prune(t)), nil
}

// SubtreeIDs returns id and the ids of all its descendants
func (t CategoryTree) SubtreeIDs(id string) []string {
	node, ok := t.Find(id)
	if !ok {
		return nil
	}
	var ids []string
	var walk func(n CategoryNode)
	walk = func(n CategoryNode) {
		ids = append(ids, n.ID)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(node)
	return ids
}

// Flatten lists every node depth-first with its depth
func (t CategoryTree) Flatten() []FlatCategory {
	var out []FlatCategory
	var walk func(nodes []CategoryNode, depth int, parent string)
	walk = func(nodes []CategoryNode, depth int, parent string) {
		for _, n := range nodes {
			out = append(out, FlatCategory{ID: n.ID, Name: n.Name, Depth: depth, ParentID: parent})
			walk(n.Children, depth+1, n.ID)
		}
	}
	walk(t, 0, "")
	return out
}

// Validate checks that ids are non-empty and unique. A tree of values with
// unique ids cannot contain a cycle.
func (t CategoryTree) Validate() error {
	seen := make(map[string]bool)
	for _, n := range t.Flatten() {
		if n.ID == "" {
			return fmt.Errorf("category %q has no id", n.Name)
		}
		if seen[n.ID] {
			return fmt.Errorf("category id %s appears more than once", n.ID)
		}
		seen[n.ID] = true
	}
	return nil
}

func updateNode(nodes []CategoryNode, id string, fn func(*CategoryNode)) bool {
	for i := range nodes {
		if nodes[i].ID == id {
			fn(&nodes[i])
			return true
		}
		if updateNode(nodes[i].Children, id, fn) {
			return true
		}
	}
	return false
}
