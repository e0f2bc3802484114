// Package menu builds the permission-aware navigation tree shown in the
// console sidebar and narrows it by a free-text search.
package menu

import (
	"strconv"

	"gestionale/internal/auth"
)

// Spec is one entry of the declarative navigation structure. Entries with
// a Path are leaves; entries without are groups.
type Spec struct {
	Label      string
	Path       string
	Permission string
	Children   []Spec
}

// MatchKind records why a node survived a search.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchSelf
	MatchDescendant
)

// Node is a navigation entry with its permission baked in.
type Node struct {
	// Key is the index path of the entry in the declarative structure,
	// e.g. "2.0". It does not shift when siblings are pruned.
	Key       string
	Label     string
	Path      string
	Permitted bool
	Match     MatchKind
	Children  []Node
}

// IsGroup reports whether the node is a group (has no destination).
func (n Node) IsGroup() bool { return n.Path == "" }

// Clickable reports whether the node renders as a link.
func (n Node) Clickable() bool { return n.Path != "" && n.Permitted }

// Build resolves permissions against authz. Groups with no permitted
// descendant are dropped; unpermitted leaves inside a kept group stay in
// the tree and render as plain text.
func Build(specs []Spec, authz auth.Authorizer) []Node {
	if authz == nil {
		authz = auth.Deny{}
	}
	return build(specs, authz, "")
}

func build(specs []Spec, authz auth.Authorizer, parent string) []Node {
	out := make([]Node, 0, len(specs))
	for i, s := range specs {
		key := strconv.Itoa(i)
		if parent != "" {
			key = parent + "." + key
		}
		if s.Path != "" {
			out = append(out, Node{
				Key:       key,
				Label:     s.Label,
				Path:      s.Path,
				Permitted: authz.Has(s.Permission),
			})
			continue
		}
		if !authz.Has(s.Permission) {
			continue
		}
		children := build(s.Children, authz, key)
		if !hasPermittedLeaf(children) {
			continue
		}
		out = append(out, Node{
			Key:       key,
			Label:     s.Label,
			Permitted: true,
			Children:  children,
		})
	}
	return out
}

func hasPermittedLeaf(nodes []Node) bool {
	for _, n := range nodes {
		if n.IsGroup() {
			if hasPermittedLeaf(n.Children) {
				return true
			}
			continue
		}
		if n.Permitted {
			return true
		}
	}
	return false
}

// Walk visits every node depth-first in display order.
func Walk(nodes []Node, fn func(n Node, depth int)) {
	walk(nodes, 0, fn)
}

func walk(nodes []Node, depth int, fn func(Node, int)) {
	for _, n := range nodes {
		fn(n, depth)
		walk(n.Children, depth+1, fn)
	}
}

// Leaves returns the leaf nodes in display order.
func Leaves(nodes []Node) []Node {
	var out []Node
	Walk(nodes, func(n Node, _ int) {
		if !n.IsGroup() {
			out = append(out, n)
		}
	})
	return out
}

// FindPath returns the leaf whose path equals path.
func FindPath(nodes []Node, path string) (Node, bool) {
	var (
		found Node
		ok    bool
	)
	Walk(nodes, func(n Node, _ int) {
		if !ok && n.Path == path && n.Path != "" {
			found, ok = n, true
		}
	})
	return found, ok
}
