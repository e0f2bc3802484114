package menu

import "strings"

// Options tunes Filter.
type Options struct {
	// NarrowMatchedGroups also narrows the children of a group whose own
	// label matches. By default such a group keeps all its children.
	NarrowMatchedGroups bool
}

// Filter narrows tree to the entries whose label contains query,
// case-insensitively. An empty (or blank) query returns tree unchanged.
// Matching looks at labels only; Permitted still decides whether a
// surviving leaf is clickable. Child order is preserved and tree is not
// modified.
func Filter(tree []Node, query string, opts Options) []Node {
	q := normalizeQuery(query)
	if q == "" {
		return tree
	}
	return filter(tree, q, opts)
}

func filter(nodes []Node, q string, opts Options) []Node {
	var out []Node
	for _, n := range nodes {
		selfMatch := strings.Contains(strings.ToLower(n.Label), q)
		if !n.IsGroup() {
			if selfMatch {
				n.Match = MatchSelf
				n.Children = nil
				out = append(out, n)
			}
			continue
		}

		children := filter(n.Children, q, opts)
		switch {
		case selfMatch && opts.NarrowMatchedGroups:
			n.Match = MatchSelf
			n.Children = children
		case selfMatch:
			n.Match = MatchSelf
		case len(children) > 0:
			n.Match = MatchDescendant
			n.Children = children
		default:
			continue
		}
		out = append(out, n)
	}
	return out
}

func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Searching reports whether query activates search mode.
func Searching(query string) bool {
	return normalizeQuery(query) != ""
}
