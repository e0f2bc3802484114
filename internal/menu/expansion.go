package menu

// Expansion tracks which groups the user opened by hand. Keys are node
// keys, so sibling groups sharing a label never collide.
type Expansion struct {
	open map[string]bool
}

func NewExpansion() *Expansion {
	return &Expansion{open: make(map[string]bool)}
}

// Toggle flips key. While a search is active the toggle is ignored and
// false is returned.
func (e *Expansion) Toggle(key, query string) bool {
	if Searching(query) {
		return false
	}
	e.open[key] = !e.open[key]
	return true
}

// IsOpen reports whether group n is expanded. During a search every group
// that survived the filter through a match is forced open.
func (e *Expansion) IsOpen(n Node, query string) bool {
	if Searching(query) && n.Match != MatchNone {
		return true
	}
	return e.open[n.Key]
}

// Reset forgets all manual state.
func (e *Expansion) Reset() {
	e.open = make(map[string]bool)
}
