package menu

import (
	"sync"

	"gestionale/internal/auth"
)

// Entry is one rendered sidebar row.
type Entry struct {
	Key       string
	Label     string
	Path      string
	Depth     int
	Group     bool
	Open      bool
	Clickable bool
	Active    bool
}

// Sidebar owns the navigation state of one session: the permission-baked
// tree, the manual expansion state and the current search string.
type Sidebar struct {
	mu    sync.Mutex
	specs []Spec
	opts  Options
	tree  []Node
	exp   *Expansion
	query string
}

func NewSidebar(specs []Spec, authz auth.Authorizer, opts Options) *Sidebar {
	return &Sidebar{
		specs: specs,
		opts:  opts,
		tree:  Build(specs, authz),
		exp:   NewExpansion(),
	}
}

// Rebuild recomputes the tree for a new permission set and resets the
// expansion state.
func (s *Sidebar) Rebuild(authz auth.Authorizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = Build(s.specs, authz)
	s.exp.Reset()
	s.query = ""
}

func (s *Sidebar) SetQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = q
}

func (s *Sidebar) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Toggle flips a group; see Expansion.Toggle.
func (s *Sidebar) Toggle(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exp.Toggle(key, s.query)
}

// Tree returns the filtered tree for the current query.
func (s *Sidebar) Tree() []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Filter(s.tree, s.query, s.opts)
}

// Allowed reports whether path is a permitted leaf of the unfiltered tree.
func (s *Sidebar) Allowed(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := FindPath(s.tree, path)
	return ok && n.Permitted
}

// Entries flattens the visible part of the filtered tree. Children of a
// closed group are omitted.
func (s *Sidebar) Entries(activePath string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	s.flatten(Filter(s.tree, s.query, s.opts), 0, activePath, &out)
	return out
}

func (s *Sidebar) flatten(nodes []Node, depth int, active string, out *[]Entry) {
	for _, n := range nodes {
		e := Entry{
			Key:       n.Key,
			Label:     n.Label,
			Path:      n.Path,
			Depth:     depth,
			Group:     n.IsGroup(),
			Clickable: n.Clickable(),
			Active:    n.Path != "" && n.Path == active,
		}
		if e.Group {
			e.Open = s.exp.IsOpen(n, s.query)
		}
		*out = append(*out, e)
		if e.Group && e.Open {
			s.flatten(n.Children, depth+1, active, out)
		}
	}
}
