package menu

import (
	"reflect"
	"strings"
	"testing"
)

type grants map[string]bool

func (g grants) Has(p string) bool { return p == "" || g[p] }

func sampleSpecs() []Spec {
	return []Spec{
		{Label: "Dashboard", Path: "/"},
		{Label: "Expenses", Children: []Spec{
			{Label: "Expenses", Path: "/expenses", Permission: "expense-list"},
			{Label: "Hotel Expenses", Path: "/hotel-expenses", Permission: "hotel-expense-list"},
		}},
		{Label: "Categories", Children: []Spec{
			{Label: "Expense Categories", Path: "/expense-categories", Permission: "expense-category-list"},
			{Label: "Product Categories", Path: "/product-categories", Permission: "product-category-list"},
		}},
		{Label: "Administration", Children: []Spec{
			{Label: "Roles", Path: "/roles", Permission: "role-list"},
			{Label: "Access", Children: []Spec{
				{Label: "Permissions", Path: "/permissions", Permission: "permission-list"},
			}},
		}},
	}
}

func labels(nodes []Node) []string {
	var out []string
	Walk(nodes, func(n Node, depth int) {
		out = append(out, strings.Repeat("-", depth)+n.Label)
	})
	return out
}

func TestBuild_PrunesGroupsWithoutPermittedLeaves(t *testing.T) {
	tree := Build(sampleSpecs(), grants{"expense-list": true, "permission-list": true})

	want := []string{
		"Dashboard",
		"Expenses",
		"-Expenses",
		"-Hotel Expenses",
		"Administration",
		"-Roles",
		"-Access",
		"--Permissions",
	}
	if got := labels(tree); !reflect.DeepEqual(got, want) {
		t.Fatalf("Build labels = %v, want %v", got, want)
	}

	hotel, ok := FindPath(tree, "/hotel-expenses")
	if !ok {
		t.Fatal("unpermitted leaf inside a kept group must stay in the tree")
	}
	if hotel.Clickable() {
		t.Error("unpermitted leaf must not be clickable")
	}
}

func TestBuild_KeysAreStableIndexPaths(t *testing.T) {
	tree := Build(sampleSpecs(), grants{"permission-list": true})

	// Expenses and Categories are pruned; Administration keeps its index.
	if len(tree) != 2 {
		t.Fatalf("expected dashboard + administration, got %v", labels(tree))
	}
	if tree[1].Key != "3" {
		t.Errorf("Administration key = %q, want 3", tree[1].Key)
	}
	perm, _ := FindPath(tree, "/permissions")
	if perm.Key != "3.1.0" {
		t.Errorf("Permissions key = %q, want 3.1.0", perm.Key)
	}
}

func TestBuild_EmptyAndNoPermissions(t *testing.T) {
	if got := Build(nil, grants{}); len(got) != 0 {
		t.Fatalf("empty input should give empty tree, got %v", got)
	}
	tree := Build(sampleSpecs(), nil)
	if got := labels(tree); !reflect.DeepEqual(got, []string{"Dashboard"}) {
		t.Fatalf("no permissions should leave only ungated entries, got %v", got)
	}
}

func TestFilter_EmptyQueryIsIdentity(t *testing.T) {
	tree := Build(sampleSpecs(), grants{"expense-list": true})
	for _, q := range []string{"", "   "} {
		if got := Filter(tree, q, Options{}); !reflect.DeepEqual(got, tree) {
			t.Errorf("Filter(%q) changed the tree", q)
		}
	}
}

func TestFilter_HotelScenario(t *testing.T) {
	specs := []Spec{{Label: "Expenses", Children: []Spec{
		{Label: "Expenses", Path: "/expenses", Permission: "expense-list"},
		{Label: "Hotel Expenses", Path: "/hotel-expenses", Permission: "hotel-expense-list"},
	}}}
	tree := Build(specs, grants{"expense-list": true})

	got := Filter(tree, "hotel", Options{})
	if len(got) != 1 || got[0].Label != "Expenses" {
		t.Fatalf("expected group Expenses, got %v", labels(got))
	}
	if got[0].Match != MatchDescendant {
		t.Errorf("group match = %v, want MatchDescendant", got[0].Match)
	}
	children := got[0].Children
	if len(children) != 1 || children[0].Label != "Hotel Expenses" {
		t.Fatalf("children = %v, want only Hotel Expenses", labels(children))
	}
	if children[0].Clickable() {
		t.Error("Hotel Expenses is unpermitted and must render as text")
	}
}

func TestFilter_GroupLabelMatch(t *testing.T) {
	tree := Build(sampleSpecs(), grants{"expense-category-list": true, "product-category-list": true})

	kept := Filter(tree, "categ", Options{})
	// Group label "Categories" matches; children match too. Default keeps
	// the original children.
	if got := labels(kept); !reflect.DeepEqual(got, []string{"Categories", "-Expense Categories", "-Product Categories"}) {
		t.Fatalf("default policy = %v", got)
	}

	kept = Filter(tree, "categories", Options{})
	if kept[0].Match != MatchSelf || len(kept[0].Children) != 2 {
		t.Fatalf("self-matching group should keep all children, got %v", labels(kept))
	}

	narrowed := Filter(tree, "product", Options{NarrowMatchedGroups: true})
	if got := labels(narrowed); !reflect.DeepEqual(got, []string{"Categories", "-Product Categories"}) {
		t.Fatalf("narrow policy = %v", got)
	}

	// Only the group label matches: default keeps children, narrow drops them.
	adm := Build(sampleSpecs(), grants{"role-list": true})
	if got := labels(Filter(adm, "admin", Options{})); !reflect.DeepEqual(got, []string{"Administration", "-Roles"}) {
		t.Errorf("default group-only match = %v", got)
	}
	if got := labels(Filter(adm, "admin", Options{NarrowMatchedGroups: true})); !reflect.DeepEqual(got, []string{"Administration"}) {
		t.Errorf("narrow group-only match = %v", got)
	}
}

func TestFilter_CaseInsensitiveAndOrderPreserved(t *testing.T) {
	tree := Build(sampleSpecs(), grants{"expense-list": true, "hotel-expense-list": true, "expense-category-list": true})
	got := labels(Filter(tree, "EXPENSE", Options{}))
	want := []string{"Expenses", "-Expenses", "-Hotel Expenses", "Categories", "-Expense Categories"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Filter = %v, want %v", got, want)
	}
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	tree := Build(sampleSpecs(), grants{"expense-list": true, "hotel-expense-list": true})
	before := labels(tree)
	_ = Filter(tree, "hotel", Options{})
	if after := labels(tree); !reflect.DeepEqual(before, after) {
		t.Fatalf("input tree mutated: %v -> %v", before, after)
	}
	for _, n := range tree {
		if n.Match != MatchNone {
			t.Fatalf("input node %q got match flag", n.Label)
		}
	}
}

func TestFilter_Properties(t *testing.T) {
	permsets := []grants{
		{},
		{"expense-list": true},
		{"expense-list": true, "hotel-expense-list": true, "role-list": true, "permission-list": true},
	}
	queries := []string{"e", "ex", "exp", "expe", "p", "pe", "per", "hot", "zzz"}

	for _, ps := range permsets {
		tree := Build(sampleSpecs(), ps)
		for _, q := range queries {
			a := Filter(tree, q, Options{})
			b := Filter(tree, q, Options{})
			if !reflect.DeepEqual(a, b) {
				t.Errorf("Filter not idempotent for %q", q)
			}
			for _, leaf := range Leaves(a) {
				if !leaf.Permitted && leaf.Clickable() {
					t.Errorf("unpermitted leaf %q clickable under %q", leaf.Label, q)
				}
			}
			for _, n := range a {
				if n.IsGroup() && !hasPermittedLeaf(n.Children) && n.Match != MatchSelf {
					// groups kept only through descendants must trace back to a permitted subtree
					orig, _ := findKey(tree, n.Key)
					if !hasPermittedLeaf(orig.Children) {
						t.Errorf("group %q without permitted leaves survived %q", n.Label, q)
					}
				}
			}
		}

		// narrowing monotonicity on matched leaves
		for i := 1; i < 4; i++ {
			short, long := queries[i-1], queries[i]
			shortSet := matchedLeaves(Filter(tree, short, Options{}), short)
			for key := range matchedLeaves(Filter(tree, long, Options{}), long) {
				if !shortSet[key] {
					t.Errorf("leaf %s matched %q but not %q", key, long, short)
				}
			}
		}
	}
}

func matchedLeaves(nodes []Node, q string) map[string]bool {
	out := make(map[string]bool)
	for _, l := range Leaves(nodes) {
		if strings.Contains(strings.ToLower(l.Label), strings.ToLower(q)) {
			out[l.Key] = true
		}
	}
	return out
}

func findKey(nodes []Node, key string) (Node, bool) {
	var (
		found Node
		ok    bool
	)
	Walk(nodes, func(n Node, _ int) {
		if n.Key == key {
			found, ok = n, true
		}
	})
	return found, ok
}

func TestExpansion_ToggleIgnoredWhileSearching(t *testing.T) {
	e := NewExpansion()
	g := Node{Key: "1", Label: "Expenses"}

	if e.IsOpen(g, "") {
		t.Fatal("groups start closed")
	}
	if !e.Toggle("1", "") || !e.IsOpen(g, "") {
		t.Fatal("toggle should open the group")
	}
	if e.Toggle("1", "hotel") {
		t.Fatal("toggle must be ignored during a search")
	}
	if !e.IsOpen(g, "") {
		t.Fatal("ignored toggle must not change state")
	}

	g.Match = MatchDescendant
	e.Toggle("1", "")
	if !e.IsOpen(g, "hotel") {
		t.Fatal("matching groups are forced open while searching")
	}
	if e.IsOpen(g, "") {
		t.Fatal("manual state applies again once the search is cleared")
	}

	e.Toggle("1", "")
	e.Reset()
	if e.IsOpen(Node{Key: "1"}, "") {
		t.Fatal("Reset should close every group")
	}
}

func TestSidebar_Entries(t *testing.T) {
	sb := NewSidebar(sampleSpecs(), grants{"expense-list": true, "role-list": true}, Options{})

	entries := sb.Entries("/expenses")
	if len(entries) != 3 {
		t.Fatalf("closed groups hide children, got %+v", entries)
	}

	if !sb.Toggle("1") {
		t.Fatal("toggle should apply without a query")
	}
	entries = sb.Entries("/expenses")
	var active *Entry
	for i := range entries {
		if entries[i].Active {
			active = &entries[i]
		}
	}
	if active == nil || active.Path != "/expenses" || !active.Clickable || active.Depth != 1 {
		t.Fatalf("active entry = %+v", active)
	}

	sb.SetQuery("roles")
	if sb.Toggle("1") {
		t.Fatal("toggle must be ignored while searching")
	}
	entries = sb.Entries("")
	if len(entries) != 2 || entries[0].Label != "Administration" || !entries[0].Open || entries[1].Label != "Roles" {
		t.Fatalf("search entries = %+v", entries)
	}

	if !sb.Allowed("/roles") || sb.Allowed("/hotel-expenses") || sb.Allowed("/nope") {
		t.Error("Allowed should reflect leaf permissions")
	}

	sb.Rebuild(grants{"hotel-expense-list": true})
	if sb.Query() != "" {
		t.Error("Rebuild should clear the query")
	}
	if sb.Allowed("/roles") || !sb.Allowed("/hotel-expenses") {
		t.Error("Rebuild should apply the new permissions")
	}
}
