package listing

import (
	"context"
	"errors"
	"net/url"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"gestionale/internal/notify"
)

type row struct {
	ID   int
	Name string
}

func rowID(r row) string { return strconv.Itoa(r.ID) }

func strptr(s string) *string { return &s }

type fakeSource struct {
	mu       sync.Mutex
	pages    map[int]Page[row]
	results  map[string][]row
	listErr  error
	listReqs []int
	searches []string
	// gate, when set, blocks List for the given page until closed.
	gate map[int]chan struct{}
}

func (f *fakeSource) List(ctx context.Context, page int) (Page[row], error) {
	f.mu.Lock()
	f.listReqs = append(f.listReqs, page)
	gate := f.gate[page]
	err := f.listErr
	p := f.pages[page]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return Page[row]{}, err
	}
	return p, nil
}

func (f *fakeSource) Search(ctx context.Context, q string) ([]row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, q)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.results[q], nil
}

func (f *fakeSource) listCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.listReqs...)
}

type mutation struct {
	op     Op
	id     string
	fields url.Values
}

type fakeMutator struct {
	mu    sync.Mutex
	calls []mutation
	err   error
	msg   string
	block chan struct{}
}

func (m *fakeMutator) record(op Op, id string, p Payload) (Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, mutation{op: op, id: id, fields: p.Fields})
	block, err, msg := m.block, m.err, m.msg
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Message: msg, ID: id}, nil
}

func (m *fakeMutator) Create(ctx context.Context, p Payload) (Result, error) {
	return m.record(OpCreate, "", p)
}

func (m *fakeMutator) Update(ctx context.Context, id string, p Payload) (Result, error) {
	return m.record(OpUpdate, id, p)
}

func (m *fakeMutator) Delete(ctx context.Context, id string) (Result, error) {
	return m.record(OpDelete, id, Payload{})
}

func (m *fakeMutator) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type validationErr struct{ fields map[string][]string }

func (e validationErr) Error() string                     { return "validation failed" }
func (e validationErr) FieldErrors() map[string][]string { return e.fields }
func (e validationErr) UserMessage() string               { return "The given data was invalid." }

type messageErr struct{ msg string }

func (e messageErr) Error() string       { return "api: " + e.msg }
func (e messageErr) UserMessage() string { return e.msg }

type unauthErr struct{}

func (unauthErr) Error() string      { return "401" }
func (unauthErr) Unauthorized() bool { return true }

type timeoutErr struct{}

func (timeoutErr) Error() string { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

type harness struct {
	src      *fakeSource
	mut      *fakeMutator
	notices  *notify.Queue
	torndown int
	ctrl     *Controller[row]
}

func newHarness() *harness {
	h := &harness{
		src: &fakeSource{
			pages: map[int]Page[row]{
				1: {
					Items: []row{{1, "Taxi"}, {2, "Hotel"}},
					Links: []PageLink{
						{Label: "&laquo; Previous", URL: nil},
						{Label: "1", URL: strptr("http://api/expenses?page=1"), Active: true},
						{Label: "2", URL: strptr("http://api/expenses?page=2")},
						{Label: "...", URL: nil},
						{Label: "7", URL: strptr("http://api/expenses?page=7")},
						{Label: "Next &raquo;", URL: strptr("http://api/expenses?page=2")},
					},
				},
				2: {Items: []row{{3, "Lunch"}}},
				7: {Items: []row{{13, "Fuel"}}},
			},
			results: map[string][]row{"tax": {{1, "Taxi"}}},
		},
		mut:     &fakeMutator{msg: "Expense saved"},
		notices: notify.NewQueue(0),
	}
	h.ctrl = New(Config[row]{
		Resource:       "expenses",
		Source:         h.src,
		Mutator:        h.mut,
		ID:             rowID,
		Notifier:       h.notices,
		OnUnauthorized: func() { h.torndown++ },
	})
	return h
}

func (h *harness) mount(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Mount(context.Background()); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
}

func TestMount_LoadsFirstPage(t *testing.T) {
	h := newHarness()
	h.mount(t)

	s := h.ctrl.Snapshot()
	if s.Mode != Paged || s.CurrentPage != 1 || s.Query != "" {
		t.Fatalf("unexpected mode/page/query: %+v", s)
	}
	if len(s.Items) != 2 || len(s.Links) != 6 {
		t.Fatalf("items=%d links=%d", len(s.Items), len(s.Links))
	}
	if s.Loading || !s.Loaded || s.Empty() || s.Err != "" {
		t.Fatalf("unexpected flags: %+v", s)
	}
	if got := h.src.listCalls(); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("list calls = %v", got)
	}
}

func TestMount_EmptyListingIsNotAnError(t *testing.T) {
	h := newHarness()
	h.src.pages[1] = Page[row]{Items: []row{}, Links: []PageLink{}}
	h.mount(t)

	s := h.ctrl.Snapshot()
	if !s.Empty() {
		t.Fatal("empty listing should render the no-records placeholder")
	}
	if s.Err != "" || h.notices.Len() != 0 {
		t.Fatalf("empty listing must not produce an error: err=%q notices=%d", s.Err, h.notices.Len())
	}
}

func TestFollowLink_DisabledIsNoOp(t *testing.T) {
	h := newHarness()
	h.mount(t)
	before := h.ctrl.Snapshot()
	links := before.Links

	for _, l := range []PageLink{links[0], links[1], links[3]} {
		followed, err := h.ctrl.FollowLink(context.Background(), l)
		if followed || err != nil {
			t.Fatalf("FollowLink(%q) = %v, %v; want no-op", l.Label, followed, err)
		}
	}
	if !reflect.DeepEqual(h.ctrl.Snapshot(), before) {
		t.Fatal("state changed after following disabled links")
	}
	if got := h.src.listCalls(); len(got) != 1 {
		t.Fatalf("disabled links must not fetch, calls = %v", got)
	}
}

func TestFollowLink_ExtractsPage(t *testing.T) {
	h := newHarness()
	h.mount(t)

	followed, err := h.ctrl.FollowLink(context.Background(), h.ctrl.Snapshot().Links[4])
	if !followed || err != nil {
		t.Fatalf("FollowLink = %v, %v", followed, err)
	}
	s := h.ctrl.Snapshot()
	if s.CurrentPage != 7 || s.Items[0].Name != "Fuel" {
		t.Fatalf("expected page 7, got %+v", s)
	}
	if got := h.src.listCalls(); !reflect.DeepEqual(got, []int{1, 7}) {
		t.Fatalf("expected exactly one fetch for page 7, calls = %v", got)
	}
}

func TestFollowLink_MalformedURL(t *testing.T) {
	h := newHarness()
	h.mount(t)
	followed, err := h.ctrl.FollowLink(context.Background(), PageLink{Label: "x", URL: strptr("http://api/expenses?page=abc")})
	if followed || err == nil {
		t.Fatalf("malformed link should fail without fetching, got %v, %v", followed, err)
	}
	if len(h.src.listCalls()) != 1 {
		t.Fatal("malformed link must not fetch")
	}
}

func TestPageFromURL(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"http://api/expenses?page=7", 7, false},
		{"/expenses?query=x&page=3", 3, false},
		{"http://api/expenses", 1, false},
		{"http://api/expenses?page=0", 0, true},
		{"http://api/expenses?page=two", 0, true},
		{"://bad", 0, true},
	}
	for _, tt := range tests {
		got, err := PageFromURL(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("PageFromURL(%q) = %d, %v; want %d, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestSearch_BlankIsIgnored(t *testing.T) {
	h := newHarness()
	h.mount(t)
	before := h.ctrl.Snapshot()

	for _, q := range []string{"", "   ", "\t\n"} {
		searched, err := h.ctrl.Search(context.Background(), q)
		if searched || err != nil {
			t.Fatalf("Search(%q) = %v, %v", q, searched, err)
		}
	}
	if !reflect.DeepEqual(h.ctrl.Snapshot(), before) {
		t.Fatal("blank search changed state")
	}
	if len(h.src.searches) != 0 || len(h.src.listCalls()) != 1 {
		t.Fatal("blank search must not fetch")
	}
}

func TestSearch_ThenClearRestoresMountState(t *testing.T) {
	h := newHarness()
	h.mount(t)
	mounted := h.ctrl.Snapshot()

	if _, err := h.ctrl.FollowLink(context.Background(), mounted.Links[2]); err != nil {
		t.Fatal(err)
	}
	searched, err := h.ctrl.Search(context.Background(), "  tax ")
	if !searched || err != nil {
		t.Fatalf("Search = %v, %v", searched, err)
	}
	s := h.ctrl.Snapshot()
	if s.Mode != Queried || s.Query != "tax" || len(s.Links) != 0 || len(s.Items) != 1 {
		t.Fatalf("queried state = %+v", s)
	}
	if s.CurrentPage != 2 {
		t.Fatalf("current page should be retained in queried mode, got %d", s.CurrentPage)
	}

	if err := h.ctrl.ClearSearch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.ctrl.Snapshot(); !reflect.DeepEqual(got, mounted) {
		t.Fatalf("after refresh state = %+v, want %+v", got, mounted)
	}
}

func TestListingFailure_KeepsStaleItems(t *testing.T) {
	h := newHarness()
	h.mount(t)

	h.src.listErr = messageErr{msg: "Database offline"}
	if err := h.ctrl.Reload(context.Background()); err == nil {
		t.Fatal("Reload should report the failure")
	}
	s := h.ctrl.Snapshot()
	if len(s.Items) != 2 || s.Loading {
		t.Fatalf("stale items should stay and loading clear: %+v", s)
	}
	if s.Err != "Database offline" {
		t.Fatalf("banner = %q", s.Err)
	}
	notices := h.notices.Drain()
	if len(notices) != 1 || notices[0].Severity != notify.Error || notices[0].Message != "Database offline" {
		t.Fatalf("notices = %+v", notices)
	}

	h.src.listErr = timeoutErr{}
	_ = h.ctrl.Reload(context.Background())
	if n := h.notices.Drain(); len(n) != 1 || n[0].Message != msgNetwork {
		t.Fatalf("network failure notices = %+v", n)
	}

	h.src.listErr = nil
	if err := h.ctrl.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.Snapshot().Err != "" {
		t.Fatal("successful reload clears the banner")
	}
}

func TestListing_UnauthorizedTearsDown(t *testing.T) {
	h := newHarness()
	h.src.listErr = unauthErr{}
	err := h.ctrl.Mount(context.Background())
	if !IsUnauthorized(err) {
		t.Fatalf("Mount error = %v, want unauthorized", err)
	}
	if h.torndown != 1 {
		t.Fatalf("teardown calls = %d", h.torndown)
	}
	if h.notices.Len() != 0 {
		t.Fatal("unauthorized must not produce a local notice")
	}
	if h.ctrl.Snapshot().Loading {
		t.Fatal("loading must be cleared")
	}
}

func TestSequenceGuard_DiscardsSupersededResponse(t *testing.T) {
	h := newHarness()
	h.mount(t)

	gate := make(chan struct{})
	h.src.mu.Lock()
	h.src.gate = map[int]chan struct{}{2: gate}
	h.src.mu.Unlock()

	var stale int
	h.ctrl.cfg.Hooks.OnStale = func(string) { stale++ }

	done := make(chan error)
	go func() { done <- h.ctrl.SetPage(context.Background(), 2) }()

	// wait until the page 2 request is in flight
	deadline := time.Now().Add(2 * time.Second)
	for len(h.src.listCalls()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("page 2 request never issued")
		}
		time.Sleep(time.Millisecond)
	}

	if err := h.ctrl.SetPage(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	s := h.ctrl.Snapshot()
	if s.CurrentPage != 7 || len(s.Items) != 1 || s.Items[0].Name != "Fuel" {
		t.Fatalf("late page 2 response overwrote page 7: %+v", s)
	}
	if s.Loading {
		t.Fatal("loading must be cleared by the latest request")
	}
	if stale != 1 {
		t.Fatalf("stale responses = %d, want 1", stale)
	}
}

func TestCreate_SuccessResyncsOnce(t *testing.T) {
	h := newHarness()
	h.mount(t)

	if err := h.ctrl.OpenCreate(); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.Snapshot().Dialog != DialogCreate {
		t.Fatal("create dialog should be open")
	}
	payload := Payload{Fields: url.Values{"title": {"Train"}}}
	if err := h.ctrl.Submit(context.Background(), payload); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if h.mut.count() != 1 || h.mut.calls[0].op != OpCreate {
		t.Fatalf("mutations = %+v", h.mut.calls)
	}
	if got := h.src.listCalls(); !reflect.DeepEqual(got, []int{1, 1}) {
		t.Fatalf("expected exactly one resync of page 1, calls = %v", got)
	}
	s := h.ctrl.Snapshot()
	if s.Dialog != DialogNone || s.Submitting {
		t.Fatalf("dialog should be closed: %+v", s)
	}
	n := h.notices.Drain()
	if len(n) != 1 || n[0].Severity != notify.Success || n[0].Message != "Expense saved" {
		t.Fatalf("notices = %+v", n)
	}
}

func TestEdit_ResyncsCurrentQuery(t *testing.T) {
	h := newHarness()
	h.mount(t)
	if _, err := h.ctrl.Search(context.Background(), "tax"); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.OpenEdit("1"); err != nil {
		t.Fatal(err)
	}
	sel := h.ctrl.Snapshot().Selected
	if sel == nil || sel.Name != "Taxi" {
		t.Fatalf("selected = %+v", sel)
	}
	if err := h.ctrl.Submit(context.Background(), Payload{Fields: url.Values{"title": {"Cab"}}}); err != nil {
		t.Fatal(err)
	}
	if h.mut.calls[0].op != OpUpdate || h.mut.calls[0].id != "1" {
		t.Fatalf("update call = %+v", h.mut.calls[0])
	}
	if !reflect.DeepEqual(h.src.searches, []string{"tax", "tax"}) {
		t.Fatalf("expected one resync of the query, searches = %v", h.src.searches)
	}
	if len(h.src.listCalls()) != 1 {
		t.Fatal("queried mode must not resync a page")
	}
}

func TestSubmit_ValidationErrorsKeepDialogOpen(t *testing.T) {
	h := newHarness()
	h.mount(t)
	h.mut.err = validationErr{fields: map[string][]string{
		"title":  {"The title field is required."},
		"amount": {"The amount must be a number.", "The amount must be at least 0."},
	}}

	_ = h.ctrl.OpenCreate()
	if err := h.ctrl.Submit(context.Background(), Payload{}); err == nil {
		t.Fatal("expected validation error")
	}

	s := h.ctrl.Snapshot()
	if s.Dialog != DialogCreate || s.Submitting {
		t.Fatalf("dialog must stay open: %+v", s)
	}
	if len(s.FieldErrors["amount"]) != 2 {
		t.Fatalf("field errors = %+v", s.FieldErrors)
	}
	n := h.notices.Drain()
	want := []string{"The amount must be a number.", "The amount must be at least 0.", "The title field is required."}
	if len(n) != len(want) {
		t.Fatalf("expected one notice per message, got %+v", n)
	}
	for i := range want {
		if n[i].Message != want[i] || n[i].Severity != notify.Error {
			t.Errorf("notice %d = %+v, want %q", i, n[i], want[i])
		}
	}
	if len(h.src.listCalls()) != 1 {
		t.Fatal("failed mutation must not resync")
	}
}

func TestSubmit_GeneralAndNetworkErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"general", messageErr{msg: "Category is in use"}, "Category is in use"},
		{"network", timeoutErr{}, msgNetwork},
		{"unknown", errors.New("boom"), msgMutationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.mount(t)
			h.mut.err = tt.err
			_ = h.ctrl.OpenCreate()
			_ = h.ctrl.Submit(context.Background(), Payload{})

			n := h.notices.Drain()
			if len(n) != 1 || n[0].Message != tt.want {
				t.Fatalf("notices = %+v, want %q", n, tt.want)
			}
			if h.ctrl.Snapshot().Dialog != DialogCreate {
				t.Fatal("dialog must stay open")
			}
		})
	}
}

func TestSubmit_UnauthorizedTearsDown(t *testing.T) {
	h := newHarness()
	h.mount(t)
	h.mut.err = unauthErr{}
	_ = h.ctrl.OpenCreate()
	err := h.ctrl.Submit(context.Background(), Payload{})
	if !IsUnauthorized(err) || h.torndown != 1 {
		t.Fatalf("err = %v, torndown = %d", err, h.torndown)
	}
	if h.notices.Len() != 0 {
		t.Fatal("no local notice on 401")
	}
}

func TestSubmit_RejectsDuplicateWhileInFlight(t *testing.T) {
	h := newHarness()
	h.mount(t)
	h.mut.block = make(chan struct{})
	_ = h.ctrl.OpenCreate()

	done := make(chan error)
	go func() { done <- h.ctrl.Submit(context.Background(), Payload{}) }()

	deadline := time.Now().Add(2 * time.Second)
	for !h.ctrl.Snapshot().Submitting {
		if time.Now().After(deadline) {
			t.Fatal("submit never started")
		}
		time.Sleep(time.Millisecond)
	}
	if err := h.ctrl.Submit(context.Background(), Payload{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Submit error = %v, want ErrBusy", err)
	}
	if err := h.ctrl.CloseDialog(); !errors.Is(err, ErrBusy) {
		t.Fatalf("CloseDialog during submit = %v, want ErrBusy", err)
	}
	close(h.mut.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if h.mut.count() != 1 {
		t.Fatalf("mutations = %d, want 1", h.mut.count())
	}
}

func TestSubmit_WithoutDialog(t *testing.T) {
	h := newHarness()
	h.mount(t)
	if err := h.ctrl.Submit(context.Background(), Payload{}); !errors.Is(err, ErrNoDialog) {
		t.Fatalf("Submit without dialog = %v", err)
	}
	if err := h.ctrl.ConfirmDelete(context.Background()); !errors.Is(err, ErrNoDialog) {
		t.Fatalf("ConfirmDelete without dialog = %v", err)
	}
	if err := h.ctrl.OpenEdit("99"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("OpenEdit unknown id = %v", err)
	}
}

func TestDelete_RequiresConfirmation(t *testing.T) {
	h := newHarness()
	h.mount(t)

	if err := h.ctrl.OpenDelete("2"); err != nil {
		t.Fatal(err)
	}
	s := h.ctrl.Snapshot()
	if s.Dialog != DialogDelete || s.DeleteWarning != DefaultDeleteWarning {
		t.Fatalf("delete dialog state = %+v", s)
	}
	if err := h.ctrl.CloseDialog(); err != nil {
		t.Fatal(err)
	}
	if h.mut.count() != 0 {
		t.Fatal("cancelling the confirmation must not call the backend")
	}
	if h.ctrl.Snapshot().Dialog != DialogNone || len(h.src.listCalls()) != 1 {
		t.Fatal("cancel must only close the dialog")
	}

	_ = h.ctrl.OpenDelete("2")
	if err := h.ctrl.ConfirmDelete(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.mut.count() != 1 || h.mut.calls[0].op != OpDelete || h.mut.calls[0].id != "2" {
		t.Fatalf("delete calls = %+v", h.mut.calls)
	}
	if got := h.src.listCalls(); !reflect.DeepEqual(got, []int{1, 1}) {
		t.Fatalf("delete should resync once, calls = %v", got)
	}
	s = h.ctrl.Snapshot()
	if s.Dialog != DialogNone || s.Deleting {
		t.Fatalf("dialog should be closed after delete: %+v", s)
	}
}

func TestHooks_ObserveFetchAndMutation(t *testing.T) {
	h := newHarness()
	var fetches, mutations int
	var lastOp Op
	h.ctrl.cfg.Hooks.OnFetch = func(resource string, mode Mode, err error) {
		if resource != "expenses" {
			t.Errorf("resource = %q", resource)
		}
		fetches++
	}
	h.ctrl.cfg.Hooks.OnMutation = func(ctx context.Context, resource string, op Op, id string, err error) {
		mutations++
		lastOp = op
	}
	h.mount(t)
	_ = h.ctrl.OpenDelete("1")
	_ = h.ctrl.ConfirmDelete(context.Background())

	if fetches != 2 || mutations != 1 || lastOp != OpDelete {
		t.Fatalf("fetches=%d mutations=%d op=%s", fetches, mutations, lastOp)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	h := newHarness()
	h.mount(t)
	s := h.ctrl.Snapshot()
	s.Items[0].Name = "changed"
	s.Links[0].Label = "changed"
	if h.ctrl.Snapshot().Items[0].Name == "changed" || h.ctrl.Snapshot().Links[0].Label == "changed" {
		t.Fatal("Snapshot must not alias controller state")
	}
}

func TestChainHooks(t *testing.T) {
	var order []string
	a := Hooks{OnStale: func(string) { order = append(order, "a") }}
	b := Hooks{
		OnStale:    func(string) { order = append(order, "b") },
		OnMutation: func(context.Context, string, Op, string, error) { order = append(order, "b-mut") },
	}
	h := ChainHooks(a, b)
	h.OnStale("x")
	h.OnFetch("x", Paged, nil)
	h.OnMutation(context.Background(), "x", OpCreate, "", nil)
	if !reflect.DeepEqual(order, []string{"a", "b", "b-mut"}) {
		t.Fatalf("order = %v", order)
	}
}
