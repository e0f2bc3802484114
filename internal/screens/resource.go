// Package screens describes the console's resource screens: which backend
// endpoint each one lists, the columns of its table, the fields of its
// dialogs and the permissions that gate them. A Screen binds one
// description to a listing controller for one session.
package screens

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"

	"gestionale/internal/api"
	"gestionale/internal/auth"
	"gestionale/internal/core"
	"gestionale/internal/listing"
	"gestionale/internal/log"
)

// FieldKind selects the input rendered for a dialog field.
type FieldKind string

const (
	Text        FieldKind = "text"
	Textarea    FieldKind = "textarea"
	Number      FieldKind = "number"
	Amount      FieldKind = "amount"
	Date        FieldKind = "date"
	Month       FieldKind = "month"
	Select      FieldKind = "select"
	MultiSelect FieldKind = "multiselect"
	File        FieldKind = "file"
)

// Field is one input of the create/edit dialog.
type Field struct {
	Name     string
	Label    string
	Kind     FieldKind
	Required bool
	// OptionsEndpoint is the backend resource whose /all list feeds a select.
	OptionsEndpoint string
	// Choices is a fixed option list for selects without an endpoint.
	Choices []core.Option
	// Accept restricts file inputs, e.g. "image/*".
	Accept string
}

// Perms names the permission gating each action.
type Perms struct {
	List   string
	Create string
	Edit   string
	Delete string
}

// Column is one table column.
type Column[T any] struct {
	Header string
	Value  func(T) string
}

// Resource describes the screen of records of type T.
type Resource[T any] struct {
	Slug     string
	Label    string
	Path     string // backend endpoint
	Perm     Perms
	Columns  []Column[T]
	Inputs   []Field
	ID       func(T) string
	Describe func(T) string
	// Values prefills the edit dialog.
	Values func(T) url.Values
}

// Definition is the type-erased view of a Resource.
type Definition interface {
	Name() string
	Title() string
	Endpoint() string
	Permissions() Perms
	Fields() []Field
	OptionEndpoints() []string
	NewScreen(d Deps) Screen
}

func (r *Resource[T]) Name() string       { return r.Slug }
func (r *Resource[T]) Title() string      { return r.Label }
func (r *Resource[T]) Endpoint() string   { return r.Path }
func (r *Resource[T]) Permissions() Perms { return r.Perm }
func (r *Resource[T]) Fields() []Field    { return r.Inputs }

// OptionEndpoints lists the endpoints the dialog selects read from.
func (r *Resource[T]) OptionEndpoints() []string {
	var out []string
	for _, f := range r.Inputs {
		if f.OptionsEndpoint != "" {
			out = append(out, f.OptionsEndpoint)
		}
	}
	return out
}

// Deps are the per-session collaborators of a screen.
type Deps struct {
	Client         *api.Client
	Notifier       listing.Notifier
	OnUnauthorized func()
	Hooks          listing.Hooks
	Logger         *log.Logger
}

// NewScreen binds r to a controller reading through d.Client.
func (r *Resource[T]) NewScreen(d Deps) Screen {
	res := api.NewResource[T](d.Client, r.Path)
	return &screen[T]{
		def: r,
		ctrl: listing.New(listing.Config[T]{
			Resource:       r.Slug,
			Source:         res,
			Mutator:        res,
			ID:             r.ID,
			Notifier:       d.Notifier,
			OnUnauthorized: d.OnUnauthorized,
			Hooks:          d.Hooks,
			Logger:         d.Logger,
		}),
	}
}

// Screen is a resource screen of one session.
type Screen interface {
	Definition() Definition
	Mount(ctx context.Context) error
	Reload(ctx context.Context) error
	// FollowLinkAt follows the i-th pagination link of the current view.
	FollowLinkAt(ctx context.Context, i int) (bool, error)
	Search(ctx context.Context, query string) (bool, error)
	ClearSearch(ctx context.Context) error
	OpenCreate() error
	OpenEdit(id string) error
	OpenDelete(id string) error
	CloseDialog() error
	Submit(ctx context.Context, p listing.Payload) error
	ConfirmDelete(ctx context.Context) error
	Loaded() bool
	View(authz auth.Authorizer, options map[string][]core.Option) View
	// Table returns the rows currently shown, as text.
	Table() (headers []string, rows [][]string)
}

type screen[T any] struct {
	def  *Resource[T]
	ctrl *listing.Controller[T]

	mu      sync.Mutex
	mounted bool
	// draft keeps the values of a rejected submit for the reopened form.
	draft url.Values
}

func (s *screen[T]) Definition() Definition { return s.def }

func (s *screen[T]) Mount(ctx context.Context) error {
	s.mu.Lock()
	s.mounted = true
	s.draft = nil
	s.mu.Unlock()
	return s.ctrl.Mount(ctx)
}

func (s *screen[T]) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

func (s *screen[T]) Reload(ctx context.Context) error { return s.ctrl.Reload(ctx) }

func (s *screen[T]) FollowLinkAt(ctx context.Context, i int) (bool, error) {
	links := s.ctrl.Snapshot().Links
	if i < 0 || i >= len(links) {
		return false, fmt.Errorf("pagination link %d out of range", i)
	}
	return s.ctrl.FollowLink(ctx, links[i])
}

func (s *screen[T]) Search(ctx context.Context, q string) (bool, error) {
	return s.ctrl.Search(ctx, q)
}

func (s *screen[T]) ClearSearch(ctx context.Context) error { return s.ctrl.ClearSearch(ctx) }

func (s *screen[T]) clearDraft() {
	s.mu.Lock()
	s.draft = nil
	s.mu.Unlock()
}

func (s *screen[T]) OpenCreate() error {
	s.clearDraft()
	return s.ctrl.OpenCreate()
}

func (s *screen[T]) OpenEdit(id string) error {
	s.clearDraft()
	return s.ctrl.OpenEdit(id)
}

func (s *screen[T]) OpenDelete(id string) error { return s.ctrl.OpenDelete(id) }

func (s *screen[T]) CloseDialog() error {
	if err := s.ctrl.CloseDialog(); err != nil {
		return err
	}
	s.clearDraft()
	return nil
}

func (s *screen[T]) Submit(ctx context.Context, p listing.Payload) error {
	err := s.ctrl.Submit(ctx, p)
	s.mu.Lock()
	if err != nil && s.ctrl.Snapshot().Dialog != listing.DialogNone {
		s.draft = p.Fields
	} else {
		s.draft = nil
	}
	s.mu.Unlock()
	return err
}

func (s *screen[T]) ConfirmDelete(ctx context.Context) error { return s.ctrl.ConfirmDelete(ctx) }

func (s *screen[T]) Table() ([]string, [][]string) {
	st := s.ctrl.Snapshot()
	headers := make([]string, len(s.def.Columns))
	for i, c := range s.def.Columns {
		headers[i] = c.Header
	}
	rows := make([][]string, 0, len(st.Items))
	for _, item := range st.Items {
		rows = append(rows, s.cells(item))
	}
	return headers, rows
}

func (s *screen[T]) cells(item T) []string {
	out := make([]string, len(s.def.Columns))
	for i, c := range s.def.Columns {
		out[i] = c.Value(item)
	}
	return out
}

// View is the render model of a screen.
type View struct {
	Name    string
	Title   string
	Headers []string
	Rows    []Row
	Links   []Link

	CurrentPage int
	Queried     bool
	Query       string
	Loading     bool
	Loaded      bool
	Empty       bool
	Err         string

	Dialog        string
	Form          []FormField
	SelectedID    string
	SelectedLabel string
	DeleteWarning string
	Submitting    bool
	Deleting      bool

	CanCreate bool
	CanEdit   bool
	CanDelete bool
}

// Row is one table row.
type Row struct {
	ID    string
	Cells []string
}

// Link is a pagination link with its position in the link list. Label
// is plain text; backends send entities such as "&laquo; Previous".
type Link struct {
	Index    int
	Label    string
	Active   bool
	Disabled bool
}

// FormField is a dialog field with its current value and errors.
type FormField struct {
	Field
	Value   string
	Values  []string
	Errors  []string
	Options []core.Option
}

// Selected reports whether opt is among the field's values.
func (f FormField) Selected(opt core.Option) bool {
	id := fmt.Sprint(opt.ID)
	if f.Value == id {
		return true
	}
	for _, v := range f.Values {
		if v == id {
			return true
		}
	}
	return false
}

func (s *screen[T]) View(authz auth.Authorizer, options map[string][]core.Option) View {
	if authz == nil {
		authz = auth.Deny{}
	}
	st := s.ctrl.Snapshot()
	v := View{
		Name:          s.def.Slug,
		Title:         s.def.Label,
		CurrentPage:   st.CurrentPage,
		Queried:       st.Mode == listing.Queried,
		Query:         st.Query,
		Loading:       st.Loading,
		Loaded:        st.Loaded,
		Empty:         st.Empty(),
		Err:           st.Err,
		DeleteWarning: st.DeleteWarning,
		Submitting:    st.Submitting,
		Deleting:      st.Deleting,
		CanCreate:     authz.Has(s.def.Perm.Create),
		CanEdit:       authz.Has(s.def.Perm.Edit),
		CanDelete:     authz.Has(s.def.Perm.Delete),
	}
	for _, c := range s.def.Columns {
		v.Headers = append(v.Headers, c.Header)
	}
	for _, item := range st.Items {
		v.Rows = append(v.Rows, Row{ID: s.def.ID(item), Cells: s.cells(item)})
	}
	for i, l := range st.Links {
		v.Links = append(v.Links, Link{Index: i, Label: html.UnescapeString(l.Label), Active: l.Active, Disabled: l.Disabled()})
	}
	if st.Dialog == listing.DialogNone {
		return v
	}
	v.Dialog = st.Dialog.String()
	if st.Selected != nil {
		v.SelectedID = s.def.ID(*st.Selected)
		if s.def.Describe != nil {
			v.SelectedLabel = s.def.Describe(*st.Selected)
		}
	}
	if st.Dialog == listing.DialogDelete {
		return v
	}

	var values url.Values
	s.mu.Lock()
	draft := s.draft
	s.mu.Unlock()
	switch {
	case draft != nil:
		values = draft
	case st.Dialog == listing.DialogEdit && st.Selected != nil && s.def.Values != nil:
		values = s.def.Values(*st.Selected)
	default:
		values = url.Values{}
	}
	for _, f := range s.def.Inputs {
		ff := FormField{Field: f, Errors: st.FieldErrors[f.Name]}
		if f.Kind == MultiSelect {
			ff.Values = values[f.Name]
		} else if f.Kind != File {
			ff.Value = values.Get(f.Name)
		}
		switch {
		case f.OptionsEndpoint != "":
			ff.Options = options[f.OptionsEndpoint]
		case len(f.Choices) > 0:
			ff.Options = f.Choices
		}
		v.Form = append(v.Form, ff)
	}
	return v
}

// BuildPayload keeps the declared fields of values and files. Amounts are
// normalised to dot decimals; unparsable ones are sent as typed so the
// backend reports them.
func BuildPayload(fields []Field, values url.Values, files []listing.File) listing.Payload {
	p := listing.Payload{Fields: url.Values{}}
	for _, f := range fields {
		if f.Kind == File {
			for _, file := range files {
				if file.Field == f.Name && len(file.Content) > 0 {
					p.Files = append(p.Files, file)
				}
			}
			continue
		}
		vs, ok := values[f.Name]
		if !ok {
			continue
		}
		for _, v := range vs {
			v = strings.TrimSpace(v)
			if f.Kind == Amount {
				if norm, err := core.NormalizeAmount(v); err == nil {
					v = norm
				}
			}
			p.Fields.Add(f.Name, v)
		}
	}
	return p
}
