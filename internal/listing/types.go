// Package listing implements the interaction contract shared by every
// resource screen: paged or searched listing, pagination links, and the
// create/edit/delete dialogs with their notices.
package listing

import (
	"context"
	"net/url"
)

// Mode selects where the listing comes from.
type Mode int

const (
	// Paged lists one backend page and exposes its pagination links.
	Paged Mode = iota
	// Queried lists the free-text search result; no pagination.
	Queried
)

func (m Mode) String() string {
	if m == Queried {
		return "queried"
	}
	return "paged"
}

// DialogKind identifies the open dialog of a screen.
type DialogKind int

const (
	DialogNone DialogKind = iota
	DialogCreate
	DialogEdit
	DialogDelete
)

func (d DialogKind) String() string {
	switch d {
	case DialogCreate:
		return "create"
	case DialogEdit:
		return "edit"
	case DialogDelete:
		return "delete"
	default:
		return "none"
	}
}

// PageLink is a pagination control exactly as the backend returns it.
type PageLink struct {
	Label  string  `json:"label"`
	URL    *string `json:"url"`
	Active bool    `json:"active"`
}

// Disabled reports whether following the link is a no-op.
func (l PageLink) Disabled() bool { return l.URL == nil || l.Active }

// Page is one page of a paged listing.
type Page[T any] struct {
	Items []T
	Links []PageLink
}

// Source reads a resource listing.
type Source[T any] interface {
	List(ctx context.Context, page int) (Page[T], error)
	Search(ctx context.Context, query string) ([]T, error)
}

// File is an uploaded file carried by a create/update payload.
type File struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

// Payload is the form submitted by a create or edit dialog.
type Payload struct {
	Fields url.Values
	Files  []File
}

// HasFiles reports whether the payload must travel as multipart.
func (p Payload) HasFiles() bool { return len(p.Files) > 0 }

// Result is the backend acknowledgement of a mutation.
type Result struct {
	Message string
	ID      string
}

// Mutator runs create, update and delete against the backend.
type Mutator interface {
	Create(ctx context.Context, p Payload) (Result, error)
	Update(ctx context.Context, id string, p Payload) (Result, error)
	Delete(ctx context.Context, id string) (Result, error)
}

// Op names a mutation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Hooks observe controller activity. All fields are optional.
type Hooks struct {
	// OnFetch runs when the latest listing request completes.
	OnFetch func(resource string, mode Mode, err error)
	// OnStale runs when a superseded listing response is discarded.
	OnStale func(resource string)
	// OnMutation runs after every create/update/delete attempt.
	OnMutation func(ctx context.Context, resource string, op Op, id string, err error)
}

// State is a snapshot of a screen.
type State[T any] struct {
	Items       []T
	Links       []PageLink
	CurrentPage int
	Mode        Mode
	Query       string
	Loading     bool
	Loaded      bool
	Err         string

	Dialog        DialogKind
	Selected      *T
	Submitting    bool
	Deleting      bool
	FieldErrors   map[string][]string
	DeleteWarning string
}

// Empty reports whether the last successful listing returned no records.
func (s State[T]) Empty() bool {
	return s.Loaded && !s.Loading && len(s.Items) == 0
}

// ChainHooks runs each set of hooks in order.
func ChainHooks(hs ...Hooks) Hooks {
	return Hooks{
		OnFetch: func(resource string, mode Mode, err error) {
			for _, h := range hs {
				if h.OnFetch != nil {
					h.OnFetch(resource, mode, err)
				}
			}
		},
		OnStale: func(resource string) {
			for _, h := range hs {
				if h.OnStale != nil {
					h.OnStale(resource)
				}
			}
		},
		OnMutation: func(ctx context.Context, resource string, op Op, id string, err error) {
			for _, h := range hs {
				if h.OnMutation != nil {
					h.OnMutation(ctx, resource, op, id, err)
				}
			}
		},
	}
}
