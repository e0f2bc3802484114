package listing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gestionale/internal/log"
	"gestionale/internal/notify"
)

// Notifier receives user-visible notices.
type Notifier interface {
	Notify(n notify.Notice)
}

// Config wires a Controller to its collaborators.
type Config[T any] struct {
	// Resource names the screen in logs, metrics and activity events.
	Resource string
	Source   Source[T]
	Mutator  Mutator
	// ID returns the backend identifier of a record.
	ID       func(T) string
	Notifier Notifier
	// OnUnauthorized tears the session down when the backend answers 401.
	OnUnauthorized func()
	Hooks          Hooks
	Logger         *log.Logger
	DeleteWarning  string
}

// Controller is the state machine behind one resource screen. Listing
// requests carry a sequence number; only the response to the most
// recently issued request is applied.
type Controller[T any] struct {
	cfg Config[T]

	mu    sync.Mutex
	state State[T]
	seq   uint64
}

// New returns a controller in its pre-mount state.
func New[T any](cfg Config[T]) *Controller[T] {
	if cfg.Logger == nil {
		cfg.Logger = log.FromContext(context.Background())
	}
	cfg.Logger = cfg.Logger.WithComponent(log.ComponentListing)
	if cfg.DeleteWarning == "" {
		cfg.DeleteWarning = DefaultDeleteWarning
	}
	c := &Controller[T]{cfg: cfg}
	c.state = c.initialState()
	return c
}

func (c *Controller[T]) initialState() State[T] {
	return State[T]{
		CurrentPage:   1,
		Mode:          Paged,
		DeleteWarning: c.cfg.DeleteWarning,
	}
}

// Resource returns the configured resource name.
func (c *Controller[T]) Resource() string { return c.cfg.Resource }

// Snapshot returns a copy of the current state.
func (c *Controller[T]) Snapshot() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Items = append([]T(nil), c.state.Items...)
	s.Links = append([]PageLink(nil), c.state.Links...)
	if c.state.Selected != nil {
		sel := *c.state.Selected
		s.Selected = &sel
	}
	if c.state.FieldErrors != nil {
		s.FieldErrors = make(map[string][]string, len(c.state.FieldErrors))
		for k, v := range c.state.FieldErrors {
			s.FieldErrors[k] = append([]string(nil), v...)
		}
	}
	return s
}

// Mount resets the screen and loads page 1.
func (c *Controller[T]) Mount(ctx context.Context) error {
	c.mu.Lock()
	c.state = c.initialState()
	c.mu.Unlock()
	return c.fetch(ctx)
}

// Reload re-fetches the current mode and page.
func (c *Controller[T]) Reload(ctx context.Context) error {
	return c.fetch(ctx)
}

// SetPage switches to paged mode at page and fetches it.
func (c *Controller[T]) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		return fmt.Errorf("invalid page %d", page)
	}
	c.mu.Lock()
	c.state.Mode = Paged
	c.state.Query = ""
	c.state.CurrentPage = page
	c.mu.Unlock()
	return c.fetch(ctx)
}

// FollowLink moves to the page a pagination link points at. Disabled
// links are ignored and reported as not followed.
func (c *Controller[T]) FollowLink(ctx context.Context, link PageLink) (bool, error) {
	if link.Disabled() {
		return false, nil
	}
	page, err := PageFromURL(*link.URL)
	if err != nil {
		c.cfg.Logger.WarnContext(ctx, "Ignoring malformed page link",
			log.FieldResource, c.cfg.Resource, log.FieldError, err)
		return false, err
	}
	return true, c.SetPage(ctx, page)
}

// Search switches to queried mode. Blank queries are ignored and leave
// the state untouched.
func (c *Controller[T]) Search(ctx context.Context, query string) (bool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return false, nil
	}
	c.mu.Lock()
	c.state.Mode = Queried
	c.state.Query = query
	c.state.Links = nil
	c.mu.Unlock()
	return true, c.fetch(ctx)
}

// ClearSearch restores paged mode at page 1 with no query.
func (c *Controller[T]) ClearSearch(ctx context.Context) error {
	c.mu.Lock()
	c.state.Mode = Paged
	c.state.Query = ""
	c.state.CurrentPage = 1
	c.mu.Unlock()
	return c.fetch(ctx)
}

func (c *Controller[T]) fetch(ctx context.Context) error {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	mode, page, query := c.state.Mode, c.state.CurrentPage, c.state.Query
	c.state.Loading = true
	c.mu.Unlock()

	logger := c.cfg.Logger.With(log.NewFields().
		WithListing(c.cfg.Resource, mode.String(), page, query, seq).ToSlice()...)

	var (
		items []T
		links []PageLink
		err   error
	)
	if mode == Paged {
		var p Page[T]
		p, err = c.cfg.Source.List(ctx, page)
		items, links = p.Items, p.Links
	} else {
		items, err = c.cfg.Source.Search(ctx, query)
	}

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		logger.DebugContext(ctx, "Discarding superseded listing response")
		if c.cfg.Hooks.OnStale != nil {
			c.cfg.Hooks.OnStale(c.cfg.Resource)
		}
		return nil
	}
	c.state.Loading = false
	if err == nil {
		if items == nil {
			items = []T{}
		}
		c.state.Items = items
		if mode == Paged {
			c.state.Links = links
		} else {
			c.state.Links = nil
		}
		c.state.Err = ""
		c.state.Loaded = true
	} else if !IsUnauthorized(err) {
		// Previous items stay on screen.
		c.state.Err = userMessage(err, msgListFailed)
	}
	banner := c.state.Err
	c.mu.Unlock()

	if c.cfg.Hooks.OnFetch != nil {
		c.cfg.Hooks.OnFetch(c.cfg.Resource, mode, err)
	}
	if err == nil {
		logger.DebugContext(ctx, "Listing loaded", log.FieldCount, len(items))
		return nil
	}
	if IsUnauthorized(err) {
		return c.unauthorized(ctx, err)
	}
	logger.WarnContext(ctx, "Listing request failed", log.FieldError, err)
	c.notify(notify.Error, banner)
	return err
}

// OpenCreate opens the create dialog.
func (c *Controller[T]) OpenCreate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy() {
		return ErrBusy
	}
	c.openDialog(DialogCreate, nil)
	return nil
}

// OpenEdit opens the edit dialog for the listed record with id.
func (c *Controller[T]) OpenEdit(id string) error {
	return c.openFor(DialogEdit, id)
}

// OpenDelete opens the delete confirmation for the listed record with id.
// Nothing is sent to the backend until ConfirmDelete.
func (c *Controller[T]) OpenDelete(id string) error {
	return c.openFor(DialogDelete, id)
}

func (c *Controller[T]) openFor(kind DialogKind, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy() {
		return ErrBusy
	}
	for i := range c.state.Items {
		if c.cfg.ID(c.state.Items[i]) == id {
			rec := c.state.Items[i]
			c.openDialog(kind, &rec)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
}

func (c *Controller[T]) openDialog(kind DialogKind, rec *T) {
	c.state.Dialog = kind
	c.state.Selected = rec
	c.state.FieldErrors = nil
}

// CloseDialog cancels the open dialog without touching the list.
func (c *Controller[T]) CloseDialog() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy() {
		return ErrBusy
	}
	c.openDialog(DialogNone, nil)
	return nil
}

func (c *Controller[T]) busy() bool {
	return c.state.Submitting || c.state.Deleting
}

// Submit sends the create or edit dialog. On success the dialog closes, a
// success notice is emitted and the listing is fetched once more. On
// failure the dialog stays open with the backend messages as notices.
func (c *Controller[T]) Submit(ctx context.Context, p Payload) error {
	c.mu.Lock()
	kind := c.state.Dialog
	if kind != DialogCreate && kind != DialogEdit {
		c.mu.Unlock()
		return ErrNoDialog
	}
	if c.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	var id string
	if kind == DialogEdit {
		if c.state.Selected == nil {
			c.mu.Unlock()
			return ErrNoDialog
		}
		id = c.cfg.ID(*c.state.Selected)
	}
	c.state.Submitting = true
	c.state.FieldErrors = nil
	c.mu.Unlock()

	var (
		res Result
		err error
		op  = OpCreate
	)
	if kind == DialogEdit {
		op = OpUpdate
		res, err = c.cfg.Mutator.Update(ctx, id, p)
	} else {
		res, err = c.cfg.Mutator.Create(ctx, p)
		id = res.ID
	}

	c.mu.Lock()
	c.state.Submitting = false
	c.mu.Unlock()

	return c.finishMutation(ctx, op, id, res, err, msgMutationSaved)
}

// ConfirmDelete deletes the record selected by OpenDelete.
func (c *Controller[T]) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Dialog != DialogDelete || c.state.Selected == nil {
		c.mu.Unlock()
		return ErrNoDialog
	}
	if c.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	id := c.cfg.ID(*c.state.Selected)
	c.state.Deleting = true
	c.mu.Unlock()

	res, err := c.cfg.Mutator.Delete(ctx, id)

	c.mu.Lock()
	c.state.Deleting = false
	c.mu.Unlock()

	return c.finishMutation(ctx, OpDelete, id, res, err, msgDeleted)
}

func (c *Controller[T]) finishMutation(ctx context.Context, op Op, id string, res Result, err error, okMsg string) error {
	if c.cfg.Hooks.OnMutation != nil {
		c.cfg.Hooks.OnMutation(ctx, c.cfg.Resource, op, id, err)
	}
	logger := c.cfg.Logger.With(log.FieldResource, c.cfg.Resource, log.FieldOperation, string(op), log.FieldRecordID, id)

	if err != nil {
		if IsUnauthorized(err) {
			return c.unauthorized(ctx, err)
		}
		logger.WarnContext(ctx, "Mutation failed", log.FieldError, err)
		if fields := fieldMessages(err); len(fields) > 0 {
			c.mu.Lock()
			c.state.FieldErrors = fields
			c.mu.Unlock()
			for _, msg := range flattenFieldMessages(fields) {
				c.notify(notify.Error, msg)
			}
			return err
		}
		c.notify(notify.Error, userMessage(err, msgMutationError))
		return err
	}

	logger.InfoContext(ctx, "Mutation succeeded")
	c.mu.Lock()
	c.openDialog(DialogNone, nil)
	c.mu.Unlock()

	msg := res.Message
	if msg == "" {
		msg = okMsg
	}
	c.notify(notify.Success, msg)
	// A failed resync is reported by fetch itself.
	if ferr := c.fetch(ctx); IsUnauthorized(ferr) {
		return ferr
	}
	return nil
}

func (c *Controller[T]) unauthorized(ctx context.Context, err error) error {
	c.cfg.Logger.InfoContext(ctx, "Backend rejected session, tearing down",
		log.FieldResource, c.cfg.Resource, log.FieldError, err)
	if c.cfg.OnUnauthorized != nil {
		c.cfg.OnUnauthorized()
	}
	if errors.Is(err, ErrUnauthorized) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnauthorized, err)
}

func (c *Controller[T]) notify(sev notify.Severity, msg string) {
	if c.cfg.Notifier == nil || msg == "" {
		return
	}
	c.cfg.Notifier.Notify(notify.Notice{Message: msg, Severity: sev})
}

// flattenFieldMessages orders messages by field name so notices are stable.
func flattenFieldMessages(fields map[string][]string) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		for _, m := range fields[k] {
			if m = strings.TrimSpace(m); m != "" {
				out = append(out, m)
			}
		}
	}
	return out
}
