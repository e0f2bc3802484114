package listing

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

var (
	// ErrBusy is returned when a submit or delete is already in flight.
	ErrBusy = errors.New("listing: operation already in progress")
	// ErrNoDialog is returned when the action needs a dialog that is not open.
	ErrNoDialog = errors.New("listing: no matching dialog open")
	// ErrRecordNotFound is returned when an id is not in the current list.
	ErrRecordNotFound = errors.New("listing: record not in current list")
	// ErrUnauthorized is returned after the session was torn down.
	ErrUnauthorized = errors.New("listing: unauthorized")
)

// Backend errors are recognised through these behaviours so the controller
// does not depend on a particular client.
type (
	unauthorizer interface{ Unauthorized() bool }
	fieldErrorer interface {
		FieldErrors() map[string][]string
	}
	userMessager interface{ UserMessage() string }
)

const (
	msgNetwork       = "Server not responding. Please try again later."
	msgListFailed    = "Unable to load records."
	msgMutationSaved = "Saved successfully."
	msgDeleted       = "Deleted successfully."
	msgMutationError = "Something went wrong. Please try again."

	DefaultDeleteWarning = "Are you sure you want to delete this record? This action cannot be undone."
)

// IsUnauthorized reports whether err signals an expired or missing session.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var u unauthorizer
	return errors.As(err, &u) && u.Unauthorized()
}

// fieldMessages returns the per-field validation messages carried by err.
func fieldMessages(err error) map[string][]string {
	var fe fieldErrorer
	if errors.As(err, &fe) {
		return fe.FieldErrors()
	}
	return nil
}

// userMessage picks the message shown for err, or fallback.
func userMessage(err error, fallback string) string {
	var um userMessager
	if errors.As(err, &um) {
		if m := um.UserMessage(); m != "" {
			return m
		}
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return msgNetwork
	}
	return fallback
}

// PageFromURL extracts the page number from a pagination link URL. A URL
// without a page parameter points at page 1.
func PageFromURL(raw string) (int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("parse page link %q: %w", raw, err)
	}
	v := u.Query().Get("page")
	if v == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(v)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("invalid page %q in link %q", v, raw)
	}
	return page, nil
}
