package api

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
)

type unauthorizedError struct{}

func (unauthorizedError) Error() string      { return "api: unauthorized" }
func (unauthorizedError) Unauthorized() bool { return true }

// ErrUnauthorized is returned for every 401 response. The session that
// issued the request is no longer valid.
var ErrUnauthorized error = unauthorizedError{}

// ValidationError is a 4xx response carrying a field-keyed error map.
type ValidationError struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("api: validation failed (%d): %s", e.Status, strings.Join(keys, ", "))
}

// FieldErrors returns the messages per form field.
func (e *ValidationError) FieldErrors() map[string][]string { return e.Fields }

// UserMessage returns the backend summary message.
func (e *ValidationError) UserMessage() string { return e.Message }

// APIError is a non-2xx response carrying at most a single message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

func (e *APIError) UserMessage() string { return e.Message }

// NetworkError means the backend produced no response at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("api: %s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the underlying failure was a timeout. Its presence
// marks the error as a connectivity failure.
func (e *NetworkError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// IsNetwork reports whether err is a connectivity failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
