package auth

import (
	"time"

	"gestionale/internal/core"
)

// Session is the authenticated identity of one browser. It is created at
// login, persisted by a session store and handed explicitly to every
// component that needs the user, the bearer token or a capability check.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	User      core.User `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	perms PermissionSet
}

// NewSession builds a session and computes its permission set once.
func NewSession(id, token string, user core.User, ttl time.Duration, superAdminRole string) *Session {
	now := time.Now()
	s := &Session{
		ID:        id,
		Token:     token,
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.Authorize(superAdminRole)
	return s
}

// Authorize recomputes the permission set, e.g. after loading the session
// back from a store.
func (s *Session) Authorize(superAdminRole string) {
	s.perms = NewPermissionSet(s.User, superAdminRole)
}

// Permissions returns the capability set computed by Authorize.
func (s *Session) Permissions() PermissionSet { return s.perms }

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
