package http

import (
	"sync"
	"sync/atomic"
	"time"

	"gestionale/internal/api"
	"gestionale/internal/auth"
	"gestionale/internal/menu"
	"gestionale/internal/notify"
	"gestionale/internal/screens"
)

// Workspace is the server-side state of one signed-in browser session:
// the session itself, its sidebar, its pending notices and the screens it
// visited. Screens are created on first use and dropped with the
// workspace at logout or expiry.
type Workspace struct {
	Session *auth.Session
	Client  *api.Client
	Sidebar *menu.Sidebar
	Notices *notify.Queue

	newScreen func(ws *Workspace, def screens.Definition) screens.Screen

	mu      sync.Mutex
	screens map[string]screens.Screen
	expired atomic.Bool
}

// Screen returns the workspace's screen for def, creating it on first use.
func (ws *Workspace) Screen(def screens.Definition) screens.Screen {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if sc, ok := ws.screens[def.Name()]; ok {
		return sc
	}
	sc := ws.newScreen(ws, def)
	ws.screens[def.Name()] = sc
	return sc
}

// Expire marks the workspace unusable; the backend no longer accepts its
// token.
func (ws *Workspace) Expire() { ws.expired.Store(true) }

// Expired reports whether the workspace must be torn down.
func (ws *Workspace) Expired(now time.Time) bool {
	return ws.expired.Load() || ws.Session.Expired(now)
}

// Authz is the permission set of the session.
func (ws *Workspace) Authz() auth.Authorizer { return ws.Session.Permissions() }

// workspaces indexes live workspaces by session id.
type workspaces struct {
	mu sync.Mutex
	m  map[string]*Workspace
}

func newWorkspaces() *workspaces {
	return &workspaces{m: make(map[string]*Workspace)}
}

func (w *workspaces) get(id string) (*Workspace, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ws, ok := w.m[id]
	return ws, ok
}

// put stores ws unless another goroutine already did; the stored one wins.
func (w *workspaces) put(ws *Workspace) (*Workspace, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.m[ws.Session.ID]; ok {
		return existing, false
	}
	w.m[ws.Session.ID] = ws
	return ws, true
}

func (w *workspaces) remove(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.m[id]; !ok {
		return false
	}
	delete(w.m, id)
	return true
}

// expired removes and returns every workspace past its session expiry.
func (w *workspaces) expired(now time.Time) []*Workspace {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*Workspace
	for id, ws := range w.m {
		if ws.Expired(now) {
			delete(w.m, id)
			out = append(out, ws)
		}
	}
	return out
}

func (w *workspaces) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.m)
}
