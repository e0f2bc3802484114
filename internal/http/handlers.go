package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"gestionale/internal/activity"
	"gestionale/internal/auth"
	"gestionale/internal/backend"
	"gestionale/internal/core"
	"gestionale/internal/log"
	"gestionale/internal/menu"
	"gestionale/internal/notify"
	"gestionale/internal/screens"
)

// readyTimeout bounds all dependency probes of one readiness check.
const readyTimeout = 5 * time.Second

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady probes every configured dependency concurrently.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]any{"templates": "ok"}
	status, code := "ready", http.StatusOK

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, p := range s.cfg.Checks {
		wg.Add(1)
		go func(name string, p backend.Pinger) {
			defer wg.Done()
			result := "ok"
			if err := p.Ping(ctx); err != nil {
				result = "failed: " + err.Error()
			}
			mu.Lock()
			checks[name] = result
			if result != "ok" {
				status, code = "not_ready", http.StatusServiceUnavailable
			}
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}
	checks["workspaces"] = s.workspaces.len()

	if code != http.StatusOK {
		s.logger.WarnContext(r.Context(), "Readiness check failed", "checks", checks)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// pageData is the model shared by every full page.
type pageData struct {
	Title   string
	User    core.User
	Menu    menuData
	Notices []notify.Notice
	Content any
}

type menuData struct {
	Query   string
	Entries []menu.Entry
}

func (s *Server) page(ws *Workspace, title, activePath string, content any) pageData {
	return pageData{
		Title:   title,
		User:    ws.Session.User,
		Menu:    menuData{Query: ws.Sidebar.Query(), Entries: ws.Sidebar.Entries(activePath)},
		Notices: ws.Notices.Drain(),
		Content: content,
	}
}

type shortcut struct {
	Title string
	Path  string
}

type dashboardData struct {
	CanView   bool
	Role      string
	Shortcuts []shortcut
	Activity  []activity.Event
	// ActivityErr is set when the journal could not be read.
	ActivityErr string
}

const dashboardActivityLimit = 15

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, ws *Workspace) {
	authz := ws.Authz()
	data := dashboardData{
		CanView: authz.Has(auth.PermDashboardView),
		Role:    ws.Session.User.RoleName(),
	}
	for _, def := range s.cfg.Catalogue.All() {
		if authz.Has(def.Permissions().List) {
			data.Shortcuts = append(data.Shortcuts, shortcut{Title: def.Title(), Path: screens.ScreenPath(def.Name())})
		}
	}
	sort.Slice(data.Shortcuts, func(i, j int) bool { return data.Shortcuts[i].Title < data.Shortcuts[j].Title })

	if data.CanView && s.cfg.Activity != nil {
		events, err := s.cfg.Activity.RecentActivity(r.Context(), "", dashboardActivityLimit)
		if err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Activity journal unavailable", log.FieldError, err)
			data.ActivityErr = "Recent activity is unavailable."
		}
		data.Activity = events
	}

	s.renderPage(w, r, http.StatusOK, "dashboard.html", s.page(ws, "Dashboard", "/", data))
}
