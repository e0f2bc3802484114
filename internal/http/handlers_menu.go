package http

import (
	"net/http"
	"net/url"
	"strings"
)

// maxMenuQuery bounds the sidebar search string.
const maxMenuQuery = 100

// activePath is the page the htmx request was issued from, so the
// re-rendered sidebar keeps highlighting it.
func activePath(r *http.Request) string {
	if cur := r.Header.Get("HX-Current-URL"); cur != "" {
		if u, err := url.Parse(cur); err == nil && u.Path != "" {
			return u.Path
		}
	}
	return r.URL.Query().Get("active")
}

func (s *Server) renderMenu(w http.ResponseWriter, r *http.Request, ws *Workspace) {
	data := menuData{Query: ws.Sidebar.Query(), Entries: ws.Sidebar.Entries(activePath(r))}
	s.renderFragment(w, r, NewHTMXResponse(), ws.Notices.Drain(), fragment{"menu_tree", data})
}

// handleMenu filters the sidebar by the search box contents.
func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request, ws *Workspace) {
	q := sanitizeInput(r.URL.Query().Get("q"))
	if len([]rune(q)) > maxMenuQuery {
		q = string([]rune(q)[:maxMenuQuery])
	}
	ws.Sidebar.SetQuery(q)
	s.renderMenu(w, r, ws)
}

func (s *Server) handleMenuToggle(w http.ResponseWriter, r *http.Request, ws *Workspace) {
	key := strings.TrimSpace(r.PathValue("key"))
	if key == "" {
		BadRequestError("Missing menu group").Write(w)
		return
	}
	ws.Sidebar.Toggle(key)
	s.renderMenu(w, r, ws)
}
