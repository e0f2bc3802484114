package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"gestionale/internal/log"
	"gestionale/internal/notify"
)

var templateFuncs = template.FuncMap{
	"indent": func(depth int) int { return depth * 16 },
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("02/01/2006 15:04")
	},
	"join":  strings.Join,
	"upper": strings.ToUpper,
	"add":   func(a, b int) int { return a + b },
	"noticeMs": func(n notify.Notice) int { return n.DurationMs() },
}

func parseTemplates(fsys fs.FS) (*template.Template, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(fsys, "*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

// renderTemplate executes name into a buffer so a failing template never
// leaves a half-written page.
func (s *Server) renderTemplate(ctx context.Context, name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(ctx, "Template execution failed",
			log.FieldComponent, log.ComponentTemplate,
			"template", name,
			log.FieldError, err)
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderPage writes a full HTML page.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	body, err := s.renderTemplate(r.Context(), name, data)
	if err != nil {
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// renderFragment answers an htmx request with one or more partials and
// the notices queued while handling it.
func (s *Server) renderFragment(w http.ResponseWriter, r *http.Request, resp *HTMXResponseBuilder, notices []notify.Notice, parts ...fragment) {
	var body bytes.Buffer
	for _, p := range parts {
		out, err := s.renderTemplate(r.Context(), p.name, p.data)
		if err != nil {
			InternalServerError("Unable to render the page").Write(w)
			return
		}
		body.Write(out)
	}
	resp.TriggerNotices(notices).BodyHTML(body.Bytes()).Write(w)
}

type fragment struct {
	name string
	data any
}
