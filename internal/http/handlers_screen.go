package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gestionale/internal/core"
	"gestionale/internal/export"
	"gestionale/internal/listing"
	"gestionale/internal/log"
	"gestionale/internal/middleware/trace"
	"gestionale/internal/notify"
	"gestionale/internal/screens"
)

const (
	maxSearchQuery = 200

	msgForbidden      = "You do not have permission to perform this action."
	msgBusy           = "Another operation is still in progress."
	msgRecordMissing  = "The record is no longer in the list. Refresh and try again."
	msgNoDialog       = "No dialog is open."
	msgOptionsFailed  = "Unable to load the form options."
	msgUploadTooLarge = "The uploaded files are too large."
	msgInvalidForm    = "Invalid form data."
)

// screenPartial is the model of the listing and dialog partials. OOB
// renders the partial as an out-of-band swap.
type screenPartial struct {
	View screens.View
	OOB  bool
}

type errorData struct {
	Status    int
	Message   string
	RequestID string
}

type screenHandler func(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen)

// withScreen resolves the {resource} path value to the workspace's screen
// and enforces its list permission.
func (s *Server) withScreen(next screenHandler) http.HandlerFunc {
	return s.withWorkspace(func(w http.ResponseWriter, r *http.Request, ws *Workspace) {
		def, ok := s.cfg.Catalogue.Lookup(r.PathValue("resource"))
		if !ok {
			s.fail(w, r, ws, http.StatusNotFound, "Page not found.")
			return
		}
		if !ws.Authz().Has(def.Permissions().List) {
			s.forbidden(w, r, ws, def.Name())
			return
		}
		ctx := log.IntoContext(r.Context(), log.FromContext(r.Context()).With(log.FieldResource, def.Name()))
		next(w, r.WithContext(ctx), ws, def, ws.Screen(def))
	})
}

func (s *Server) forbidden(w http.ResponseWriter, r *http.Request, ws *Workspace, resource string) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Permission denied",
		log.FieldResource, resource,
		log.FieldPath, r.URL.Path,
		log.FieldUser, ws.Session.User.Email)
	s.fail(w, r, ws, http.StatusForbidden, msgForbidden)
}

// fail answers htmx requests with an error toast and full navigations
// with the error page.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, ws *Workspace, status int, msg string) {
	if isHTMX(r) {
		ErrorResponse(status, msg).TriggerErrorNotification(msg).Write(w)
		return
	}
	s.renderPage(w, r, status, "error.html", s.page(ws, http.StatusText(status), "", errorData{Status: status, Message: msg, RequestID: trace.GetRequestID(r.Context())}))
}

// requirePerm reports whether the session holds perm and answers 403 when
// it does not.
func (s *Server) requirePerm(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, perm string) bool {
	if ws.Authz().Has(perm) {
		return true
	}
	s.forbidden(w, r, ws, def.Name())
	return false
}

// ensureMounted loads the first page of a screen the workspace has not
// shown yet, e.g. after a server restart.
func (s *Server) ensureMounted(r *http.Request, sc screens.Screen) error {
	if sc.Loaded() {
		return nil
	}
	return sc.Mount(r.Context())
}

// dialogOptions loads the select options of an open create or edit dialog.
func (s *Server) dialogOptions(r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen) (map[string][]core.Option, error) {
	endpoints := def.OptionEndpoints()
	if len(endpoints) == 0 {
		return nil, nil
	}
	switch sc.View(ws.Authz(), nil).Dialog {
	case listing.DialogCreate.String(), listing.DialogEdit.String():
	default:
		return nil, nil
	}
	opts, err := s.cfg.Options.Load(r.Context(), ws.Client.Token(), ws.Client, endpoints)
	if err != nil {
		if !listing.IsUnauthorized(err) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Loading dialog options failed", log.FieldError, err)
			ws.Notices.Notify(notify.Notice{Message: msgOptionsFailed, Severity: notify.Error})
		}
		return nil, err
	}
	return opts, nil
}

// respond renders the listing and dialog regions of a screen. primary is
// swapped into the request's target; the other region goes out of band.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen, resp *HTMXResponseBuilder, primary string) {
	opts, err := s.dialogOptions(r, ws, def, sc)
	if s.expireIfNeeded(w, r, ws, err) {
		return
	}
	view := sc.View(ws.Authz(), opts)
	parts := []fragment{
		{"listing", screenPartial{View: view, OOB: primary != "listing"}},
		{"dialog", screenPartial{View: view, OOB: primary != "dialog"}},
	}
	if primary == "dialog" {
		parts[0], parts[1] = parts[1], parts[0]
	}
	s.renderFragment(w, r, resp, ws.Notices.Drain(), parts...)
}

// actionError turns a failed screen action into a notice. It reports
// whether the response was already written.
func (s *Server) actionError(w http.ResponseWriter, r *http.Request, ws *Workspace, err error) bool {
	if err == nil {
		return false
	}
	if s.expireIfNeeded(w, r, ws, err) {
		return true
	}
	switch {
	case errors.Is(err, listing.ErrBusy):
		ws.Notices.Notify(notify.Notice{Message: msgBusy, Severity: notify.Warning})
	case errors.Is(err, listing.ErrRecordNotFound):
		ws.Notices.Notify(notify.Notice{Message: msgRecordMissing, Severity: notify.Warning})
	case errors.Is(err, listing.ErrNoDialog):
		ws.Notices.Notify(notify.Notice{Message: msgNoDialog, Severity: notify.Warning})
	}
	// Backend failures were already turned into notices by the controller.
	return false
}

// handleScreenPage renders the full screen and always reloads page 1.
func (s *Server) handleScreenPage(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen) {
	if err := sc.Mount(r.Context()); s.expireIfNeeded(w, r, ws, err) {
		return
	}
	content := screenPartial{View: sc.View(ws.Authz(), nil)}
	s.renderPage(w, r, http.StatusOK, "screen.html", s.page(ws, def.Title(), screens.ScreenPath(def.Name()), content))
}

// handleList re-fetches the current page or search of the screen.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen) {
	var err error
	if sc.Loaded() {
		err = sc.Reload(r.Context())
	} else {
		err = sc.Mount(r.Context())
	}
	if s.actionError(w, r, ws, err) {
		return
	}
	s.respond(w, r, ws, def, sc, NewHTMXResponse(), "listing")
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen) {
	i, err := ParseLinkIndex(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := s.ensureMounted(r, sc); s.actionError(w, r, ws, err) {
		return
	}
	if _, err := sc.FollowLinkAt(r.Context(), i); s.actionError(w, r, ws, err) {
		return
	}
	s.respond(w, r, ws, def, sc, NewHTMXResponse(), "listing")
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen) {
	q := sanitizeInput(r.URL.Query().Get("q"))
	if len([]rune(q)) > maxSearchQuery {
		q = string([]rune(q)[:maxSearchQuery])
	}
	if err := s.ensureMounted(r, sc); s.actionError(w, r, ws, err) {
		return
	}
	if _, err := sc.Search(r.Context(), q); s.actionError(w, r, ws, err) {
		return
	}
	s.respond(w, r, ws, def, sc, NewHTMXResponse(), "listing")
}

// handleRefresh drops the search and returns to page 1; the client
// clears its search box on search:cleared.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen) {
	if err := sc.ClearSearch(r.Context()); s.actionError(w, r, ws, err) {
		return
	}
	s.respond(w, r, ws, def, sc, NewHTMXResponse().TriggerSearchCleared(), "listing")
}

func (s *Server) handleOpenCreate(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen) {
	if !s.requirePerm(w, r, ws, def, def.Permissions().Create) {
		return
	}
	if s.actionError(w, r, ws, sc.OpenCreate()) {
		return
	}
	s.respond(w, r, ws, def, sc, NewHTMXResponse(), "dialog")
}

func (s *Server) handleOpenEdit(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen) {
	if !s.requirePerm(w, r, ws, def, def.Permissions().Edit) {
		return
	}
	if s.actionError(w, r, ws, sc.OpenEdit(r.PathValue("id"))) {
		return
	}
	s.respond(w, r, ws, def, sc, NewHTMXResponse(), "dialog")
}

func (s *Server) handleOpenDelete(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen) {
	if !s.requirePerm(w, r, ws, def, def.Permissions().Delete) {
		return
	}
	if s.actionError(w, r, ws, sc.OpenDelete(r.PathValue("id"))) {
		return
	}
	s.respond(w, r, ws, def, sc, NewHTMXResponse(), "dialog")
}

func (s *Server) handleCloseDialog(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen) {
	if s.actionError(w, r, ws, sc.CloseDialog()) {
		return
	}
	s.respond(w, r, ws, def, sc, NewHTMXResponse(), "dialog")
}

// handleSubmit sends the open create or edit dialog to the backend.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen) {
	perm := def.Permissions().Create
	switch sc.View(ws.Authz(), nil).Dialog {
	case listing.DialogCreate.String():
	case listing.DialogEdit.String():
		perm = def.Permissions().Edit
	default:
		BadRequestError(msgNoDialog).Write(w)
		return
	}
	if !s.requirePerm(w, r, ws, def, perm) {
		return
	}

	p, err := ParseSubmission(w, r, def.Fields())
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(http.StatusRequestEntityTooLarge, msgUploadTooLarge).TriggerErrorNotification(msgUploadTooLarge).Write(w)
			return
		}
		log.FromContext(r.Context()).WarnContext(r.Context(), "Unreadable submission", log.FieldError, err)
		BadRequestError(msgInvalidForm).TriggerErrorNotification(msgInvalidForm).Write(w)
		return
	}

	if s.actionError(w, r, ws, sc.Submit(r.Context(), p)) {
		return
	}
	s.respond(w, r, ws, def, sc, NewHTMXResponse(), "dialog")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen) {
	if !s.requirePerm(w, r, ws, def, def.Permissions().Delete) {
		return
	}
	if s.actionError(w, r, ws, sc.ConfirmDelete(r.Context())) {
		return
	}
	s.respond(w, r, ws, def, sc, NewHTMXResponse(), "dialog")
}

// handleExport downloads the rows currently listed as an xlsx workbook.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, ws *Workspace, def screens.Definition, sc screens.Screen) {
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentExport)
	if err := s.ensureMounted(r, sc); s.expireIfNeeded(w, r, ws, err) {
		return
	}
	headers, rows := sc.Table()

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, def.Title(), headers, rows); err != nil {
		logger.ErrorContext(r.Context(), "Export failed", log.FieldOperation, log.OpExport, log.FieldError, err)
		s.fail(w, r, ws, http.StatusInternalServerError, "Export failed.")
		return
	}
	logger.InfoContext(r.Context(), "Exported listing",
		log.FieldOperation, log.OpExport,
		log.FieldCount, len(rows))

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, strings.ReplaceAll(export.Filename(def.Name()), `"`, "")))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}
