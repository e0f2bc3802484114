package http

import (
	"errors"
	"net/http"
	"strings"

	"gestionale/internal/api"
	"gestionale/internal/auth"
	"gestionale/internal/log"
	"gestionale/internal/session"
)

const (
	msgLoginNetwork  = "Server not responding. Please try again later."
	msgLoginRequired = "Email and password are required."
	msgLoginFailed   = "Login failed. Please try again."
)

type loginData struct {
	Email string
	Error string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if ws, err := s.workspaceFor(r); err == nil && ws != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.renderPage(w, r, http.StatusOK, "login.html", loginData{})
}

// handleLogin exchanges the submitted credentials for a backend token and
// opens a workspace for the new session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		s.renderPage(w, r, http.StatusBadRequest, "login.html", loginData{Error: msgLoginRequired})
		return
	}
	creds := api.Credentials{
		Email:    strings.ToLower(sanitizeInput(r.PostForm.Get("email"))),
		Password: r.PostForm.Get("password"),
	}
	if creds.Email == "" || creds.Password == "" {
		s.renderPage(w, r, http.StatusBadRequest, "login.html", loginData{Email: creds.Email, Error: msgLoginRequired})
		return
	}

	res, err := s.cfg.Client.Login(r.Context(), creds)
	if err != nil {
		status, msg := loginFailure(err)
		logger.WarnContext(r.Context(), "Login rejected",
			log.FieldOperation, log.OpLogin,
			log.FieldUser, creds.Email,
			log.FieldStatusCode, status,
			log.FieldError, err)
		s.renderPage(w, r, status, "login.html", loginData{Email: creds.Email, Error: msg})
		return
	}

	sess := auth.NewSession(session.NewID(), res.Token, res.User, s.cfg.SessionTTL, s.cfg.SuperAdminRole)
	if err := s.cfg.Sessions.Save(r.Context(), sess); err != nil {
		logger.ErrorContext(r.Context(), "Failed to save session", log.FieldOperation, log.OpLogin, log.FieldError, err)
		s.renderPage(w, r, http.StatusInternalServerError, "login.html", loginData{Email: creds.Email, Error: msgLoginFailed})
		return
	}
	if _, created := s.workspaces.put(s.newWorkspace(sess)); created && s.cfg.Metrics != nil {
		s.cfg.Metrics.WorkspaceOpened()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	logger.InfoContext(r.Context(), "User signed in",
		log.FieldOperation, log.OpLogin,
		log.FieldUser, res.User.Email,
		log.FieldSessionID, sess.ID,
		log.FieldRole, res.User.RoleName())

	if isHTMX(r) {
		NewHTMXResponse().Redirect("/").Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// loginFailure maps a login error to the status and message shown on the
// login form.
func loginFailure(err error) (int, string) {
	if api.IsNetwork(err) {
		return http.StatusServiceUnavailable, msgLoginNetwork
	}
	var verr *api.ValidationError
	if errors.As(err, &verr) {
		msg := verr.Message
		if msg == "" {
			for _, field := range []string{"email", "password"} {
				if ms := verr.Fields[field]; len(ms) > 0 {
					msg = ms[0]
					break
				}
			}
		}
		if msg == "" {
			msg = msgLoginFailed
		}
		return http.StatusUnauthorized, msg
	}
	var aerr *api.APIError
	if errors.As(err, &aerr) && aerr.Message != "" {
		if aerr.Status >= 500 {
			return http.StatusBadGateway, aerr.Message
		}
		return http.StatusUnauthorized, aerr.Message
	}
	return http.StatusBadGateway, msgLoginFailed
}

// handleLogout revokes the token on the backend, best effort, and drops
// the session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, ws *Workspace) {
	logger := log.FromContext(r.Context())
	if err := ws.Client.Logout(r.Context()); err != nil && !errors.Is(err, api.ErrUnauthorized) {
		logger.WarnContext(r.Context(), "Backend logout failed", log.FieldOperation, log.OpLogout, log.FieldError, err)
	}
	s.teardown(r.Context(), ws)
	logger.InfoContext(r.Context(), "User signed out",
		log.FieldOperation, log.OpLogout,
		log.FieldUser, ws.Session.User.Email)
	s.toLogin(w, r)
}
