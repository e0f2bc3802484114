package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"gestionale/internal/activity"
	"gestionale/internal/api"
	"gestionale/internal/auth"
	"gestionale/internal/backend"
	"gestionale/internal/cache"
	"gestionale/internal/listing"
	"gestionale/internal/log"
	"gestionale/internal/menu"
	"gestionale/internal/metrics"
	"gestionale/internal/middleware/ratelimit"
	"gestionale/internal/middleware/security"
	"gestionale/internal/middleware/trace"
	"gestionale/internal/notify"
	"gestionale/internal/screens"
	"gestionale/internal/session"
	appweb "gestionale/web"
)

// ActivityReader lists journaled mutations for the dashboard.
type ActivityReader interface {
	RecentActivity(ctx context.Context, resource string, limit int) ([]activity.Event, error)
}

// Config wires the server to its collaborators.
type Config struct {
	Addr string
	// Client is the unauthenticated backend client; workspaces derive
	// token-bound copies from it.
	Client    *api.Client
	Sessions  session.Store
	Recorder  activity.Recorder
	Activity  ActivityReader
	Catalogue *screens.Catalogue
	Options   *cache.Options
	Metrics   *metrics.Metrics
	Checks    map[string]backend.Pinger
	Logger    *log.Logger

	SessionTTL         time.Duration
	SessionCookie      string
	SuperAdminRole     string
	MenuOptions        menu.Options
	RateLimitPerMinute int

	// Templates and Static default to the embedded web assets.
	Templates fs.FS
	Static    fs.FS
}

// Server is the console HTTP server.
type Server struct {
	http.Server

	cfg         Config
	logger      *log.Logger
	templates   *template.Template
	workspaces  *workspaces
	rateLimiter *ratelimit.Limiter
	started     time.Time
	now         func() time.Time

	shutdownOnce sync.Once
}

// NewServer parses the templates and builds the route table.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Client == nil || cfg.Sessions == nil || cfg.Catalogue == nil {
		return nil, errors.New("http: client, sessions and catalogue are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.FromContext(context.Background())
	}
	if cfg.Recorder == nil {
		cfg.Recorder = activity.NewLogRecorder(cfg.Logger)
	}
	if cfg.Options == nil {
		cfg.Options = cache.NewOptions(256, 5*time.Minute)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = "gestionale_session"
	}
	if cfg.Templates == nil {
		sub, err := fs.Sub(appweb.TemplatesFS, "templates")
		if err != nil {
			return nil, fmt.Errorf("templates fs: %w", err)
		}
		cfg.Templates = sub
	}
	if cfg.Static == nil {
		sub, err := fs.Sub(appweb.StaticFS, "static")
		if err != nil {
			return nil, fmt.Errorf("static fs: %w", err)
		}
		cfg.Static = sub
	}

	tmpl, err := parseTemplates(cfg.Templates)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:         cfg,
		logger:      cfg.Logger.WithComponent(log.ComponentHTTP),
		templates:   tmpl,
		workspaces:  newWorkspaces(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		started:     time.Now(),
		now:         time.Now,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(security.ClientIP, s.rateLimited, http.MethodPost)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(cfg.Logger, security.ClientIP).Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	handle := func(pattern, route string, h http.HandlerFunc) {
		var handler http.Handler = h
		if s.cfg.Metrics != nil {
			handler = s.cfg.Metrics.Instrument(route, handler)
		}
		mux.Handle(pattern, handler)
	}

	static := http.StripPrefix("/static/", http.FileServer(http.FS(s.cfg.Static)))
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))

	handle("GET /healthz", "healthz", s.handleHealth)
	handle("GET /readyz", "readyz", s.handleReady)
	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics.Handler())
	}

	handle("GET /login", "login", s.handleLoginPage)
	handle("POST /login", "login", s.handleLogin)
	handle("POST /logout", "logout", s.withWorkspace(s.handleLogout))

	handle("GET /{$}", "dashboard", s.withWorkspace(s.handleDashboard))
	handle("GET /ui/menu", "menu", s.withWorkspace(s.handleMenu))
	handle("POST /ui/menu/toggle/{key}", "menu_toggle", s.withWorkspace(s.handleMenuToggle))

	handle("GET /app/{resource}", "screen", s.withScreen(s.handleScreenPage))
	handle("GET /app/{resource}/export.xlsx", "screen_export", s.withScreen(s.handleExport))
	handle("GET /ui/app/{resource}/list", "screen_list", s.withScreen(s.handleList))
	handle("GET /ui/app/{resource}/page", "screen_page", s.withScreen(s.handlePage))
	handle("GET /ui/app/{resource}/search", "screen_search", s.withScreen(s.handleSearch))
	handle("POST /ui/app/{resource}/refresh", "screen_refresh", s.withScreen(s.handleRefresh))
	handle("POST /ui/app/{resource}/dialog/create", "screen_dialog", s.withScreen(s.handleOpenCreate))
	handle("POST /ui/app/{resource}/dialog/edit/{id}", "screen_dialog", s.withScreen(s.handleOpenEdit))
	handle("POST /ui/app/{resource}/dialog/delete/{id}", "screen_dialog", s.withScreen(s.handleOpenDelete))
	handle("POST /ui/app/{resource}/dialog/cancel", "screen_dialog", s.withScreen(s.handleCloseDialog))
	handle("POST /ui/app/{resource}/submit", "screen_submit", s.withScreen(s.handleSubmit))
	handle("POST /ui/app/{resource}/delete", "screen_delete", s.withScreen(s.handleDelete))
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, security.ClientIP(r),
		log.FieldPath, r.URL.Path)
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		TriggerErrorNotification("Too many requests. Please slow down.").
		Write(w)
}

// Shutdown gracefully shuts down the server and its background loops.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// ReapWorkspaces drops the workspaces whose session expired. It returns
// how many were dropped so it can serve as a cache.Cleaner.
func (s *Server) ReapWorkspaces() int {
	gone := s.workspaces.expired(s.now())
	for range gone {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.WorkspaceClosed()
		}
	}
	if len(gone) > 0 {
		s.logger.Debug("Reaped expired workspaces", log.FieldCount, len(gone))
	}
	return len(gone)
}

// workspaceFor returns the workspace of the request's session cookie, or
// nil when the browser is not signed in.
func (s *Server) workspaceFor(r *http.Request) (*Workspace, error) {
	c, err := r.Cookie(s.cfg.SessionCookie)
	if err != nil || c.Value == "" {
		return nil, nil
	}
	now := s.now()
	if ws, ok := s.workspaces.get(c.Value); ok {
		if !ws.Expired(now) {
			return ws, nil
		}
		s.teardown(r.Context(), ws)
		return nil, nil
	}

	sess, err := s.cfg.Sessions.Get(r.Context(), c.Value)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Expired(now) {
		_ = s.cfg.Sessions.Delete(r.Context(), sess.ID)
		return nil, nil
	}
	sess.Authorize(s.cfg.SuperAdminRole)

	ws, created := s.workspaces.put(s.newWorkspace(sess))
	if created && s.cfg.Metrics != nil {
		s.cfg.Metrics.WorkspaceOpened()
	}
	return ws, nil
}

func (s *Server) newWorkspace(sess *auth.Session) *Workspace {
	return &Workspace{
		Session:   sess,
		Client:    s.cfg.Client.WithToken(sess.Token),
		Sidebar:   menu.NewSidebar(s.cfg.Catalogue.Nav(), sess.Permissions(), s.cfg.MenuOptions),
		Notices:   notify.NewQueue(0),
		newScreen: s.newScreen,
		screens:   make(map[string]screens.Screen),
	}
}

// newScreen binds def to ws: backend calls carry the session token,
// notices land in the workspace queue and a 401 expires the workspace.
func (s *Server) newScreen(ws *Workspace, def screens.Definition) screens.Screen {
	logger := s.cfg.Logger.With(log.FieldSessionID, ws.Session.ID, log.FieldUser, ws.Session.User.Email)
	actor := activity.Actor{SessionID: ws.Session.ID, User: ws.Session.User.Email}
	hooks := listing.Hooks{
		OnMutation: func(ctx context.Context, resource string, op listing.Op, id string, err error) {
			activity.Hook(s.cfg.Recorder, actor, logger)(ctx, resource, op, id, err)
			if err == nil {
				s.cfg.Options.InvalidateEndpoint(def.Endpoint())
			}
		},
	}
	if s.cfg.Metrics != nil {
		hooks = listing.ChainHooks(s.cfg.Metrics.ListingHooks(), hooks)
	}
	return def.NewScreen(screens.Deps{
		Client:         ws.Client,
		Notifier:       ws.Notices,
		OnUnauthorized: ws.Expire,
		Hooks:          hooks,
		Logger:         logger,
	})
}

// teardown forgets a session everywhere: workspace, store and metrics.
func (s *Server) teardown(ctx context.Context, ws *Workspace) {
	ws.Expire()
	if s.workspaces.remove(ws.Session.ID) && s.cfg.Metrics != nil {
		s.cfg.Metrics.WorkspaceClosed()
	}
	if err := s.cfg.Sessions.Delete(ctx, ws.Session.ID); err != nil {
		s.logger.WarnContext(ctx, "Failed to delete session", log.FieldSessionID, ws.Session.ID, log.FieldError, err)
	}
}

type workspaceHandler func(w http.ResponseWriter, r *http.Request, ws *Workspace)

// withWorkspace resolves the signed-in workspace or sends the browser to
// the login page.
func (s *Server) withWorkspace(next workspaceHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.workspaceFor(r)
		if err != nil {
			s.logger.ErrorContext(r.Context(), "Session lookup failed", log.FieldError, err)
			InternalServerError("Session unavailable").Write(w)
			return
		}
		if ws == nil {
			s.toLogin(w, r)
			return
		}
		ctx := log.IntoContext(r.Context(), log.FromContext(r.Context()).With(log.FieldSessionID, ws.Session.ID))
		next(w, r.WithContext(ctx), ws)
	}
}

// toLogin clears the session cookie and redirects to the login page: a
// full reload for htmx requests, a plain redirect otherwise.
func (s *Server) toLogin(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/login").Write(w)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// expireIfNeeded tears ws down when the backend rejected its token during
// the request and answers with the login redirect. It reports whether the
// response was written.
func (s *Server) expireIfNeeded(w http.ResponseWriter, r *http.Request, ws *Workspace, err error) bool {
	if !listing.IsUnauthorized(err) && !ws.Expired(s.now()) {
		return false
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Session rejected by backend, signing out")
	s.teardown(r.Context(), ws)
	s.toLogin(w, r)
	return true
}
