// Package console serves the admin console: server-rendered pages built from
// the descriptors the admin backend returns.
package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"admintable.org/internal/audit"
	"admintable.org/internal/auth"
	"admintable.org/internal/dataclient"
	"admintable.org/internal/live"
	"admintable.org/internal/obs"
	"admintable.org/internal/render"
	"admintable.org/internal/routes"
	"admintable.org/internal/schema"
	"admintable.org/internal/storage"
)

const (
	defaultMaxBody    = 1 << 20
	defaultLoginBurst = 10
	notFoundRedirect  = 3 // seconds
)

// Options configures a Server.
type Options struct {
	// Data is the backend client without a session; each browser session
	// binds its own copy.
	Data     *dataclient.Client
	Store    storage.Store
	Renderer *render.Renderer
	Version  string

	CookieName   string
	SecureCookie bool
	// SessionIdle is how long a logged-in browser's state stays in memory
	// without requests. Defaults to one hour.
	SessionIdle time.Duration

	LiveReconnectDelay time.Duration
	LiveHistory        int

	LoginBurst     int
	LoginPerSecond int
	MaxBodyBytes   int64

	AuthOptions []auth.Option
}

// Server is the console HTTP layer.
type Server struct {
	data     *dataclient.Client
	store    storage.Store
	renderer *render.Renderer
	version  string
	sessions *sessionRegistry

	liveDelay   time.Duration
	liveHistory int
	loginBurst  int
	loginRate   int
	maxBody     int64

	logger *zap.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Data == nil {
		return nil, errors.New("console: data client is required")
	}
	if opts.Store == nil {
		return nil, errors.New("console: storage is required")
	}
	if opts.Renderer == nil {
		opts.Renderer = render.New()
	}
	if opts.CookieName == "" {
		opts.CookieName = "admintable_session"
	}
	if opts.LiveReconnectDelay <= 0 {
		opts.LiveReconnectDelay = live.DefaultReconnectDelay
	}
	if opts.LiveHistory <= 0 {
		opts.LiveHistory = live.DefaultHistory
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = defaultLoginBurst
	}
	if opts.LoginPerSecond <= 0 {
		opts.LoginPerSecond = 1
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	return &Server{
		data:        opts.Data,
		store:       opts.Store,
		renderer:    opts.Renderer,
		version:     opts.Version,
		sessions:    newSessionRegistry(opts.Store, opts.Data, opts.CookieName, opts.SecureCookie, opts.SessionIdle, opts.AuthOptions...),
		liveDelay:   opts.LiveReconnectDelay,
		liveHistory: opts.LiveHistory,
		loginBurst:  opts.LoginBurst,
		loginRate:   opts.LoginPerSecond,
		maxBody:     opts.MaxBodyBytes,
		logger:      obs.Logger().With(zap.String("component", "console")),
	}, nil
}

// Handler returns the full middleware chain and routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", obs.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.withSession)
		r.Get(routes.LoginPath, s.loginPage)
		r.With(func(next http.Handler) http.Handler {
			return RateLimit(next, s.loginBurst, s.loginRate)
		}).Post(routes.LoginPath, s.login)
		r.Get(routes.Logout, s.logout)
		r.Get("/forms/{name}", s.inputForm)
		r.Post("/forms/{name}", s.submitInputForm)

		r.Group(func(r chi.Router) {
			r.Use(s.requireLogin)
			r.Get(routes.Dashboard, s.dashboard)
			r.Get("/page/{name}", s.customPage)
			r.Get("/resource/{name}/list", s.list)
			r.Post("/resource/{name}/list", s.mutateList)
			r.Get("/resource/{name}/create", s.createForm)
			r.Post("/resource/{name}/create", s.create)
			r.Get("/resource/{name}/detail/{id}", s.detail)
			r.Post("/resource/{name}/detail/{id}/action/{ref}", s.action)
			r.Get(routes.LivePath, s.live)
		})
		r.NotFound(s.notFound)
	})

	var h http.Handler = r
	h = MaxBodyBytes(h, s.maxBody)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

// EvictIdleSessions drops the in-memory state of browsers idle for longer
// than Options.SessionIdle and reports how many went.
func (s *Server) EvictIdleSessions() int {
	return s.sessions.evictIdle()
}

// Close stops background session refreshes.
func (s *Server) Close() {
	s.sessions.close()
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "admintable-console",
		"version": s.version,
	})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) *browserSession {
	b, _ := ctx.Value(sessionKey{}).(*browserSession)
	return b
}

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := s.sessions.get(w, r)
		ctx := context.WithValue(r.Context(), sessionKey{}, b)
		ctx = auth.ContextWithClient(ctx, b.auth)
		if p, ok := b.auth.Principal(); ok {
			ctx = auth.ContextWithPrincipal(ctx, p)
			ctx = audit.WithSubject(ctx, p.Subject)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireLogin sends browsers without a session to the login page. It does
// not ping the backend; a rejected token surfaces as a 401 on the first call.
func (s *Server) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionFrom(r.Context()).auth.AuthHeader() == "" {
			if r.URL.Path == routes.LivePath {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, routes.Login(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type refresh struct {
	Seconds int
	URL     string
}

type pageData struct {
	Title   string
	App     schema.Navigation
	User    string
	Flashes []Flash
	Refresh *refresh
	Content any
}

// layout loads the navigation tree and the user for the page chrome. Only
// an expired session is reported; other failures leave the chrome empty.
func (s *Server) layout(ctx context.Context, b *browserSession, title string) (*pageData, error) {
	data := &pageData{Title: title}
	if b.auth.AuthHeader() == "" {
		data.Flashes = b.takeFlashes(ctx)
		return data, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		nav, err := b.data.Navigation(gctx)
		if err != nil {
			return err
		}
		data.App = nav
		return nil
	})
	g.Go(func() error {
		info, err := b.data.UserInfo(gctx)
		if err != nil {
			return err
		}
		if info.User != nil {
			data.User = info.User.Label()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, dataclient.ErrUnauthorized) {
			return nil, err
		}
		s.logger.Warn("load layout", zap.Error(err))
	}
	if data.User == "" {
		if p, ok := b.auth.Principal(); ok {
			data.User = p.Display
		}
	}
	data.Flashes = b.takeFlashes(ctx)
	return data, nil
}

// page renders content inside the layout.
func (s *Server) page(w http.ResponseWriter, r *http.Request, status int, name, title string, content any) {
	b := sessionFrom(r.Context())
	data, err := s.layout(r.Context(), b, title)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data.Content = content
	renderPage(w, status, name, data)
}

type errorView struct {
	Message string
	Back    string
}

// fail maps a backend error onto a response: 401 goes to the login page,
// everything else renders an error page with a failure notification.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return
	}
	b := sessionFrom(ctx)
	if errors.Is(err, dataclient.ErrUnauthorized) {
		b.notify(ctx, Flash{Title: "Signed out", Message: "Please log in to continue.", Failed: true})
		http.Redirect(w, r, routes.Login(r.URL.RequestURI()), http.StatusSeeOther)
		return
	}
	status := http.StatusBadGateway
	var apiErr *dataclient.Error
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		status = apiErr.Status
	}
	s.logger.Info("request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))

	data, lerr := s.layout(ctx, b, "Error")
	if lerr != nil {
		data = &pageData{Title: "Error"}
	}
	data.Flashes = append(data.Flashes, failureFlash(err))
	data.Content = errorView{Message: err.Error(), Back: routes.Dashboard}
	renderPage(w, status, "error", data)
}

// notFoundDetail shows the error and returns to the resource list once,
// after a short delay.
func (s *Server) notFoundDetail(w http.ResponseWriter, r *http.Request, resource string, err error) {
	b := sessionFrom(r.Context())
	data, lerr := s.layout(r.Context(), b, "Not found")
	if lerr != nil {
		s.fail(w, r, lerr)
		return
	}
	back := routes.ResourceListBase(resource)
	data.Refresh = &refresh{Seconds: notFoundRedirect, URL: back}
	data.Flashes = append(data.Flashes, failureFlash(err))
	data.Content = errorView{
		Message: fmt.Sprintf("%s. Returning to the list in %d seconds.", err.Error(), notFoundRedirect),
		Back:    back,
	}
	renderPage(w, http.StatusNotFound, "error", data)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, http.StatusNotFound, "error", "Not found", errorView{
		Message: "Page not found: " + r.URL.Path,
		Back:    routes.Dashboard,
	})
}

func failureFlash(err error) Flash {
	return Flash{Title: "Failed", Message: "Failed: " + err.Error(), Failed: true}
}

func linkHref(l schema.NavLink) string {
	if l.Type == schema.LinkPage {
		return routes.CustomPage(l.Name)
	}
	return routes.ResourceListBase(l.Name)
}
