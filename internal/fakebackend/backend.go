// Package fakebackend is an in-process admin backend API. Tests and the smoke
// command run the console against it.
package fakebackend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"admintable.org/internal/auth"
	"admintable.org/internal/ids"
)

// APIPrefix is where the API is mounted.
const APIPrefix = "/api/"

// User is an account that can log in.
type User struct {
	ID           string
	Display      string
	Password     string
	OTP          string
	Capabilities []string
}

// Request is a recorded API call.
type Request struct {
	Method string
	Path   string // relative to APIPrefix
	Query  string // raw query
	Header http.Header
	Body   []byte
}

type failure struct {
	status  int
	message string
}

// Backend holds all fake state. The zero value is not usable; call New.
type Backend struct {
	key      []byte
	lifetime time.Duration
	now      func() time.Time

	mu        sync.Mutex
	users     map[string]User
	resources map[string]*Resource
	pages     map[string]Page
	forms     map[string]Form
	dashboard string
	banner    string
	requests  []Request
	failures  map[string]failure
	delays    map[string]time.Duration
	revoked   map[string]bool
	submitted map[string][]map[string]any

	liveMu sync.Mutex
	topics map[string]map[chan string]struct{}
}

// Option configures a Backend.
type Option func(*Backend)

// WithTokenLifetime sets the access token lifetime reported at login.
func WithTokenLifetime(d time.Duration) Option {
	return func(b *Backend) { b.lifetime = d }
}

// WithUser adds an account.
func WithUser(u User) Option {
	return func(b *Backend) { b.users[u.ID] = u }
}

// WithClock overrides the token clock.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New returns a backend seeded with demo data and the account admin/admin.
func New(opts ...Option) *Backend {
	b := &Backend{
		key:       []byte("fakebackend-" + ids.SessionID()),
		lifetime:  5 * time.Minute,
		now:       time.Now,
		users:     map[string]User{},
		failures:  map[string]failure{},
		delays:    map[string]time.Duration{},
		revoked:   map[string]bool{},
		submitted: map[string][]map[string]any{},
		topics:    map[string]map[chan string]struct{}{},
	}
	b.users["admin"] = User{ID: "admin", Display: "Administrator", Password: "admin", Capabilities: []string{"admin"}}
	seed(b)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handler serves the API under APIPrefix.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route(strings.TrimSuffix(APIPrefix, "/"), func(r chi.Router) {
		r.Use(b.record)
		r.Post("/login", b.handleLogin)
		r.Post("/refresh", b.handleRefresh)
		r.Post("/logout", b.handleLogout)
		r.Get("/ws/live_data", b.handleLiveData)
		r.Get("/input_form/{name}", b.handleInputForm)
		r.Post("/input_form/{name}", b.handleSubmitInputForm)

		r.Group(func(r chi.Router) {
			r.Use(b.requireToken)
			r.Post("/ping", b.handlePing)
			r.Get("/user", b.handleUser)
			r.Get("/navigation", b.handleNavigation)
			r.Get("/banner", b.handleBanner)
			r.Get("/dashboard", b.handleDashboard)
			r.Get("/page/{name}/view", b.handlePage)
			r.Get("/resource/{resource}/list", b.handleList)
			r.Get("/resource/{resource}/create", b.handleCreateSchema)
			r.Post("/resource/{resource}/create", b.handleCreate)
			r.Get("/resource/{resource}/detail/{id}", b.handleDetail)
			r.Post("/resource/{resource}/detail/{id}/action/{ref}", b.handleAction)
			r.Get("/resource/{resource}/detail/{id}/graph/{ref}", b.handleGraph)
		})
	})
	return r
}

// Fail makes every call to path (relative to APIPrefix, e.g.
// "resource/user/list") answer with status until cleared with status 0.
func (b *Backend) Fail(path string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path = strings.TrimPrefix(path, "/")
	if status == 0 {
		delete(b.failures, path)
		return
	}
	b.failures[path] = failure{status: status, message: message}
}

// Delay holds every answer to path for d. A zero d clears it.
func (b *Backend) Delay(path string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path = strings.TrimPrefix(path, "/")
	if d <= 0 {
		delete(b.delays, path)
		return
	}
	b.delays[path] = d
}

// Requests returns the recorded calls, oldest first.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// LastRequest returns the most recent call to path.
func (b *Backend) LastRequest(path string) (Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path = strings.TrimPrefix(path, "/")
	for i := len(b.requests) - 1; i >= 0; i-- {
		if b.requests[i].Path == path {
			return b.requests[i], true
		}
	}
	return Request{}, false
}

// Submissions returns the payloads posted to an input form.
func (b *Backend) Submissions(form string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.submitted[form]...)
}

// AccessToken mints an access token for a user, for tests that skip login.
func (b *Backend) AccessToken(userID string) (string, error) {
	b.mu.Lock()
	u, ok := b.users[userID]
	b.mu.Unlock()
	if !ok {
		return "", errors.New("fakebackend: unknown user")
	}
	return b.sign(u, auth.TokenTypeAccess, b.lifetime)
}

func (b *Backend) sign(u User, typ string, ttl time.Duration) (string, error) {
	now := b.now()
	claims := auth.Claims{
		Display: u.Display,
		Type:    typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        ids.RequestID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if typ == auth.TokenTypeAccess {
		claims.Capabilities = u.Capabilities
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.key)
}

func (b *Backend) verify(token, typ string) (*auth.Claims, error) {
	claims := &auth.Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return b.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, errors.New("wrong token type")
	}
	return claims, nil
}

func (b *Backend) session(u User) (map[string]any, error) {
	access, err := b.sign(u, auth.TokenTypeAccess, b.lifetime)
	if err != nil {
		return nil, err
	}
	refresh, err := b.sign(u, auth.TokenTypeRefresh, 2*b.lifetime)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"access_token":   access,
		"refresh_token":  refresh,
		"capabilities":   u.Capabilities,
		"token_lifetime": int(b.lifetime / time.Second),
	}, nil
}

type userKey struct{}

func (b *Backend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := b.userFromHeader(r.Header.Get("Authorization"))
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	})
}

func (b *Backend) userFromHeader(header string) (User, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return User{}, false
	}
	claims, err := b.verify(token, auth.TokenTypeAccess)
	if err != nil {
		return User{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[claims.Subject]
	return u, ok
}

func userFrom(ctx context.Context) User {
	u, _ := ctx.Value(userKey{}).(User)
	return u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"message": msg})
}
