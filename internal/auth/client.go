package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"admintable.org/internal/audit"
	"admintable.org/internal/obs"
	"admintable.org/internal/storage"
)

const defaultRefreshTimeout = 30 * time.Second

// Timer is the handle of a scheduled refresh.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler func(d time.Duration, f func()) Timer

func afterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Client owns the auth session of one browser session. It persists the
// session through a storage namespace and keeps exactly one refresh pending
// while logged in.
type Client struct {
	transport      Transport
	store          *storage.Namespace
	schedule       Scheduler
	onReset        func()
	refreshTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger

	mu         sync.Mutex
	session    *Session
	principal  *Principal
	timer      Timer
	generation uint64
}

// Option configures a Client.
type Option func(*Client)

// WithResetHook registers f to run after a failed refresh wiped the session.
func WithResetHook(f func()) Option {
	return func(c *Client) { c.onReset = f }
}

// WithScheduler replaces time.AfterFunc, mainly for tests.
func WithScheduler(s Scheduler) Option {
	return func(c *Client) {
		if s != nil {
			c.schedule = s
		}
	}
}

// WithRefreshTimeout bounds background refresh calls.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithClock overrides the wall clock used when restoring sessions.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a Client with no session. Call Restore to pick up a
// persisted one.
func NewClient(transport Transport, store *storage.Namespace, opts ...Option) *Client {
	c := &Client{
		transport:      transport,
		store:          store,
		schedule:       afterFunc,
		refreshTimeout: defaultRefreshTimeout,
		now:            time.Now,
		logger:         obs.Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if store != nil {
		c.logger = c.logger.With(zap.String("session_ns", store.Name()))
	}
	return c
}

// Login authenticates against the backend and starts the session.
func (c *Client) Login(ctx context.Context, user, pass, otp string) (Session, error) {
	sess, err := c.transport.Login(ctx, Credentials{Username: user, Password: pass, OTP: otp})
	if err != nil {
		_ = audit.LogEvent(ctx, "auth.login_failed", map[string]any{"username": user, "error": err.Error()})
		return Session{}, err
	}
	principal, err := c.install(ctx, sess)
	if err != nil {
		return Session{}, err
	}
	_ = audit.LogEvent(audit.WithSubject(ctx, principal.Subject), "auth.login", map[string]any{
		"capabilities": principal.Capabilities,
	})
	return sess, nil
}

// Refresh exchanges the refresh token for a new session. Any failure clears
// the session and invokes the reset hook.
func (c *Client) Refresh(ctx context.Context) (Session, error) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return Session{}, ErrNoSession
	}
	refreshToken := c.session.RefreshToken
	gen := c.generation
	c.mu.Unlock()

	sess, err := c.transport.Refresh(ctx, refreshToken)
	if err == nil {
		c.mu.Lock()
		stale := gen != c.generation
		c.mu.Unlock()
		if stale {
			// logged out or logged in again while the call was in flight
			return Session{}, ErrNoSession
		}
		if _, err = c.install(ctx, sess); err == nil {
			return sess, nil
		}
	}

	c.logger.Warn("session refresh failed", zap.Error(err))
	if clearErr := c.clear(ctx); clearErr != nil {
		c.logger.Error("clear session", zap.Error(clearErr))
	}
	_ = audit.LogEvent(ctx, "auth.refresh_failed", map[string]any{"error": err.Error()})
	if c.onReset != nil {
		c.onReset()
	}
	return Session{}, err
}

// Logout invalidates the refresh token server side on a best-effort basis and
// always drops the local session.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	var refreshToken, subject string
	if c.session != nil {
		refreshToken = c.session.RefreshToken
	}
	if c.principal != nil {
		subject = c.principal.Subject
	}
	c.mu.Unlock()

	if refreshToken != "" {
		if err := c.transport.Logout(ctx, refreshToken); err != nil {
			c.logger.Info("server logout failed", zap.Error(err))
		}
	}
	if err := c.clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if subject != "" {
		_ = audit.LogEvent(audit.WithSubject(ctx, subject), "auth.logout", nil)
	}
	return nil
}

// AuthHeader returns the Authorization header value, or "" without a session.
func (c *Client) AuthHeader() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.AccessToken == "" {
		return ""
	}
	return "Bearer " + c.session.AccessToken
}

// IsLoggedIn reports whether an authenticated ping succeeds. Without a session
// it returns false and makes no network call.
func (c *Client) IsLoggedIn(ctx context.Context) bool {
	return c.Status(ctx) == LoggedIn
}

// Status is IsLoggedIn with the unreachable case split out. A ping rejected
// with 401 drops the local session.
func (c *Client) Status(ctx context.Context) LoginStatus {
	header := c.AuthHeader()
	if header == "" {
		return LoggedOut
	}
	err := c.transport.Ping(ctx, header)
	switch {
	case err == nil:
		return LoggedIn
	case errors.Is(err, ErrUnauthorized):
		if clearErr := c.clear(ctx); clearErr != nil {
			c.logger.Error("clear session", zap.Error(clearErr))
		}
		return LoggedOut
	default:
		c.logger.Debug("ping failed", zap.Error(err))
		return Unreachable
	}
}

// Session returns a copy of the current session.
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Principal returns the user of the current session.
func (c *Client) Principal() (Principal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.principal == nil {
		return Principal{}, false
	}
	return *c.principal, true
}

// Restore loads a persisted session and schedules its refresh. It returns
// ErrNoSession when nothing was stored.
func (c *Client) Restore(ctx context.Context) error {
	if c.store == nil {
		return ErrNoSession
	}
	raw, err := c.store.Get(ctx, storage.KeySession)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNoSession
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil || sess.AccessToken == "" {
		_ = c.store.Clear(ctx)
		return ErrNoSession
	}
	claims, err := ParseUnverified(sess.AccessToken)
	if err != nil {
		_ = c.store.Clear(ctx)
		return ErrNoSession
	}
	principal := NewPrincipal(claims, sess.Capabilities)

	delay := sess.LifetimeDuration()
	if left, ok := claims.ExpiresIn(c.now()); ok {
		delay = max(left, 0)
	}

	c.mu.Lock()
	c.generation++
	c.session = &sess
	c.principal = &principal
	c.scheduleLocked(delay)
	c.mu.Unlock()
	return nil
}

// Close stops the pending refresh without touching the stored session.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.stopLocked()
}

func (c *Client) install(ctx context.Context, sess Session) (Principal, error) {
	claims, err := ParseUnverified(sess.AccessToken)
	if err != nil {
		return Principal{}, err
	}
	principal := NewPrincipal(claims, sess.Capabilities)
	if len(sess.Capabilities) == 0 {
		sess.Capabilities = principal.Capabilities
	}
	if err := c.persist(ctx, sess); err != nil {
		return Principal{}, err
	}

	c.mu.Lock()
	c.generation++
	c.session = &sess
	c.principal = &principal
	c.scheduleLocked(sess.LifetimeDuration())
	c.mu.Unlock()
	return principal, nil
}

func (c *Client) persist(ctx context.Context, sess Session) error {
	if c.store == nil {
		return nil
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, storage.KeySession, data); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	if err := c.store.Set(ctx, storage.KeyToken, []byte(sess.AccessToken)); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

func (c *Client) clear(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	c.stopLocked()
	c.session = nil
	c.principal = nil
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if err := c.store.Delete(ctx, storage.KeySession); err != nil {
		return err
	}
	return c.store.Delete(ctx, storage.KeyToken)
}

// scheduleLocked replaces any pending refresh. A zero lifetime means the
// backend issued a non-expiring token and nothing is scheduled.
func (c *Client) scheduleLocked(d time.Duration) {
	c.stopLocked()
	if d <= 0 && c.session != nil && c.session.Lifetime <= 0 {
		return
	}
	gen := c.generation
	c.timer = c.schedule(d, func() { c.fireRefresh(gen) })
}

func (c *Client) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) fireRefresh(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Info("scheduled refresh ended session", zap.Error(err))
	}
}
