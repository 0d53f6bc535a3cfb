package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"admintable.org/internal/auth"
	"admintable.org/internal/dataclient"
	"admintable.org/internal/ids"
	"admintable.org/internal/obs"
	"admintable.org/internal/storage"
)

// Flash is a notification shown once on the next rendered page.
type Flash struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Failed  bool   `json:"failed"`
}

// browserSession is the console state of one browser: its auth client, a
// data client bound to it and the pending notifications.
type browserSession struct {
	id    string
	store *storage.Namespace
	auth  *auth.Client
	data  *dataclient.Client

	flashMu sync.Mutex
}

func (b *browserSession) pushFlash(ctx context.Context, f Flash) error {
	b.flashMu.Lock()
	defer b.flashMu.Unlock()
	pending, err := b.loadFlashes(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(append(pending, f))
	if err != nil {
		return err
	}
	return b.store.Set(ctx, storage.KeyFlash, data)
}

// notify queues f. A storage failure is logged; the page still renders.
func (b *browserSession) notify(ctx context.Context, f Flash) {
	if err := b.pushFlash(ctx, f); err != nil {
		obs.Logger().Warn("push flash", zap.String("session", b.id), zap.Error(err))
	}
}

// takeFlashes returns and forgets the pending notifications.
func (b *browserSession) takeFlashes(ctx context.Context) []Flash {
	b.flashMu.Lock()
	defer b.flashMu.Unlock()
	pending, err := b.loadFlashes(ctx)
	if err != nil || len(pending) == 0 {
		return nil
	}
	if err := b.store.Delete(ctx, storage.KeyFlash); err != nil {
		obs.Logger().Warn("drop flash messages", zap.String("session", b.id), zap.Error(err))
	}
	return pending
}

func (b *browserSession) loadFlashes(ctx context.Context) ([]Flash, error) {
	raw, err := b.store.Get(ctx, storage.KeyFlash)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Flash
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil
	}
	return out, nil
}

// defaultSessionIdle is how long a logged-in browser may stay away before
// its in-memory state is dropped. Its stored session survives and is restored
// on the next request.
const defaultSessionIdle = time.Hour

// sessionRegistry keeps the browser sessions that hold an auth session.
// Anonymous browsers get a throwaway session per request.
type sessionRegistry struct {
	store    storage.Store
	data     *dataclient.Client
	cookie   string
	secure   bool
	idle     time.Duration
	now      func() time.Time
	authOpts []auth.Option

	mu        sync.Mutex
	byID      map[string]*registered
	lastSweep time.Time
}

type registered struct {
	b    *browserSession
	seen time.Time
}

func newSessionRegistry(store storage.Store, data *dataclient.Client, cookie string, secure bool, idle time.Duration, opts ...auth.Option) *sessionRegistry {
	if idle <= 0 {
		idle = defaultSessionIdle
	}
	return &sessionRegistry{
		store:    store,
		data:     data,
		cookie:   cookie,
		secure:   secure,
		idle:     idle,
		now:      time.Now,
		authOpts: opts,
		byID:     map[string]*registered{},
	}
}

// get returns the session of r, minting a cookie when the browser has none.
// A known id without in-memory state, e.g. after a restart or an idle
// eviction, is restored from storage.
func (reg *sessionRegistry) get(w http.ResponseWriter, r *http.Request) *browserSession {
	if c, err := r.Cookie(reg.cookie); err == nil && ids.ValidSessionID(c.Value) {
		return reg.lookup(r.Context(), c.Value)
	}
	id := ids.SessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     reg.cookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   reg.secure,
		SameSite: http.SameSiteLaxMode,
	})
	reg.mu.Lock()
	reg.sweepLocked(reg.now())
	reg.mu.Unlock()
	return reg.newSession(id)
}

func (reg *sessionRegistry) lookup(ctx context.Context, id string) *browserSession {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	now := reg.now()
	reg.sweepLocked(now)
	if e, ok := reg.byID[id]; ok {
		e.seen = now
		return e.b
	}
	b := reg.newSession(id)
	err := b.auth.Restore(ctx)
	switch {
	case err == nil:
		reg.byID[id] = &registered{b: b, seen: now}
	case !errors.Is(err, auth.ErrNoSession):
		obs.Logger().Warn("restore session", zap.String("session", id), zap.Error(err))
	}
	return b
}

func (reg *sessionRegistry) newSession(id string) *browserSession {
	b := &browserSession{id: id, store: storage.NewNamespace(reg.store, id)}
	opts := append([]auth.Option{auth.WithResetHook(func() { reg.reset(b) })}, reg.authOpts...)
	b.auth = auth.NewClient(reg.data.Auth(), b.store, opts...)
	b.data = reg.data.WithAuthenticator(b.auth)
	return b
}

// keep registers b once it holds an auth session, replacing any older state
// of the same browser.
func (reg *sessionRegistry) keep(b *browserSession) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if e, ok := reg.byID[b.id]; ok && e.b != b {
		e.b.auth.Close()
	}
	reg.byID[b.id] = &registered{b: b, seen: reg.now()}
}

// forget drops b after a logout.
func (reg *sessionRegistry) forget(b *browserSession) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if e, ok := reg.byID[b.id]; ok && e.b == b {
		delete(reg.byID, b.id)
	}
	b.auth.Close()
}

// sweepLocked evicts sessions idle for longer than reg.idle, at most once
// per minute.
func (reg *sessionRegistry) sweepLocked(now time.Time) {
	if now.Sub(reg.lastSweep) < time.Minute {
		return
	}
	reg.lastSweep = now
	reg.evictIdleLocked(now)
}

func (reg *sessionRegistry) evictIdleLocked(now time.Time) int {
	n := 0
	for id, e := range reg.byID {
		if now.Sub(e.seen) > reg.idle {
			e.b.auth.Close()
			delete(reg.byID, id)
			n++
		}
	}
	return n
}

func (reg *sessionRegistry) evictIdle() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.evictIdleLocked(reg.now())
}

func (reg *sessionRegistry) size() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.byID)
}

// reset runs when a background refresh ended the session.
func (reg *sessionRegistry) reset(b *browserSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.notify(ctx, Flash{Title: "Signed out", Message: "Your session has expired, please log in again.", Failed: true})
}

// close stops every pending refresh.
func (reg *sessionRegistry) close() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, e := range reg.byID {
		e.b.auth.Close()
	}
}
