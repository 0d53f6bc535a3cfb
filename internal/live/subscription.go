package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"admintable.org/internal/obs"
)

// DefaultReconnectDelay is how long a failed subscription waits before it
// dials again.
const DefaultReconnectDelay = 5 * time.Second

// ErrClosed is returned by Run when the subscription was closed.
var ErrClosed = errors.New("live: subscription closed")

// Conn is one open live-data socket.
type Conn interface {
	// Next blocks until the next value arrives. It returns an error once the
	// socket is closed from either side.
	Next() (string, error)
	Close() error
}

// Dialer opens live-data sockets.
type Dialer interface {
	Dial(ctx context.Context, topic string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, topic string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, topic string) (Conn, error) { return f(ctx, topic) }

// Subscription follows one topic. It holds at most one socket and at most one
// pending reconnect timer.
type Subscription struct {
	dialer         Dialer
	topic          string
	reconnectDelay time.Duration
	now            func() time.Time
	newTimer       func(time.Duration) *time.Timer
	logger         *zap.Logger

	mu      sync.RWMutex
	state   State
	value   string
	history *History
	timer   *time.Timer
	subs    map[int]chan Update
	next    int

	done      chan struct{}
	closeOnce sync.Once
	running   sync.Mutex
}

// Option configures a Subscription.
type Option func(*Subscription)

// WithReconnectDelay overrides DefaultReconnectDelay.
func WithReconnectDelay(d time.Duration) Option {
	return func(s *Subscription) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

// WithHistory keeps the last n values. n <= 0 uses DefaultHistory.
func WithHistory(n int) Option {
	return func(s *Subscription) { s.history = NewHistory(n) }
}

// WithClock sets the clock used to timestamp values.
func WithClock(now func() time.Time) Option {
	return func(s *Subscription) {
		if now != nil {
			s.now = now
		}
	}
}

// New prepares a subscription. Nothing is dialled until Run.
func New(dialer Dialer, topic, initial string, opts ...Option) *Subscription {
	s := &Subscription{
		dialer:         dialer,
		topic:          topic,
		reconnectDelay: DefaultReconnectDelay,
		now:            time.Now,
		newTimer:       time.NewTimer,
		logger:         obs.Logger().With(zap.String("topic", topic)),
		state:          Connecting,
		value:          initial,
		subs:           make(map[int]chan Update),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.history != nil {
		s.history.Add(Entry{Value: initial, Time: s.now()})
	}
	return s
}

// Topic returns the followed topic.
func (s *Subscription) Topic() string { return s.topic }

// Snapshot returns the current state, value and history.
func (s *Subscription) Snapshot() (State, string, []Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []Entry
	if s.history != nil {
		entries = s.history.Entries()
	}
	return s.state, s.value, entries
}

// Run connects and keeps reconnecting until ctx is done or Close is called.
// The socket is closed and its reader has exited when Run returns.
func (s *Subscription) Run(ctx context.Context) error {
	if !s.running.TryLock() {
		return errors.New("live: subscription already running")
	}
	defer s.running.Unlock()

	s.mu.RLock()
	obs.LiveSubscriptions.WithLabelValues(s.state.String()).Inc()
	s.mu.RUnlock()
	defer func() {
		s.mu.RLock()
		st := s.state
		s.mu.RUnlock()
		obs.LiveSubscriptions.WithLabelValues(st.String()).Dec()
	}()

	for {
		s.setState(Connecting)
		conn, err := s.dialer.Dial(ctx, s.topic)
		if err == nil {
			s.setState(Connected)
			err = s.serve(ctx, conn)
		}
		if stop := s.stopped(ctx); stop != nil {
			return stop
		}
		s.logger.Info("live socket lost", zap.Error(err))
		s.setState(Failed)

		if stop := s.waitReconnect(ctx); stop != nil {
			return stop
		}
		obs.LiveReconnects.Inc()
	}
}

func (s *Subscription) serve(ctx context.Context, conn Conn) error {
	errc := make(chan error, 1)
	go func() {
		for {
			v, err := conn.Next()
			if err != nil {
				errc <- err
				return
			}
			s.receive(v)
		}
	}()

	select {
	case err := <-errc:
		_ = conn.Close()
		return err
	case <-ctx.Done():
	case <-s.done:
	}
	_ = conn.Close()
	<-errc
	return nil
}

func (s *Subscription) waitReconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	t := s.newTimer(s.reconnectDelay)
	s.timer = t
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		t.Stop()
		if s.timer == t {
			s.timer = nil
		}
		s.mu.Unlock()
	}()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

func (s *Subscription) stopped(ctx context.Context) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	return ctx.Err()
}

func (s *Subscription) receive(v string) {
	now := s.now()
	s.mu.Lock()
	s.value = v
	if s.history != nil {
		s.history.Add(Entry{Value: v, Time: now})
	}
	u := Update{State: s.state, Value: v, Time: now}
	s.mu.Unlock()
	s.publish(u)
}

func (s *Subscription) setState(st State) {
	s.mu.Lock()
	prev := s.state
	if prev == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	u := Update{State: st, Value: s.value, Time: s.now()}
	s.mu.Unlock()

	obs.LiveSubscriptions.WithLabelValues(prev.String()).Dec()
	obs.LiveSubscriptions.WithLabelValues(st.String()).Inc()
	s.publish(u)
}

// Subscribe registers a listener. The current state and value are delivered
// first. The channel is closed when ctx ends or the subscription is closed.
func (s *Subscription) Subscribe(ctx context.Context) <-chan Update {
	ch := make(chan Update, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	ch <- Update{State: s.state, Value: s.value, Time: s.now()}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

func (s *Subscription) publish(u Update) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
			// slow listener, drop
		}
	}
}

// Close stops Run and closes all listener channels.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.mu.Unlock()
	})
}
