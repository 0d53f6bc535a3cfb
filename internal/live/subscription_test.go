package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConn struct {
	values    chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{values: make(chan string), closed: make(chan struct{})}
}

func (c *fakeConn) Next() (string, error) {
	select {
	case v := <-c.values:
		return v, nil
	case <-c.closed:
		return "", errors.New("closed")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func waitFor(t *testing.T, ch <-chan Update, match func(Update) bool) Update {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				t.Fatal("updates closed")
			}
			if match(u) {
				return u
			}
		case <-timeout:
			t.Fatal("timed out waiting for update")
		}
	}
}

func TestSubscriptionReceivesValues(t *testing.T) {
	conn := newFakeConn()
	dialer := DialerFunc(func(context.Context, string) (Conn, error) { return conn, nil })
	sub := New(dialer, "cpu", "0", WithHistory(5))

	ctx, cancel := context.WithCancel(context.Background())
	updates := sub.Subscribe(ctx)
	first := <-updates
	if first.State != Connecting || first.Value != "0" {
		t.Fatalf("first update = %+v", first)
	}

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	waitFor(t, updates, func(u Update) bool { return u.State == Connected })
	conn.values <- "42"
	waitFor(t, updates, func(u Update) bool { return u.Value == "42" })

	state, value, history := sub.Snapshot()
	if state != Connected || value != "42" {
		t.Fatalf("snapshot = %v %q", state, value)
	}
	if len(history) != 2 || history[0].Value != "0" || history[1].Value != "42" {
		t.Fatalf("history = %+v", history)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if !conn.isClosed() {
		t.Fatal("socket left open after Run returned")
	}
}

func TestSubscriptionReconnectsAfterFailure(t *testing.T) {
	var dials atomic.Int32
	conns := make(chan *fakeConn, 4)
	dialer := DialerFunc(func(context.Context, string) (Conn, error) {
		if dials.Add(1) == 1 {
			return nil, errors.New("refused")
		}
		c := newFakeConn()
		conns <- c
		return c, nil
	})
	sub := New(dialer, "t", "", WithReconnectDelay(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := sub.Subscribe(ctx)

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	waitFor(t, updates, func(u Update) bool { return u.State == Failed })
	waitFor(t, updates, func(u Update) bool { return u.State == Connected })

	// the server drops the socket: fail and come back again
	c := <-conns
	_ = c.Close()
	waitFor(t, updates, func(u Update) bool { return u.State == Failed })
	waitFor(t, updates, func(u Update) bool { return u.State == Connected })

	if got := dials.Load(); got != 3 {
		t.Fatalf("dials = %d, want 3", got)
	}

	sub.Close()
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("Run = %v, want ErrClosed", err)
	}
}

func TestCloseStopsPendingReconnect(t *testing.T) {
	dialer := DialerFunc(func(context.Context, string) (Conn, error) {
		return nil, errors.New("down")
	})
	sub := New(dialer, "t", "", WithReconnectDelay(time.Hour))
	updates := sub.Subscribe(context.Background())

	done := make(chan error, 1)
	go func() { done <- sub.Run(context.Background()) }()
	waitFor(t, updates, func(u Update) bool { return u.State == Failed })

	sub.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	for range updates {
	}
	sub.mu.RLock()
	defer sub.mu.RUnlock()
	if sub.timer != nil {
		t.Fatal("reconnect timer still pending")
	}
}

func TestRunTwiceConcurrently(t *testing.T) {
	block := make(chan struct{})
	dialer := DialerFunc(func(ctx context.Context, _ string) (Conn, error) {
		<-block
		return nil, ctx.Err()
	})
	sub := New(dialer, "t", "")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	if err := sub.Run(ctx); err == nil {
		t.Fatal("second Run should fail while the first is active")
	}
	cancel()
	close(block)
	<-done
	sub.Close()
}

func TestDefaultReconnectDelayIsFiveSeconds(t *testing.T) {
	if DefaultReconnectDelay != 5*time.Second {
		t.Fatalf("DefaultReconnectDelay = %v", DefaultReconnectDelay)
	}
	sub := New(DialerFunc(func(context.Context, string) (Conn, error) { return nil, errors.New("down") }), "t", "")
	if sub.reconnectDelay != 5*time.Second {
		t.Fatalf("reconnectDelay = %v, want 5s", sub.reconnectDelay)
	}
	sub.Close()
}

func TestEveryReconnectWaitsTheDefaultDelay(t *testing.T) {
	var dials atomic.Int32
	dialer := DialerFunc(func(context.Context, string) (Conn, error) {
		dials.Add(1)
		return nil, errors.New("down")
	})
	sub := New(dialer, "t", "")

	var mu sync.Mutex
	var requested []time.Duration
	sub.newTimer = func(d time.Duration) *time.Timer {
		mu.Lock()
		requested = append(requested, d)
		mu.Unlock()
		return time.NewTimer(time.Millisecond)
	}

	done := make(chan error, 1)
	go func() { done <- sub.Run(context.Background()) }()
	deadline := time.Now().Add(2 * time.Second)
	for dials.Load() < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d dials", dials.Load())
		}
		time.Sleep(time.Millisecond)
	}
	sub.Close()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(requested) < 3 {
		t.Fatalf("requested %d timers, want at least 3", len(requested))
	}
	for i, d := range requested {
		if d != 5*time.Second {
			t.Fatalf("timer %d waited %v, want 5s", i, d)
		}
	}
}

func TestReconnectDoesNotFireEarly(t *testing.T) {
	const delay = 50 * time.Millisecond
	dialer := DialerFunc(func(context.Context, string) (Conn, error) {
		return nil, errors.New("down")
	})
	sub := New(dialer, "t", "", WithReconnectDelay(delay))
	ctx, cancel := context.WithCancel(context.Background())
	updates := sub.Subscribe(ctx)

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	for i := 0; i < 3; i++ {
		failed := waitFor(t, updates, func(u Update) bool { return u.State == Failed })
		again := waitFor(t, updates, func(u Update) bool { return u.State == Connecting })
		if gap := again.Time.Sub(failed.Time); gap < delay {
			t.Fatalf("reconnect %d after %v, want at least %v", i, gap, delay)
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}
