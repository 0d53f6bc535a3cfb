// Package dataclient talks to the admin backend API over HTTP and WebSocket.
package dataclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"admintable.org/internal/audit"
	"admintable.org/internal/obs"
)

const maxResponseBytes = 16 << 20

// Authenticator supplies credentials and is told when the backend rejected
// them.
type Authenticator interface {
	AuthHeader() string
	Logout(ctx context.Context) error
}

// Config holds what New needs.
type Config struct {
	// BaseURL is the backend API root, e.g. "http://localhost:8000/api/".
	BaseURL string

	// HTTPClient defaults to a client without timeout; callers bound calls
	// with their context.
	HTTPClient *http.Client

	// Dialer opens live-data sockets. Defaults to a websocket dialer with a
	// 10s handshake timeout.
	Dialer WebSocketDialer

	UserAgent string
}

// Client performs one request per call. It never retries.
type Client struct {
	base      *url.URL
	http      *http.Client
	auth      Authenticator
	ws        WebSocketDialer
	userAgent string
	logger    *zap.Logger
}

// New validates cfg. auth may be nil for unauthenticated use (public forms).
func New(cfg Config, auth Authenticator) (*Client, error) {
	base, err := ParseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = defaultDialer()
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "admintable-console"
	}
	return &Client{
		base:      base,
		http:      httpClient,
		auth:      auth,
		ws:        dialer,
		userAgent: ua,
		logger:    obs.Logger().With(zap.String("component", "dataclient")),
	}, nil
}

// ParseBaseURL checks the backend URL and makes sure it ends with a slash so
// relative endpoint paths resolve below it.
func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("dataclient: backend url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("dataclient: parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("dataclient: backend url must be http(s), got %q", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery, u.Fragment = "", ""
	return u, nil
}

// WithAuthenticator returns a copy of c bound to auth.
func (c *Client) WithAuthenticator(auth Authenticator) *Client {
	cp := *c
	cp.auth = auth
	return &cp
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(path string, query url.Values) string {
	s := c.base.String() + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		s += "?" + query.Encode()
	}
	return s
}

// do sends one request. body is JSON encoded when not nil; out receives the
// decoded response when not nil.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	return c.send(ctx, op, method, c.endpoint(path, query), c.authHeader(), body, out, true)
}

func (c *Client) authHeader() string {
	if c.auth == nil {
		return ""
	}
	return c.auth.AuthHeader()
}

func (c *Client) send(ctx context.Context, op, method, target, authorization string, body, out any, logoutOn401 bool) error {
	start := time.Now()
	status := "error"
	defer func() {
		obs.BackendRequests.WithLabelValues(op, status).Inc()
		obs.BackendDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Message: "request failed: encode body: " + err.Error(), Err: err}
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return transportError(op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	if rid := audit.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("backend request failed", zap.String("op", op), zap.Error(err))
		return transportError(op, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		apiErr := statusError(op, resp.StatusCode, eb)
		if resp.StatusCode == http.StatusUnauthorized && logoutOn401 && c.auth != nil {
			if lerr := c.auth.Logout(ctx); lerr != nil {
				c.logger.Warn("logout after 401", zap.String("op", op), zap.Error(lerr))
			}
		}
		c.logger.Debug("backend error", zap.String("op", op), zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message))
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Message: "request failed: invalid response: " + err.Error(), Err: err}
	}
	return nil
}
