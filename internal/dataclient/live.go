package dataclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"admintable.org/internal/live"
)

const liveDataPath = "ws/live_data"

// WebSocketDialer is satisfied by *websocket.Dialer.
type WebSocketDialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

func defaultDialer() *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
}

// BearerSubprotocol encodes an Authorization header value as the websocket
// subprotocol the backend reads credentials from: "bearer" followed by the
// lowercase hex of the header.
func BearerSubprotocol(authHeader string) string {
	return "bearer" + hex.EncodeToString([]byte(authHeader))
}

// ParseBearerSubprotocol reverses BearerSubprotocol.
func ParseBearerSubprotocol(proto string) (string, error) {
	rest, ok := strings.CutPrefix(proto, "bearer")
	if !ok {
		return "", errors.New("dataclient: not a bearer subprotocol")
	}
	raw, err := hex.DecodeString(rest)
	if err != nil {
		return "", fmt.Errorf("dataclient: decode bearer subprotocol: %w", err)
	}
	return string(raw), nil
}

// LiveDataURL is the socket address of topic.
func (c *Client) LiveDataURL(topic string) string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += liveDataPath
	u.RawQuery = url.Values{"topic": {topic}}.Encode()
	return u.String()
}

// Dial opens the live-data socket of topic. It implements live.Dialer.
func (c *Client) Dial(ctx context.Context, topic string) (live.Conn, error) {
	header := http.Header{}
	if authz := c.authHeader(); authz != "" {
		header.Set("Sec-WebSocket-Protocol", BearerSubprotocol(authz))
	}
	header.Set("User-Agent", c.userAgent)
	conn, resp, err := c.ws.DialContext(ctx, c.LiveDataURL(topic), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			apiErr := statusError("live_data", resp.StatusCode, errorBody{})
			apiErr.Err = err
			if resp.StatusCode == http.StatusUnauthorized && c.auth != nil {
				_ = c.auth.Logout(ctx)
			}
			return nil, apiErr
		}
		return nil, transportError("live_data", err)
	}
	return &liveConn{conn: conn}, nil
}

var _ live.Dialer = (*Client)(nil)

// liveConn decodes {"value": ...} envelopes.
type liveConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

type liveEnvelope struct {
	Value json.RawMessage `json:"value"`
}

func (c *liveConn) Next() (string, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		var env liveEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		return envelopeText(env.Value), nil
	}
}

// envelopeText shows strings without quotes and anything else as JSON.
func envelopeText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if len(raw) == 0 {
		return "undefined"
	}
	return string(raw)
}

func (c *liveConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
