package fakebackend

import (
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Publish sends value to every socket subscribed to topic. It returns the
// number of sockets reached.
func (b *Backend) Publish(topic, value string) int {
	b.liveMu.Lock()
	defer b.liveMu.Unlock()
	n := 0
	for ch := range b.topics[topic] {
		select {
		case ch <- value:
			n++
		default:
		}
	}
	return n
}

// Subscribers returns the number of open sockets on topic.
func (b *Backend) Subscribers(topic string) int {
	b.liveMu.Lock()
	defer b.liveMu.Unlock()
	return len(b.topics[topic])
}

// DropLive closes every socket on topic from the server side.
func (b *Backend) DropLive(topic string) {
	b.liveMu.Lock()
	defer b.liveMu.Unlock()
	for ch := range b.topics[topic] {
		close(ch)
		delete(b.topics[topic], ch)
	}
}

func (b *Backend) subscribe(topic string) chan string {
	ch := make(chan string, 16)
	b.liveMu.Lock()
	defer b.liveMu.Unlock()
	if b.topics[topic] == nil {
		b.topics[topic] = map[chan string]struct{}{}
	}
	b.topics[topic][ch] = struct{}{}
	return ch
}

func (b *Backend) unsubscribe(topic string, ch chan string) {
	b.liveMu.Lock()
	defer b.liveMu.Unlock()
	if _, ok := b.topics[topic][ch]; ok {
		delete(b.topics[topic], ch)
		close(ch)
	}
}

// The browser cannot set headers on a websocket, so credentials travel in
// the subprotocol as "bearer" + hex("Bearer <token>").
func (b *Backend) handleLiveData(w http.ResponseWriter, r *http.Request) {
	protos := websocket.Subprotocols(r)
	authz := ""
	for _, p := range protos {
		if rest, ok := strings.CutPrefix(p, "bearer"); ok {
			if raw, err := hex.DecodeString(rest); err == nil {
				authz = string(raw)
			}
		}
	}
	if _, ok := b.userFromHeader(authz); !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeMessage(w, http.StatusBadRequest, "topic is required")
		return
	}

	upgrader := websocket.Upgrader{Subprotocols: protos, CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := b.subscribe(topic)
	defer b.unsubscribe(topic, ch)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		_ = conn.Close()
		<-closed
	}()

	for {
		select {
		case v, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "topic closed"), time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(map[string]any{"value": v}); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
