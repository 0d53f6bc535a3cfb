package console

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"admintable.org/internal/live"
	"admintable.org/internal/render"
)

// liveEvent is one SSE message for a live value widget. Value and History
// are HTML fragments.
type liveEvent struct {
	State   string        `json:"state"`
	Label   string        `json:"label"`
	Value   template.HTML `json:"value"`
	History template.HTML `json:"history,omitempty"`
}

// live streams one live value to the browser as Server-Sent Events. Each
// stream owns its backend socket; it is closed when the browser goes away.
func (s *Server) live(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topic := q.Get("topic")
	if topic == "" {
		http.Error(w, "topic is required", http.StatusBadRequest)
		return
	}
	withHistory, _ := strconv.ParseBool(q.Get("history"))
	title := q.Get("title")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	opts := []live.Option{live.WithReconnectDelay(s.liveDelay)}
	if withHistory {
		opts = append(opts, live.WithHistory(s.liveHistory))
	}
	sub := live.New(sessionFrom(ctx).data, topic, q.Get("initial"), opts...)
	defer sub.Close()
	updates := sub.Subscribe(ctx)

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for u := range updates {
		ev := liveEvent{
			State: u.State.String(),
			Label: u.State.Label(),
			Value: s.renderer.Scalar(u.Value, title).HTML(),
		}
		if withHistory {
			_, _, entries := sub.Snapshot()
			ev.History = render.Sparkline(entries) + render.HistoryTooltipHTML(entries)
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, live.ErrClosed) {
		s.logger.Info("live subscription ended", zap.String("topic", topic), zap.Error(err))
	}
}
