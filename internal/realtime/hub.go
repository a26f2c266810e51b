// Package realtime pushes best-effort "something changed" signals to
// browsers over server-sent events. Bursts of posts are coalesced so
// clients re-fetch at most once per throttle interval.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bryan-buckman/buildlog/internal/model"
)

const heartbeat = 30 * time.Second

// Hub fans refresh signals out to subscribers.
type Hub struct {
	logger  *slog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	subs    map[chan struct{}]struct{}
	pending *time.Timer
	closed  bool
	done    chan struct{}
}

// NewHub returns a Hub that signals at most once per throttle.
func NewHub(throttle time.Duration, logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(throttle), 1),
		subs:    make(map[chan struct{}]struct{}),
		done:    make(chan struct{}),
	}
}

// Subscribe registers a listener. Call the returned func to unsubscribe.
func (h *Hub) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// Subscribers returns the number of live listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Notify implements feed.Notifier.
func (h *Hub) Notify(_ context.Context, ev model.PostEvent) {
	h.logger.Debug("refresh requested", "slug", ev.Slug)
	h.Trigger()
}

// Trigger signals subscribers now if the throttle allows, otherwise once
// when it next does. Triggers arriving while a signal is pending are
// folded into it.
func (h *Hub) Trigger() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.pending != nil {
		return
	}
	delay := h.limiter.Reserve().Delay()
	if delay == 0 {
		h.broadcastLocked()
		return
	}
	h.pending = time.AfterFunc(delay, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.pending = nil
		if !h.closed {
			h.broadcastLocked()
		}
	})
}

func (h *Hub) broadcastLocked() {
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close drops any pending signal and ends open streams. Later triggers
// are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	if h.pending != nil {
		h.pending.Stop()
		h.pending = nil
	}
}

// ServeHTTP streams refresh events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	events, unsubscribe := h.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-events:
			fmt.Fprint(w, "event: refresh\ndata: {}\n\n")
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
