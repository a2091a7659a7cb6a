// Package notify fan-outs user-facing notices produced by the HTTP layer.
package notify

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Kind labels the origin of a notice.
type Kind string

const (
	KindSessionExpired Kind = "session_expired"
	KindForbidden      Kind = "forbidden"
	KindNotFound       Kind = "not_found"
	KindServerError    Kind = "server_error"
	KindConnectivity   Kind = "connectivity"
	KindTransient      Kind = "transient"
)

// Severity ranks how loudly the UI should surface a notice.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notice is a single user-facing message emitted by the client plumbing.
type Notice struct {
	Kind       Kind      `json:"kind"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	RedirectTo string    `json:"redirectTo,omitempty"`
	At         time.Time `json:"at"`
}

const recentLimit = 32

// Hub fan-outs notices to all active subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Notice
	next   int
	recent []Notice
	now    func() time.Time
}

// NewHub initialises an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[int]chan Notice),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber and returns a channel which will receive
// notices. The channel is closed when the provided context ends.
func (h *Hub) Subscribe(ctx context.Context) <-chan Notice {
	ch := make(chan Notice, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish stamps the notice and fan-outs it to all subscribers.
func (h *Hub) Publish(n Notice) {
	h.mu.Lock()
	if n.At.IsZero() {
		n.At = h.now().UTC()
	}
	h.recent = append(h.recent, n)
	if len(h.recent) > recentLimit {
		h.recent = h.recent[len(h.recent)-recentLimit:]
	}
	subs := make([]chan Notice, 0, len(h.subs))
	for _, ch := range h.subs {
		subs = append(subs, ch)
	}
	h.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- n:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Recent returns a copy of the most recently published notices, oldest first.
func (h *Hub) Recent() []Notice {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Notice, len(h.recent))
	copy(out, h.recent)
	return out
}

// IsAuthRoute reports whether the path belongs to the login/register flow,
// where a session-expired redirect would loop.
func IsAuthRoute(path string) bool {
	p := path
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimSuffix(p, "/")
	return p == "/login" || p == "/register"
}

// LoginRedirect builds the login target carrying the current route so the
// user returns where they were after re-authenticating. It returns an empty
// string when the current route is already part of the auth flow.
func LoginRedirect(current string) string {
	if current == "" || IsAuthRoute(current) {
		return ""
	}
	return "/login?redirect=" + url.QueryEscape(current)
}
