// Package transport is the single road between the client and the API.
// Every request passes through the same pipeline: credential attachment,
// the exchange itself, classification of the outcome, and the status-policy
// side effects the rest of the app reacts to.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"wayfare.org/internal/credential"
	"wayfare.org/internal/ids"
	"wayfare.org/internal/notify"
	"wayfare.org/internal/obs"
	"wayfare.org/internal/token"
)

// Doer is the slice of *http.Client the pipeline needs. Tests swap it for a
// scripted implementation.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxBodyBytes bounds how much of a response the client will read.
const maxBodyBytes = 4 << 20

// Client runs the request pipeline against the currently active endpoint.
type Client struct {
	http      Doer
	endpoints *Endpoints
	store     *credential.Store
	tokens    *token.Manager
	failover  *Failover
	notices   *notify.Hub
	route     func() string
}

// Option customises a Client.
type Option func(*Client)

// WithDoer replaces the underlying HTTP client.
func WithDoer(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithRoute tells the pipeline what route the user is currently on, so a
// session-expired redirect can bring them back after signing in.
func WithRoute(route func() string) Option {
	return func(c *Client) { c.route = route }
}

// New wires the pipeline. tokens may be nil when the caller never
// authenticates (health probes, smoke tools).
func New(endpoints *Endpoints, store *credential.Store, tokens *token.Manager, notices *notify.Hub, opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: 15 * time.Second},
		endpoints: endpoints,
		store:     store,
		tokens:    tokens,
		notices:   notices,
		route:     func() string { return "" },
	}
	for _, opt := range opts {
		opt(c)
	}
	c.failover = NewFailover(endpoints, c.http, notices)
	return c
}

// Endpoints exposes the endpoint pair, mainly for wiring and logging.
func (c *Client) Endpoints() *Endpoints { return c.endpoints }

// Do runs one request through the pipeline and returns the response body.
// Non-2xx responses and transport failures come back as *Error after their
// status policy has been applied.
func (c *Client) Do(ctx context.Context, method, reqPath string, body []byte) ([]byte, error) {
	done := obs.RequestStarted(method, reqPath)
	out, status, err := c.exchange(ctx, method, reqPath, body, false)
	done(status)
	return out, err
}

// DoJSON marshals in (when non-nil), runs the request, and unmarshals the
// response into out (when non-nil).
func (c *Client) DoJSON(ctx context.Context, method, reqPath string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}
	raw, err := c.Do(ctx, method, reqPath, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// exchange performs one attempt, retrying at most once after a successful
// endpoint failover. retried guards the recursion: a request never fails
// over twice.
func (c *Client) exchange(ctx context.Context, method, reqPath string, body []byte, retried bool) ([]byte, int, error) {
	req, err := c.buildRequest(ctx, method, reqPath, body)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cls := Classify(err, 0)
		if ctx.Err() != nil {
			// The caller gave up; probing the standby now would only fail
			// against the same dead context.
			return nil, 0, cls
		}
		if !retried && c.failover.TryFailover(ctx) {
			return c.exchange(ctx, method, reqPath, body, true)
		}
		if retried && c.notices != nil {
			// TryFailover covers the notice on the first attempt.
			c.notices.Publish(notify.Notice{
				Kind:     notify.KindConnectivity,
				Severity: notify.SeverityError,
				Message:  cls.Message,
			})
		}
		return nil, 0, cls
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, Classify(err, 0)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return out, resp.StatusCode, nil
	}

	applyPolicy(c, resp.StatusCode)
	return nil, resp.StatusCode, Classify(nil, resp.StatusCode)
}

func (c *Client) buildRequest(ctx context.Context, method, reqPath string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoints.Active()+reqPath, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", ids.New())
	c.attachCredential(ctx, req, reqPath)
	return req, nil
}

// attachCredential adds the Authorization header when a usable token exists.
// A request without a token simply goes out unauthenticated; the server
// answers 401 and the status policy takes it from there.
func (c *Client) attachCredential(ctx context.Context, req *http.Request, reqPath string) {
	if isStaticAsset(reqPath) {
		return
	}
	raw := c.store.Token()
	if raw == "" {
		return
	}
	if err := token.WellFormed(raw); err != nil {
		// A garbled token would be rejected anyway; drop it now and tell the
		// user instead of sending junk with every request.
		if clearErr := c.store.Clear(); clearErr != nil {
			obs.LogEvent(map[string]any{"event": "session_purge_failed", "error": clearErr.Error()})
		}
		if c.notices != nil {
			c.notices.Publish(notify.Notice{
				Kind:     notify.KindSessionExpired,
				Severity: notify.SeverityWarning,
				Message:  "your sign-in data was invalid, please sign in again",
			})
		}
		return
	}
	if c.tokens != nil && c.tokens.NeedsRefresh(raw) && c.tokens.AllowProactive() {
		if cred, err := c.tokens.Refresh(ctx, raw); err == nil {
			raw = cred.Token
		}
		// On refresh failure the original token still goes out: the server
		// is the final judge of whether it is usable.
	}
	req.Header.Set("Authorization", "Bearer "+raw)
}

// isStaticAsset reports whether the path points at a bundled asset, which
// never needs credentials.
func isStaticAsset(reqPath string) bool {
	p := reqPath
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".css", ".js", ".map", ".woff", ".woff2":
		return true
	}
	return false
}
