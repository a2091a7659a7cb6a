package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wayfare.org/internal/credential"
	"wayfare.org/internal/notify"
	"wayfare.org/internal/token"
)

type doerFunc func(req *http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func statusResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("{}")),
		Header:     make(http.Header),
	}
}

func testToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "u-1",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func newTestClient(store *credential.Store, hub *notify.Hub, d Doer, opts ...Option) *Client {
	eps := NewEndpoints("http://primary.test", "http://standby.test")
	opts = append([]Option{WithDoer(d)}, opts...)
	return New(eps, store, nil, hub, opts...)
}

func TestDoAttachesBearerToken(t *testing.T) {
	store := credential.NewStore(nil)
	raw := testToken(t, time.Now().Add(time.Hour))
	if err := store.Set(credential.Credential{Token: raw}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var auth, reqID string
	c := newTestClient(store, notify.NewHub(), doerFunc(func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")
		reqID = req.Header.Get("X-Request-ID")
		return okResponse(`{"ok":true}`), nil
	}))

	if _, err := c.Do(context.Background(), http.MethodGet, "/api/scenery/1", nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if auth != "Bearer "+raw {
		t.Fatalf("authorization = %q", auth)
	}
	if reqID == "" {
		t.Fatalf("requests must carry X-Request-ID")
	}
}

func TestDoSkipsCredentialForStaticAssets(t *testing.T) {
	store := credential.NewStore(nil)
	if err := store.Set(credential.Credential{Token: testToken(t, time.Now().Add(time.Hour))}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var auth string
	c := newTestClient(store, notify.NewHub(), doerFunc(func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")
		return okResponse("img"), nil
	}))

	if _, err := c.Do(context.Background(), http.MethodGet, "/assets/cover.png?v=2", nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if auth != "" {
		t.Fatalf("static asset request carried Authorization %q", auth)
	}
}

func TestDoPurgesMalformedToken(t *testing.T) {
	store := credential.NewStore(nil)
	if err := store.Set(credential.Credential{Token: "garbage"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	hub := notify.NewHub()

	var auth string
	c := newTestClient(store, hub, doerFunc(func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")
		return okResponse("{}"), nil
	}))

	if _, err := c.Do(context.Background(), http.MethodGet, "/api/scenery/1", nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if auth != "" {
		t.Fatalf("malformed token was still attached: %q", auth)
	}
	if store.Token() != "" {
		t.Fatalf("malformed token survived in the store")
	}
	recent := hub.Recent()
	if len(recent) != 1 || recent[0].Kind != notify.KindSessionExpired {
		t.Fatalf("notices = %+v, want one session-expired warning", recent)
	}
}

func TestDoPurgesOversizedToken(t *testing.T) {
	// Structurally a JWT, but far past the length ceiling.
	oversized := "a." + strings.Repeat("b", 4500) + ".c"
	store := credential.NewStore(nil)
	if err := store.Set(credential.Credential{Token: oversized}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	hub := notify.NewHub()

	var auth string
	c := newTestClient(store, hub, doerFunc(func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")
		return okResponse("{}"), nil
	}))

	if _, err := c.Do(context.Background(), http.MethodGet, "/api/scenery/1", nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if auth != "" {
		t.Fatalf("oversized token went over the wire: %d chars", len(auth))
	}
	if store.Token() != "" {
		t.Fatalf("oversized token survived in the store")
	}
}

func TestDoRefreshesExpiringToken(t *testing.T) {
	fresh := testToken(t, time.Now().Add(2*time.Hour))
	stale := testToken(t, time.Now().Add(4*time.Minute))

	refreshSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/refresh-token" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": fresh})
	}))
	defer refreshSrv.Close()

	store := credential.NewStore(nil)
	if err := store.Set(credential.Credential{Token: stale}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tokens := token.NewManager(store, refreshSrv.Client(), func() string { return refreshSrv.URL })

	var auth string
	eps := NewEndpoints("http://primary.test", "http://standby.test")
	c := New(eps, store, tokens, notify.NewHub(), WithDoer(doerFunc(func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")
		return okResponse("{}"), nil
	})))

	if _, err := c.Do(context.Background(), http.MethodGet, "/api/scenery/1", nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if auth != "Bearer "+fresh {
		t.Fatalf("expiring token was not refreshed before the request")
	}
	if store.Token() != fresh {
		t.Fatalf("refreshed token was not stored")
	}
}

func TestUnauthorizedPurgesSessionAndRedirects(t *testing.T) {
	store := credential.NewStore(nil)
	if err := store.Set(credential.Credential{Token: testToken(t, time.Now().Add(time.Hour))}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	hub := notify.NewHub()
	c := newTestClient(store, hub, doerFunc(func(req *http.Request) (*http.Response, error) {
		return statusResponse(http.StatusUnauthorized), nil
	}), WithRoute(func() string { return "/scenery/42" }))

	_, err := c.Do(context.Background(), http.MethodGet, "/api/scenery/42", nil)
	terr, ok := err.(*Error)
	if !ok || terr.Kind != KindAuth {
		t.Fatalf("err = %v, want auth error", err)
	}
	if store.Token() != "" {
		t.Fatalf("session survived a 401")
	}
	recent := hub.Recent()
	if len(recent) != 1 || recent[0].Kind != notify.KindSessionExpired {
		t.Fatalf("notices = %+v", recent)
	}
	if recent[0].RedirectTo != "/login?redirect=%2Fscenery%2F42" {
		t.Fatalf("redirectTo = %q", recent[0].RedirectTo)
	}
}

func TestUnauthorizedOnAuthRouteDoesNotRedirect(t *testing.T) {
	store := credential.NewStore(nil)
	hub := notify.NewHub()
	c := newTestClient(store, hub, doerFunc(func(req *http.Request) (*http.Response, error) {
		return statusResponse(http.StatusUnauthorized), nil
	}), WithRoute(func() string { return "/login" }))

	if _, err := c.Do(context.Background(), http.MethodPost, "/auth/login", []byte(`{}`)); err == nil {
		t.Fatalf("expected auth error")
	}
	recent := hub.Recent()
	if len(recent) != 1 {
		t.Fatalf("notices = %+v", recent)
	}
	if recent[0].RedirectTo != "" {
		t.Fatalf("redirect loop: 401 on the login route scheduled %q", recent[0].RedirectTo)
	}
}

func TestStatusPolicies(t *testing.T) {
	cases := []struct {
		status   int
		wantKind notify.Kind
		wantErr  Kind
	}{
		{http.StatusForbidden, notify.KindForbidden, KindForbidden},
		{http.StatusNotFound, notify.KindNotFound, KindNotFound},
		{http.StatusInternalServerError, notify.KindServerError, KindServer},
		{http.StatusBadGateway, notify.KindServerError, KindServer},
	}
	for _, tc := range cases {
		hub := notify.NewHub()
		c := newTestClient(credential.NewStore(nil), hub, doerFunc(func(req *http.Request) (*http.Response, error) {
			return statusResponse(tc.status), nil
		}))
		_, err := c.Do(context.Background(), http.MethodGet, "/api/scenery/1", nil)
		terr, ok := err.(*Error)
		if !ok || terr.Kind != tc.wantErr {
			t.Fatalf("status %d: err = %v, want kind %q", tc.status, err, tc.wantErr)
		}
		recent := hub.Recent()
		if len(recent) != 1 || recent[0].Kind != tc.wantKind {
			t.Fatalf("status %d: notices = %+v, want %q", tc.status, recent, tc.wantKind)
		}
	}
}

func TestClientErrorPublishesNoNotice(t *testing.T) {
	hub := notify.NewHub()
	c := newTestClient(credential.NewStore(nil), hub, doerFunc(func(req *http.Request) (*http.Response, error) {
		return statusResponse(http.StatusUnprocessableEntity), nil
	}))
	if _, err := c.Do(context.Background(), http.MethodPost, "/api/comments", []byte(`{}`)); err == nil {
		t.Fatalf("expected client error")
	}
	if got := hub.Recent(); len(got) != 0 {
		t.Fatalf("4xx validation errors should stay silent, got %+v", got)
	}
}

func TestDoJSONRoundTrip(t *testing.T) {
	c := newTestClient(credential.NewStore(nil), notify.NewHub(), doerFunc(func(req *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(req.Body)
		if string(b) != `{"name":"lake"}` {
			t.Errorf("request body = %s", b)
		}
		return okResponse(`{"id":7}`), nil
	}))

	var out struct {
		ID int `json:"id"`
	}
	err := c.DoJSON(context.Background(), http.MethodPost, "/api/scenery", map[string]string{"name": "lake"}, &out)
	if err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if out.ID != 7 {
		t.Fatalf("out = %+v", out)
	}
}
