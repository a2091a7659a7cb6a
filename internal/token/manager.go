package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"wayfare.org/internal/credential"
	"wayfare.org/internal/obs"
)

// refreshPath is where the API mints a fresh token for a still-valid session.
const refreshPath = "/auth/refresh-token"

// proactiveRefreshEvery throttles refreshes that are triggered automatically
// while attaching credentials to outgoing requests. Explicit refreshes (login
// and the 401 recovery path) are never throttled.
const proactiveRefreshEvery = 30 * time.Second

// Manager decides when the session token needs refreshing and performs the
// exchange against the API.
type Manager struct {
	store   *credential.Store
	http    *http.Client
	baseURL func() string
	limiter *rate.Limiter
	now     func() time.Time
}

// NewManager wires a manager over the session store. baseURL is a function so
// the manager always follows the currently active endpoint.
func NewManager(store *credential.Store, client *http.Client, baseURL func() string) *Manager {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Manager{
		store:   store,
		http:    client,
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Every(proactiveRefreshEvery), 1),
		now:     time.Now,
	}
}

// NeedsRefresh reports whether the stored token should be traded in before
// the next authenticated request.
func (m *Manager) NeedsRefresh(raw string) bool {
	return IsExpiringSoon(raw, m.now())
}

// AllowProactive reports whether an automatic refresh may run right now.
func (m *Manager) AllowProactive() bool {
	return m.limiter.Allow()
}

type refreshResponse struct {
	Token string `json:"token"`
	User  *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"user"`
}

// Refresh trades raw for a fresh token. On success the new credential is
// stored (and persisted) and returned; on any failure the stored session is
// left exactly as it was and nil is returned alongside the error.
func (m *Manager) Refresh(ctx context.Context, raw string) (*credential.Credential, error) {
	cred, err := m.exchange(ctx, raw)
	if err != nil {
		obs.TokenRefreshed("failure")
		return nil, err
	}
	if err := m.store.Set(*cred); err != nil {
		obs.TokenRefreshed("failure")
		return nil, fmt.Errorf("store refreshed token: %w", err)
	}
	obs.TokenRefreshed("success")
	return cred, nil
}

func (m *Manager) exchange(ctx context.Context, raw string) (*credential.Credential, error) {
	if err := WellFormed(raw); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL()+refreshPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+raw)
	req.Header.Set("Accept", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("refresh token: unexpected status %d", resp.StatusCode)
	}

	var body refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	if err := WellFormed(body.Token); err != nil {
		return nil, fmt.Errorf("refresh returned unusable token: %w", err)
	}

	cred := credential.Credential{
		Token:     body.Token,
		IssuedAt:  m.now().UTC(),
		ExpiresAt: ExpiresAt(body.Token),
	}
	if body.User != nil {
		cred.Principal = credential.Principal{ID: body.User.ID, Name: body.User.Name, Role: body.User.Role}
	} else if claims, err := Decode(body.Token); err == nil {
		cred.Principal = claims.Principal()
	} else if prev := m.store.Get(); prev != nil {
		cred.Principal = prev.Principal
	}
	return &cred, nil
}
