package travel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"wayfare.org/internal/credential"
	"wayfare.org/internal/mutate"
	"wayfare.org/internal/obs"
	"wayfare.org/internal/token"
	"wayfare.org/internal/transport"
)

// Service talks to the travel API through the transport pipeline.
type Service struct {
	client *transport.Client
	store  *credential.Store
}

// NewService wires the service over the shared transport client.
func NewService(client *transport.Client, store *credential.Store) *Service {
	return &Service{client: client, store: store}
}

// Scenery loads the full detail record for one spot.
func (s *Service) Scenery(ctx context.Context, id string) (Scenery, error) {
	raw, err := s.client.Do(ctx, http.MethodGet, "/api/scenery/"+url.PathEscape(id), nil)
	if err != nil {
		return Scenery{}, err
	}
	return SceneryFromJSON(raw)
}

// Nearby loads the abbreviated cards shown next to a spot.
func (s *Service) Nearby(ctx context.Context, id string) ([]SceneryRef, error) {
	raw, err := s.client.Do(ctx, http.MethodGet, "/api/scenery/"+url.PathEscape(id)+"/nearby", nil)
	if err != nil {
		return nil, err
	}
	return SceneryListFromJSON(raw)
}

// Comments loads one page of visitor comments for a spot.
func (s *Service) Comments(ctx context.Context, id string, page, pageSize int) (CommentPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	raw, err := s.client.Do(ctx, http.MethodGet, "/api/scenery/"+url.PathEscape(id)+"/comments?"+q.Encode(), nil)
	if err != nil {
		return CommentPage{}, err
	}
	return CommentPageFromJSON(raw)
}

// actionPath maps a toggle to its endpoint.
func actionPath(entityID string, action mutate.ActionKind) (string, error) {
	switch action {
	case mutate.ActionLike:
		return "/api/scenery/" + url.PathEscape(entityID) + "/like", nil
	case mutate.ActionFavorite:
		return "/api/scenery/" + url.PathEscape(entityID) + "/favorite", nil
	default:
		return "", fmt.Errorf("travel: unknown action %q", action)
	}
}

type actionBody struct {
	IdempotencyKey string `json:"idempotencyKey"`
}

// Add turns a toggle on server-side. Together with Remove this makes the
// service the remote half of the optimistic mutation engine.
func (s *Service) Add(ctx context.Context, entityID string, action mutate.ActionKind, idemKey string) error {
	p, err := actionPath(entityID, action)
	if err != nil {
		return err
	}
	return s.client.DoJSON(ctx, http.MethodPost, p, actionBody{IdempotencyKey: idemKey}, nil)
}

// Remove turns a toggle off server-side.
func (s *Service) Remove(ctx context.Context, entityID string, action mutate.ActionKind, idemKey string) error {
	p, err := actionPath(entityID, action)
	if err != nil {
		return err
	}
	return s.client.DoJSON(ctx, http.MethodDelete, p, actionBody{IdempotencyKey: idemKey}, nil)
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"user"`
}

// Login exchanges credentials for a session and stores it.
func (s *Service) Login(ctx context.Context, username, password string) (*credential.Credential, error) {
	var resp loginResponse
	body := map[string]string{"username": username, "password": password}
	if err := s.client.DoJSON(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	if err := token.WellFormed(resp.Token); err != nil {
		return nil, fmt.Errorf("login returned unusable token: %w", err)
	}
	cred := credential.Credential{
		Token:     resp.Token,
		ExpiresAt: token.ExpiresAt(resp.Token),
		Principal: credential.Principal{ID: resp.User.ID, Name: resp.User.Name, Role: resp.User.Role},
	}
	if claims, err := token.Decode(resp.Token); err == nil {
		if cred.Principal.ID == "" {
			cred.Principal = claims.Principal()
		}
		if claims.IssuedAt != nil {
			cred.IssuedAt = claims.IssuedAt.Time
		}
	}
	if err := s.store.Set(cred); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	obs.LogEvent(map[string]any{"event": "login", "user": cred.Principal.ID})
	return &cred, nil
}

// Logout tells the server best-effort and always drops the local session.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.client.DoJSON(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		obs.LogEvent(map[string]any{"event": "logout_remote_failed", "error": err.Error()})
	}
	return s.store.Clear()
}

// Health pings the active endpoint.
func (s *Service) Health(ctx context.Context) error {
	_, err := s.client.Do(ctx, http.MethodGet, "/health", nil)
	return err
}
