// Package credential holds the signed-in session: the raw access token and
// the profile of the user it belongs to.
package credential

import (
	"sync"
	"time"
)

// Principal identifies the signed-in user as far as the client cares.
type Principal struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// Credential is the full session value. It is always replaced as a whole
// so the token and the principal never drift apart.
type Credential struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Principal Principal `json:"principal"`
}

// Persister mirrors the session to durable storage so it survives restarts.
type Persister interface {
	Save(c Credential) error
	Load() (*Credential, error)
	Clear() error
}

// Store is the in-memory source of truth for the current session.
type Store struct {
	mu      sync.RWMutex
	current *Credential
	persist Persister
}

// NewStore creates an empty store. persist may be nil for purely in-memory use.
func NewStore(persist Persister) *Store {
	return &Store{persist: persist}
}

// Restore loads a previously persisted session, if any, into the store.
func (s *Store) Restore() error {
	if s.persist == nil {
		return nil
	}
	c, err := s.persist.Load()
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
	return nil
}

// Set replaces the session as a whole and mirrors it to the persister.
func (s *Store) Set(c Credential) error {
	s.mu.Lock()
	cp := c
	s.current = &cp
	s.mu.Unlock()
	if s.persist == nil {
		return nil
	}
	return s.persist.Save(c)
}

// Get returns a copy of the current session, or nil when signed out.
func (s *Store) Get() *Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// Token returns the raw token, or "" when signed out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// Clear drops the session from memory and durable storage. Both halves are
// removed together so a stale token can never outlive its user.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	if s.persist == nil {
		return nil
	}
	return s.persist.Clear()
}
