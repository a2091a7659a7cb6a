// Package token inspects and refreshes access tokens on the client side.
//
// The client never verifies signatures: the server is the authority and the
// claims are only read to decide when a refresh is due. Anything that cannot
// be decoded is treated as expired, so a garbled token triggers a refresh (or
// a sign-out) instead of silently riding along.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wayfare.org/internal/credential"
)

const (
	// ExpirySlack is how long before the recorded expiry a token is already
	// considered stale. Refreshing ahead of the deadline keeps an in-flight
	// request from straddling the expiry instant.
	ExpirySlack = 5 * time.Minute

	// MaxEncodedLength bounds the encoded token. Anything longer would be
	// rejected by the server's header limits, so it is treated as garbage
	// before it ever reaches the wire.
	MaxEncodedLength = 4000
)

var (
	ErrMalformed = errors.New("token: malformed token")
	ErrOversized = errors.New("token: token exceeds length ceiling")
)

// Claims carries the subset of JWT claims the client reads.
type Claims struct {
	ID   string `json:"id,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal converts the claims into the session principal.
func (c *Claims) Principal() credential.Principal {
	id := c.ID
	if id == "" {
		id = c.Subject
	}
	return credential.Principal{ID: id, Role: c.Role}
}

// WellFormed reports whether raw is structurally a JWT of acceptable size.
// It does not validate the signature or the claims.
func WellFormed(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrMalformed
	}
	if len(raw) > MaxEncodedLength {
		return ErrOversized
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return ErrMalformed
	}
	for _, p := range parts {
		if p == "" {
			return ErrMalformed
		}
	}
	return nil
}

// Decode extracts the claims without verifying the signature.
func Decode(raw string) (*Claims, error) {
	if err := WellFormed(raw); err != nil {
		return nil, err
	}
	parser := jwt.NewParser()
	var claims Claims
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return nil, ErrMalformed
	}
	return &claims, nil
}

// ExpiresAt returns the expiry recorded in the token, or the zero time when
// the token carries none.
func ExpiresAt(raw string) time.Time {
	claims, err := Decode(raw)
	if err != nil || claims.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.RegisteredClaims.ExpiresAt.Time
}

// IsExpiringSoon reports whether the token is within ExpirySlack of its
// expiry at the given instant. Undecodable tokens and tokens without an
// expiry claim count as expiring: when in doubt, refresh.
func IsExpiringSoon(raw string, now time.Time) bool {
	exp := ExpiresAt(raw)
	if exp.IsZero() {
		return true
	}
	return !now.Add(ExpirySlack).Before(exp)
}
