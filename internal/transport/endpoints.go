package transport

import (
	"os"
	"strings"
	"sync"
)

const (
	envAPIBase    = "WAYFARE_API_BASE"
	envAPIStandby = "WAYFARE_API_STANDBY"

	defaultPrimary   = "http://localhost:5000"
	defaultSecondary = "http://localhost:5001"
)

// Endpoints tracks the primary and standby API base URLs and which of the
// two is currently active.
type Endpoints struct {
	mu        sync.RWMutex
	primary   string
	secondary string
	active    string
}

// NewEndpoints creates the pair with the primary active.
func NewEndpoints(primary, secondary string) *Endpoints {
	primary = strings.TrimRight(primary, "/")
	secondary = strings.TrimRight(secondary, "/")
	return &Endpoints{primary: primary, secondary: secondary, active: primary}
}

// EndpointsFromEnv reads WAYFARE_API_BASE / WAYFARE_API_STANDBY and falls
// back to the development defaults.
func EndpointsFromEnv() *Endpoints {
	primary := strings.TrimSpace(os.Getenv(envAPIBase))
	if primary == "" {
		primary = defaultPrimary
	}
	secondary := strings.TrimSpace(os.Getenv(envAPIStandby))
	if secondary == "" {
		secondary = defaultSecondary
	}
	return NewEndpoints(primary, secondary)
}

// Active returns the base URL requests currently target.
func (e *Endpoints) Active() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// Standby returns the base URL that is not currently active.
func (e *Endpoints) Standby() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.active == e.primary {
		return e.secondary
	}
	return e.primary
}

// Rebind makes the standby the active endpoint and reports the new active
// base URL.
func (e *Endpoints) Rebind() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == e.primary {
		e.active = e.secondary
	} else {
		e.active = e.primary
	}
	return e.active
}
