// Package mutate applies user actions optimistically: the UI flips first,
// the server confirms after, and a failure rolls the flip back.
package mutate

import (
	"context"
	"errors"
	"sync"

	"wayfare.org/internal/ids"
	"wayfare.org/internal/notify"
	"wayfare.org/internal/obs"
)

// ActionKind names a togglable user action on an entity.
type ActionKind string

const (
	ActionLike     ActionKind = "like"
	ActionFavorite ActionKind = "favorite"
)

var (
	// ErrInFlight means the same action on the same entity has not settled
	// yet. The duplicate toggle is dropped without touching any state.
	ErrInFlight = errors.New("mutate: action already in flight")
	// ErrNoTarget means there is no loaded entity to toggle.
	ErrNoTarget = errors.New("mutate: no loaded entity for action")
)

// Remote persists a toggle on the server side.
type Remote interface {
	Add(ctx context.Context, entityID string, action ActionKind, idemKey string) error
	Remove(ctx context.Context, entityID string, action ActionKind, idemKey string) error
}

// Target is the locally held view the engine flips and, on failure, restores.
type Target interface {
	Get(entityID string, action ActionKind) (value bool, ok bool)
	Apply(entityID string, action ActionKind, value bool)
}

type key struct {
	entityID string
	action   ActionKind
}

// Engine serialises toggles per (entity, action) pair and owns the
// flip/confirm/rollback cycle.
type Engine struct {
	mu       sync.Mutex
	inflight map[key]struct{}
	remote   Remote
	target   Target
	notices  *notify.Hub
}

// NewEngine wires an engine over the remote and the local view.
func NewEngine(remote Remote, target Target, notices *notify.Hub) *Engine {
	return &Engine{
		inflight: make(map[key]struct{}),
		remote:   remote,
		target:   target,
		notices:  notices,
	}
}

// Toggle flips the action on the entity. The local view changes immediately;
// if the server rejects the change it is rolled back and a transient notice
// is published. A toggle while the previous one is still settling returns
// ErrInFlight and changes nothing.
func (e *Engine) Toggle(ctx context.Context, entityID string, action ActionKind) error {
	k := key{entityID: entityID, action: action}

	e.mu.Lock()
	if _, busy := e.inflight[k]; busy {
		e.mu.Unlock()
		return ErrInFlight
	}
	before, ok := e.target.Get(entityID, action)
	if !ok {
		e.mu.Unlock()
		return ErrNoTarget
	}
	e.inflight[k] = struct{}{}
	after := !before
	e.target.Apply(entityID, action, after)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inflight, k)
		e.mu.Unlock()
	}()

	var err error
	idem := ids.IdempotencyKey()
	if after {
		err = e.remote.Add(ctx, entityID, action, idem)
	} else {
		err = e.remote.Remove(ctx, entityID, action, idem)
	}
	if err == nil {
		return nil
	}

	e.mu.Lock()
	e.target.Apply(entityID, action, before)
	e.mu.Unlock()
	obs.RollbackApplied()
	if e.notices != nil {
		e.notices.Publish(notify.Notice{
			Kind:     notify.KindTransient,
			Severity: notify.SeverityWarning,
			Message:  "the action could not be saved, please try again",
		})
	}
	return err
}

// InFlight reports whether the action on the entity is still settling.
func (e *Engine) InFlight(entityID string, action ActionKind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.inflight[key{entityID: entityID, action: action}]
	return busy
}
