package fetch

import (
	"context"
	"sync"
	"time"
)

// DebounceWindow is how long the loader waits for pagination input to settle
// before issuing a request.
const DebounceWindow = 400 * time.Millisecond

// PageRequest identifies one page of a paginated collection.
type PageRequest struct {
	ParentID string
	Page     int
	PageSize int
}

// Cursor is the pagination position that came back with a page.
type Cursor struct {
	Page     int
	PageSize int
	Total    int
}

// Loader debounces page requests and keeps the last successfully loaded page.
// Rapid page flips coalesce into a single request for the final page; a
// failed page load keeps the previous page on screen.
type Loader[T any] struct {
	mu    sync.Mutex
	name  string
	fetch func(ctx context.Context, req PageRequest) (T, Cursor, error)

	timer   *time.Timer
	pending *PageRequest
	last    *PageRequest
	gen     int

	state    State
	snapshot *T
	cursor   Cursor
	cfg      config
}

// NewLoader creates an idle loader for the named collection.
func NewLoader[T any](name string, fetch func(ctx context.Context, req PageRequest) (T, Cursor, error), opts ...Option) *Loader[T] {
	l := &Loader[T]{
		name:  name,
		fetch: fetch,
		state: State{Phase: PhaseIdle},
		cfg:   defaultConfig(),
	}
	for _, opt := range opts {
		opt(&l.cfg)
	}
	return l
}

// LoadPage schedules a page load. Calls arriving within the debounce window
// replace the pending request, so only the last requested page is fetched.
func (l *Loader[T]) LoadPage(ctx context.Context, req PageRequest) {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	l.pending = &req
	l.last = &req
	l.state.Phase = PhaseLoading
	l.state.Err = ""
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.cfg.window, func() { l.fire(ctx, gen) })
	st := l.state
	l.mu.Unlock()
	l.notify(st)
}

// Refresh re-issues the pending or last loaded page immediately, skipping
// the debounce window.
func (l *Loader[T]) Refresh(ctx context.Context) {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	if l.pending == nil {
		// Re-issue the last page the user asked for, even if it failed.
		if l.last != nil {
			req := *l.last
			l.pending = &req
		} else {
			req := PageRequest{Page: l.cursor.Page, PageSize: l.cursor.PageSize}
			l.pending = &req
		}
	}
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.state.Phase = PhaseLoading
	l.state.Err = ""
	st := l.state
	l.mu.Unlock()
	l.notify(st)
	go l.fire(ctx, gen)
}

func (l *Loader[T]) fire(ctx context.Context, gen int) {
	l.mu.Lock()
	if gen != l.gen || l.pending == nil {
		l.mu.Unlock()
		return
	}
	req := *l.pending
	l.mu.Unlock()

	v, cursor, err := l.fetch(ctx, req)

	l.mu.Lock()
	if gen != l.gen {
		// A newer page request superseded this one while it was in flight.
		l.mu.Unlock()
		return
	}
	l.pending = nil
	if err != nil {
		// Keep the previous page; only the state reflects the failure.
		l.state.Phase = PhaseFailed
		l.state.Err = humanize(err)
	} else {
		l.snapshot = &v
		l.cursor = cursor
		l.state.Phase = PhaseSuccess
		l.state.Err = ""
	}
	st := l.state
	l.mu.Unlock()
	l.notify(st)
}

func (l *Loader[T]) notify(st State) {
	if l.cfg.onChange != nil {
		l.cfg.onChange(st)
	}
}

// State returns a copy of the loader state.
func (l *Loader[T]) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Snapshot returns the last successfully loaded page and its cursor.
func (l *Loader[T]) Snapshot() (T, Cursor, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snapshot == nil {
		var zero T
		return zero, Cursor{}, false
	}
	return *l.snapshot, l.cursor, true
}
