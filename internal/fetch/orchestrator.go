package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"wayfare.org/internal/obs"
	"wayfare.org/internal/transport"
)

const (
	// MaxRetries is the failure budget of one load cycle: once the retry
	// count reaches it, the fetch goes terminal until a manual refresh.
	MaxRetries = 3
	// RetryDelay is the pause before an automatic retry.
	RetryDelay = 2 * time.Second
	// AttemptWatchdog bounds a single fetch attempt. A timed-out attempt
	// fails through the normal path and counts toward the retry budget.
	AttemptWatchdog = 10 * time.Second
	// LoadCeiling is the hard stop for one load cycle, retries included.
	LoadCeiling = 15 * time.Second
)

// Orchestrator drives the request lifecycle for one entity: it runs the
// fetch, tracks the state machine, retries bounded, and keeps the last good
// snapshot across failed refreshes.
type Orchestrator[T any] struct {
	mu       sync.Mutex
	name     string
	fetch    func(ctx context.Context) (T, error)
	state    State
	snapshot *T

	// gen invalidates timers and in-flight results once a manual refresh
	// supersedes them.
	gen int

	ctx          context.Context
	retryTimer   *time.Timer
	ceilingTimer *time.Timer

	cfg config
}

// config collects the knobs shared by Orchestrator and Loader. Tests shrink
// the timings; production code keeps the defaults.
type config struct {
	watchdog   time.Duration
	ceiling    time.Duration
	retryDelay time.Duration
	maxRetries int
	window     time.Duration
	onChange   func(State)
}

func defaultConfig() config {
	return config{
		watchdog:   AttemptWatchdog,
		ceiling:    LoadCeiling,
		retryDelay: RetryDelay,
		maxRetries: MaxRetries,
		window:     DebounceWindow,
	}
}

// Option customises timing and callbacks, mainly for tests.
type Option func(*config)

func WithWatchdog(d time.Duration) Option {
	return func(c *config) { c.watchdog = d }
}

func WithCeiling(d time.Duration) Option {
	return func(c *config) { c.ceiling = d }
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *config) { c.retryDelay = d }
}

func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithWindow overrides the debounce window of a Loader.
func WithWindow(d time.Duration) Option {
	return func(c *config) { c.window = d }
}

// WithOnChange registers a callback invoked after every state transition.
func WithOnChange(fn func(State)) Option {
	return func(c *config) { c.onChange = fn }
}

// NewOrchestrator creates an idle orchestrator for the named entity.
func NewOrchestrator[T any](name string, fetch func(ctx context.Context) (T, error), opts ...Option) *Orchestrator[T] {
	o := &Orchestrator[T]{
		name:  name,
		fetch: fetch,
		state: State{Phase: PhaseIdle},
		cfg:   defaultConfig(),
	}
	for _, opt := range opts {
		opt(&o.cfg)
	}
	return o
}

// Load starts a fetch unless one is already in flight or data is already
// loaded. Use Refresh to force a reload.
func (o *Orchestrator[T]) Load(ctx context.Context) {
	o.mu.Lock()
	if o.state.Phase == PhaseLoading || o.state.Phase == PhaseSuccess {
		o.mu.Unlock()
		return
	}
	o.beginLocked(ctx)
}

// Refresh cancels whatever is pending and starts a fresh load cycle. Stale
// timers and in-flight results from before the refresh are discarded.
func (o *Orchestrator[T]) Refresh(ctx context.Context) {
	o.mu.Lock()
	o.beginLocked(ctx)
}

// beginLocked starts a new load cycle. The mutex is held on entry and
// released before returning.
func (o *Orchestrator[T]) beginLocked(ctx context.Context) {
	o.gen++
	gen := o.gen
	o.ctx = ctx
	o.stopTimersLocked()
	o.state = State{Phase: PhaseLoading}
	o.ceilingTimer = time.AfterFunc(o.cfg.ceiling, func() { o.ceilingFired(gen) })
	st := o.state
	o.mu.Unlock()

	o.notify(st)
	go o.attempt(ctx, gen)
}

// attempt runs one fetch bounded by the watchdog and reports the result.
func (o *Orchestrator[T]) attempt(ctx context.Context, gen int) {
	actx, cancel := context.WithTimeout(ctx, o.cfg.watchdog)
	defer cancel()
	v, err := o.fetch(actx)
	o.finish(gen, v, err)
}

func (o *Orchestrator[T]) finish(gen int, v T, err error) {
	o.mu.Lock()
	if gen != o.gen || o.state.Phase != PhaseLoading {
		// A refresh or the ceiling superseded this attempt.
		o.mu.Unlock()
		return
	}

	if err == nil {
		o.snapshot = &v
		o.state.Phase = PhaseSuccess
		o.state.Err = ""
		o.state.RetryCount = 0
		o.stopTimersLocked()
		st := o.state
		o.mu.Unlock()
		o.notify(st)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		obs.WatchdogFired(o.name)
	}
	o.state.Err = humanize(err)

	if retryable(err) {
		o.state.RetryCount++
		if o.state.RetryCount < o.cfg.maxRetries {
			obs.FetchRetried(o.name)
			ctx := o.ctx
			o.retryTimer = time.AfterFunc(o.cfg.retryDelay, func() {
				o.mu.Lock()
				if gen != o.gen || o.state.Phase != PhaseLoading {
					o.mu.Unlock()
					return
				}
				o.mu.Unlock()
				o.attempt(ctx, gen)
			})
			st := o.state
			o.mu.Unlock()
			o.notify(st)
			return
		}
	}

	o.state.Phase = PhaseFailed
	o.stopTimersLocked()
	st := o.state
	o.mu.Unlock()
	o.notify(st)
	obs.LogEvent(map[string]any{
		"event":   "fetch_exhausted",
		"entity":  o.name,
		"retries": st.RetryCount,
		"error":   st.Err,
	})
}

// ceilingFired is the hard stop: if the load cycle is still running when the
// ceiling elapses, it fails now, no further retries.
func (o *Orchestrator[T]) ceilingFired(gen int) {
	o.mu.Lock()
	if gen != o.gen || o.state.Phase != PhaseLoading {
		o.mu.Unlock()
		return
	}
	o.state.Phase = PhaseFailed
	if o.state.Err == "" {
		o.state.Err = "request timed out"
	}
	o.stopTimersLocked()
	st := o.state
	o.mu.Unlock()

	obs.WatchdogFired(o.name)
	o.notify(st)
}

func (o *Orchestrator[T]) stopTimersLocked() {
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
	if o.ceilingTimer != nil {
		o.ceilingTimer.Stop()
		o.ceilingTimer = nil
	}
}

func (o *Orchestrator[T]) notify(st State) {
	if o.cfg.onChange != nil {
		o.cfg.onChange(st)
	}
}

// State returns a copy of the current request state.
func (o *Orchestrator[T]) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot returns a copy of the last successful result.
func (o *Orchestrator[T]) Snapshot() (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.snapshot == nil {
		var zero T
		return zero, false
	}
	return *o.snapshot, true
}

// Mutate applies fn to the snapshot in place, if one exists. The optimistic
// mutation engine uses this to flip values before the server confirms.
func (o *Orchestrator[T]) Mutate(fn func(*T)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.snapshot == nil {
		return false
	}
	fn(o.snapshot)
	return true
}

// retryable reports whether a failure is worth another attempt. Auth,
// permission and not-found answers are authoritative; only connectivity
// problems and server errors may clear up on their own.
func retryable(err error) bool {
	var terr *transport.Error
	if errors.As(err, &terr) {
		switch terr.Kind {
		case transport.KindNetwork, transport.KindTimeout, transport.KindServer:
			return true
		default:
			return false
		}
	}
	return true
}

// humanize converts an internal error into the message shown to the user.
func humanize(err error) string {
	var terr *transport.Error
	if errors.As(err, &terr) {
		return terr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return "something went wrong, please try again"
}
