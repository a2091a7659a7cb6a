// Package fetch keeps remote data and its request lifecycle in one place:
// a state machine per entity, bounded retries, watchdog timers and a
// debounced loader for paginated lists.
package fetch

// Phase is where a tracked request currently stands.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseSuccess Phase = "success"
	PhaseFailed  Phase = "failed"
)

// State is the externally visible request state. Err is a user-facing
// message, empty unless Phase is failed.
type State struct {
	Phase      Phase
	Err        string
	RetryCount int
}

// Loading reports whether a request is currently in flight or retrying.
func (s State) Loading() bool { return s.Phase == PhaseLoading }
