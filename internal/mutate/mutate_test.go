package mutate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wayfare.org/internal/notify"
)

type fakeTarget struct {
	mu     sync.Mutex
	values map[string]bool
}

func newFakeTarget(initial map[string]bool) *fakeTarget {
	return &fakeTarget{values: initial}
}

func (t *fakeTarget) tkey(entityID string, action ActionKind) string {
	return entityID + "/" + string(action)
}

func (t *fakeTarget) Get(entityID string, action ActionKind) (bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.values[t.tkey(entityID, action)]
	return v, ok
}

func (t *fakeTarget) Apply(entityID string, action ActionKind, value bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[t.tkey(entityID, action)] = value
}

type fakeRemote struct {
	mu      sync.Mutex
	fail    bool
	block   chan struct{}
	adds    int
	removes int
	idems   []string
}

func (r *fakeRemote) Add(ctx context.Context, entityID string, action ActionKind, idem string) error {
	return r.record(&r.adds, idem)
}

func (r *fakeRemote) Remove(ctx context.Context, entityID string, action ActionKind, idem string) error {
	return r.record(&r.removes, idem)
}

func (r *fakeRemote) record(counter *int, idem string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	*counter++
	r.idems = append(r.idems, idem)
	if r.fail {
		return errors.New("server rejected the change")
	}
	return nil
}

func TestToggleOnFlipsAndConfirms(t *testing.T) {
	target := newFakeTarget(map[string]bool{"s-1/like": false})
	remote := &fakeRemote{}
	e := NewEngine(remote, target, notify.NewHub())

	if err := e.Toggle(context.Background(), "s-1", ActionLike); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if v, _ := target.Get("s-1", ActionLike); !v {
		t.Fatalf("value was not flipped on")
	}
	if remote.adds != 1 || remote.removes != 0 {
		t.Fatalf("remote calls = %d adds, %d removes", remote.adds, remote.removes)
	}
	if len(remote.idems) != 1 || remote.idems[0] == "" {
		t.Fatalf("toggle must carry an idempotency key: %v", remote.idems)
	}
}

func TestToggleOffCallsRemove(t *testing.T) {
	target := newFakeTarget(map[string]bool{"s-1/favorite": true})
	remote := &fakeRemote{}
	e := NewEngine(remote, target, notify.NewHub())

	if err := e.Toggle(context.Background(), "s-1", ActionFavorite); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if v, _ := target.Get("s-1", ActionFavorite); v {
		t.Fatalf("value was not flipped off")
	}
	if remote.removes != 1 {
		t.Fatalf("removes = %d, want 1", remote.removes)
	}
}

func TestRejectedToggleRollsBack(t *testing.T) {
	for _, initial := range []bool{false, true} {
		target := newFakeTarget(map[string]bool{"s-1/like": initial})
		remote := &fakeRemote{fail: true}
		hub := notify.NewHub()
		e := NewEngine(remote, target, hub)

		if err := e.Toggle(context.Background(), "s-1", ActionLike); err == nil {
			t.Fatalf("initial=%v: expected error from rejected toggle", initial)
		}
		if v, _ := target.Get("s-1", ActionLike); v != initial {
			t.Fatalf("initial=%v: rollback did not restore the value, got %v", initial, v)
		}
		recent := hub.Recent()
		if len(recent) != 1 || recent[0].Kind != notify.KindTransient {
			t.Fatalf("initial=%v: notices = %+v", initial, recent)
		}
	}
}

func TestDuplicateToggleIsDroppedWhileInFlight(t *testing.T) {
	target := newFakeTarget(map[string]bool{"s-1/like": false})
	remote := &fakeRemote{block: make(chan struct{})}
	e := NewEngine(remote, target, notify.NewHub())

	done := make(chan error, 1)
	go func() { done <- e.Toggle(context.Background(), "s-1", ActionLike) }()

	deadline := time.Now().Add(time.Second)
	for !e.InFlight("s-1", ActionLike) {
		if time.Now().After(deadline) {
			t.Fatalf("first toggle never became in-flight")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := e.Toggle(context.Background(), "s-1", ActionLike); !errors.Is(err, ErrInFlight) {
		t.Fatalf("duplicate toggle = %v, want ErrInFlight", err)
	}
	if v, _ := target.Get("s-1", ActionLike); !v {
		t.Fatalf("duplicate toggle disturbed the optimistic value")
	}

	close(remote.block)
	if err := <-done; err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if remote.adds != 1 {
		t.Fatalf("adds = %d, the duplicate must not reach the server", remote.adds)
	}
	if e.InFlight("s-1", ActionLike) {
		t.Fatalf("in-flight guard leaked after completion")
	}
}

func TestIndependentActionsDoNotBlockEachOther(t *testing.T) {
	target := newFakeTarget(map[string]bool{
		"s-1/like":     false,
		"s-1/favorite": false,
	})
	remote := &fakeRemote{block: make(chan struct{})}
	e := NewEngine(remote, target, notify.NewHub())

	go e.Toggle(context.Background(), "s-1", ActionLike)
	deadline := time.Now().Add(time.Second)
	for !e.InFlight("s-1", ActionLike) {
		if time.Now().After(deadline) {
			t.Fatalf("like toggle never became in-flight")
		}
		time.Sleep(2 * time.Millisecond)
	}

	// A different action on the same entity is its own lane.
	if e.InFlight("s-1", ActionFavorite) {
		t.Fatalf("favorite lane blocked by like lane")
	}
	close(remote.block)
}

func TestToggleWithoutLoadedEntity(t *testing.T) {
	e := NewEngine(&fakeRemote{}, newFakeTarget(map[string]bool{}), notify.NewHub())
	if err := e.Toggle(context.Background(), "missing", ActionLike); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("err = %v, want ErrNoTarget", err)
	}
}
