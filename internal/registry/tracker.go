package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/expreg-labs/expreg/internal/entry"
)

// Transition records one run-state change.
type Transition struct {
	Name string         `json:"name"`
	From entry.RunState `json:"from"`
	To   entry.RunState `json:"to"`
	At   time.Time      `json:"at"`
}

// String renders the transition as "NEW_3: unknown -> running".
func (t Transition) String() string {
	return fmt.Sprintf("%s: %s -> %s", t.Name, t.From, t.To)
}

// Tracker owns the single active-run pointer. All state changes go through
// its mutex so that completing the old run and starting the new one are
// observed together.
type Tracker struct {
	mu     sync.Mutex
	active *entry.Entry
	lookup func(name string) (*entry.Entry, bool)
	now    func() time.Time
}

func newTracker(lookup func(string) (*entry.Entry, bool)) *Tracker {
	return &Tracker{lookup: lookup, now: time.Now}
}

// observe registers an entry whose log marker already put it in the
// running state. An earlier running entry is completed.
func (t *Tracker) observe(e *entry.Entry) []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Transition
	if t.active != nil && t.active != e {
		out = append(out, t.set(t.active, entry.StateCompleted))
	}
	t.active = e
	return out
}

// MarkRunning makes name the active run, completing the previous one.
// Marking the already-active entry is a no-op.
func (t *Tracker) MarkRunning(name string) ([]Transition, error) {
	e, ok := t.lookup(name)
	if !ok {
		return nil, fmt.Errorf("mark %s running: %w: %w", name, ErrInvalidTransition, ErrNotFound)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.State() {
	case entry.StateRunning:
		t.active = e
		return nil, nil
	case entry.StateCompleted:
		return nil, fmt.Errorf("mark %s running: %w: entry already completed", name, ErrInvalidTransition)
	}

	var out []Transition
	if t.active != nil && t.active != e {
		out = append(out, t.set(t.active, entry.StateCompleted))
	}
	out = append(out, t.set(e, entry.StateRunning))
	t.active = e
	return out, nil
}

// Complete moves the running entry name to completed.
func (t *Tracker) Complete(name string) (Transition, error) {
	e, ok := t.lookup(name)
	if !ok {
		return Transition{}, fmt.Errorf("complete %s: %w: %w", name, ErrInvalidTransition, ErrNotFound)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if e.State() != entry.StateRunning {
		return Transition{}, fmt.Errorf("complete %s: %w: entry is %s, not running", name, ErrInvalidTransition, e.State())
	}
	tr := t.set(e, entry.StateCompleted)
	if t.active == e {
		t.active = nil
	}
	return tr, nil
}

// ActiveRun returns the running entry, if any.
func (t *Tracker) ActiveRun() (*entry.Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active, t.active != nil
}

// set must be called with mu held.
func (t *Tracker) set(e *entry.Entry, to entry.RunState) Transition {
	tr := Transition{Name: e.Name, From: e.State(), To: to, At: t.now().UTC()}
	e.SetState(to)
	return tr
}
