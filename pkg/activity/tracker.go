// Package activity tracks conversation threads and which of them is selected
// or streaming.
package activity

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrEmptyQuery    = errors.New("query is empty")
	ErrBusy          = errors.New("a response is still streaming")
	ErrUnknownThread = errors.New("unknown thread")
)

type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

type Thread struct {
	ID       uuid.UUID
	Query    string
	Raw      string
	Complete bool
	// Error is set when the stream ended with a transport failure.
	Error string
}

// Tracker is a state machine over the thread list. It is driven from a single
// event loop and does no locking.
type Tracker struct {
	state   State
	running uuid.UUID
	active  uuid.UUID
	threads map[uuid.UUID]*Thread
	order   []uuid.UUID
	spawned map[uuid.UUID]bool
}

func NewTracker() *Tracker {
	return &Tracker{
		threads: map[uuid.UUID]*Thread{},
		spawned: map[uuid.UUID]bool{},
	}
}

func (t *Tracker) State() State {
	return t.state
}

// Begin registers a new thread, starts it running and selects it.
func (t *Tracker) Begin(id uuid.UUID, query string) (*Thread, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if t.state == StateRunning {
		return nil, ErrBusy
	}
	if _, ok := t.threads[id]; ok {
		return nil, errors.Errorf("thread %s already exists", id)
	}

	th := &Thread{ID: id, Query: query}
	t.threads[id] = th
	t.order = append(t.order, id)
	t.state = StateRunning
	t.running = id
	t.selectThread(id)

	return th, nil
}

// Append adds a chunk to the running thread. Chunks for other threads are
// dropped.
func (t *Tracker) Append(id uuid.UUID, delta string) (*Thread, bool) {
	th, ok := t.runningThread(id)
	if !ok {
		return nil, false
	}
	th.Raw += delta
	return th, true
}

// Finish handles the end of stream sentinel.
func (t *Tracker) Finish(id uuid.UUID) (*Thread, bool) {
	th, ok := t.runningThread(id)
	if !ok {
		return nil, false
	}
	th.Complete = true
	t.stop()
	return th, true
}

// Fail handles a transport error.
func (t *Tracker) Fail(id uuid.UUID, msg string) (*Thread, bool) {
	th, ok := t.runningThread(id)
	if !ok {
		return nil, false
	}
	th.Complete = true
	th.Error = msg
	t.stop()
	return th, true
}

// SetActive selects a thread. It is a no-op while a response is streaming or
// for an unknown id, and returns whether the selection changed.
func (t *Tracker) SetActive(id uuid.UUID) bool {
	if t.state == StateRunning {
		return false
	}
	if _, ok := t.threads[id]; !ok {
		return false
	}
	if id == t.active {
		return false
	}
	t.selectThread(id)
	return true
}

func (t *Tracker) Active() (*Thread, bool) {
	th, ok := t.threads[t.active]
	return th, ok
}

func (t *Tracker) IsActive(id uuid.UUID) bool {
	return t.active != uuid.Nil && t.active == id
}

func (t *Tracker) Thread(id uuid.UUID) (*Thread, bool) {
	th, ok := t.threads[id]
	return th, ok
}

// Threads returns the threads in submission order.
func (t *Tracker) Threads() []*Thread {
	ret := make([]*Thread, 0, len(t.order))
	for _, id := range t.order {
		ret = append(ret, t.threads[id])
	}
	return ret
}

func (t *Tracker) Spawned(id uuid.UUID) bool {
	return t.spawned[id]
}

func (t *Tracker) MarkSpawned(id uuid.UUID) {
	t.spawned[id] = true
}

func (t *Tracker) selectThread(id uuid.UUID) {
	if t.active != id {
		t.spawned = map[uuid.UUID]bool{}
	}
	t.active = id
}

func (t *Tracker) runningThread(id uuid.UUID) (*Thread, bool) {
	if t.state != StateRunning || t.running != id {
		return nil, false
	}
	th, ok := t.threads[id]
	return th, ok
}

func (t *Tracker) stop() {
	t.state = StateIdle
	t.running = uuid.Nil
}
