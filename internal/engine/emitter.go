package engine

import (
	"time"

	"github.com/jonboulle/clockwork"

	"vibebridge/internal/status"
)

// Decay is an automatic transition taken after a state has been held for a
// while with no newer input.
type Decay struct {
	To    status.State
	After time.Duration
}

// DefaultDecays are the display decay rules: start and done settle to idle
// after a minute, idle and notification fall asleep after five.
func DefaultDecays() map[status.State]Decay {
	return map[status.State]Decay{
		status.Start:        {To: status.Idle, After: time.Minute},
		status.Done:         {To: status.Idle, After: time.Minute},
		status.Idle:         {To: status.Sleep, After: 5 * time.Minute},
		status.Notification: {To: status.Sleep, After: 5 * time.Minute},
	}
}

// DefaultDebounce is the minimum spacing between identical emissions.
const DefaultDebounce = 100 * time.Millisecond

// Pending is a scheduled transition.
type Pending struct {
	State status.State
	Extra map[string]any
	At    time.Time
}

// Emitter turns requested transitions into status events for one project.
// It suppresses rapid duplicates and owns the project's single pending
// transition. It is not safe for concurrent use; the bridge loop owns it.
type Emitter struct {
	clock     clockwork.Clock
	project   string
	character string
	debounce  time.Duration
	decays    map[status.State]Decay

	last    status.State
	lastAt  time.Time
	emitted bool
	pending *Pending
}

// NewEmitter creates an emitter. A nil decays map disables decay.
func NewEmitter(clock clockwork.Clock, project, character string, debounce time.Duration, decays map[status.State]Decay) *Emitter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Emitter{
		clock:     clock,
		project:   project,
		character: character,
		debounce:  debounce,
		decays:    decays,
	}
}

// Project returns the project this emitter reports for.
func (e *Emitter) Project() string {
	return e.project
}

// Current returns the last emitted state, or "" before the first emission.
func (e *Emitter) Current() status.State {
	return e.last
}

// LastEmitted returns the time of the last emission.
func (e *Emitter) LastEmitted() time.Time {
	return e.lastAt
}

// Emit requests a transition. It returns false when the request is a
// duplicate of the last emission (same state, no extra) inside the debounce
// window. Otherwise the pending transition is replaced: cancelled, then
// rescheduled if the new state decays.
func (e *Emitter) Emit(state status.State, extra map[string]any) (status.Event, bool) {
	now := e.clock.Now()
	if e.emitted && state == e.last && len(extra) == 0 && now.Sub(e.lastAt) < e.debounce {
		return status.Event{}, false
	}

	ev := status.NewEvent(state, e.project, e.character, now, extra)
	e.last = state
	e.lastAt = now
	e.emitted = true

	e.pending = nil
	if d, ok := e.decays[state]; ok && d.After > 0 {
		e.pending = &Pending{State: d.To, At: now.Add(d.After)}
	}
	return ev, true
}

// Schedule replaces any pending transition with state after the delay.
func (e *Emitter) Schedule(state status.State, extra map[string]any, after time.Duration) {
	e.pending = &Pending{
		State: state,
		Extra: extra,
		At:    e.clock.Now().Add(after),
	}
}

// Cancel drops the pending transition. It reports whether one was pending.
func (e *Emitter) Cancel() bool {
	had := e.pending != nil
	e.pending = nil
	return had
}

// Pending returns the scheduled transition, if any.
func (e *Emitter) Pending() (Pending, bool) {
	if e.pending == nil {
		return Pending{}, false
	}
	return *e.pending, true
}

// HasPending reports whether a transition is scheduled.
func (e *Emitter) HasPending() bool {
	return e.pending != nil
}

// Deadline returns when the pending transition is due.
func (e *Emitter) Deadline() (time.Time, bool) {
	if e.pending == nil {
		return time.Time{}, false
	}
	return e.pending.At, true
}

// Tick fires the pending transition if it is due. A fired transition goes
// through Emit, so decays chain (done, then idle, then sleep), each measured
// from the moment the previous one fired.
func (e *Emitter) Tick() []status.Event {
	var out []status.Event
	for e.pending != nil && !e.clock.Now().Before(e.pending.At) {
		p := *e.pending
		e.pending = nil
		if ev, ok := e.Emit(p.State, p.Extra); ok {
			out = append(out, ev)
		}
	}
	return out
}
