// Package status defines the canonical activity states and the status event
// wire format shared by the engine, the sinks and the HTTP receiver.
package status

import (
	"errors"
	"fmt"
	"strings"
)

// State is a coarse activity state of a monitored agent.
type State string

const (
	Start        State = "start"
	Idle         State = "idle"
	Thinking     State = "thinking"
	Planning     State = "planning"
	Working      State = "working"
	Notification State = "notification"
	Done         State = "done"
	Sleep        State = "sleep"
)

// ErrInvalidState is returned when a state name is not one of the known states.
var ErrInvalidState = errors.New("invalid state")

// States lists every valid state in display order.
var States = []State{Start, Idle, Thinking, Planning, Working, Notification, Done, Sleep}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// Active reports whether the state means the agent is doing work.
func (s State) Active() bool {
	switch s {
	case Thinking, Planning, Working:
		return true
	}
	return false
}

// ParseState converts a name to a State, case-insensitively.
func ParseState(name string) (State, error) {
	s := State(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, name)
	}
	return s, nil
}

// Color returns the display background colour used by the overlay and the
// device firmware for the state.
func (s State) Color() string {
	switch s {
	case Start:
		return "#00CCCC"
	case Idle, Done:
		return "#00AA00"
	case Thinking:
		return "#6633CC"
	case Planning:
		return "#008080"
	case Working:
		return "#0066CC"
	case Notification:
		return "#FFCC00"
	case Sleep:
		return "#1A1A4E"
	default:
		return "#808080"
	}
}
