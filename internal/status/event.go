package status

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Reserved wire keys. Extra fields may not shadow them.
const (
	KeyState     = "state"
	KeyProject   = "project"
	KeyCharacter = "character"
	KeyTime      = "ts"
)

// Common extra keys.
const (
	ExtraTool   = "tool"
	ExtraNote   = "note"
	ExtraReason = "reason"
)

// Event is one emitted status update. Events are values; once emitted they
// are never modified.
type Event struct {
	State     State
	Project   string
	Character string
	Time      time.Time
	Extra     map[string]any
}

// NewEvent creates an event stamped with t. The extra map is copied.
func NewEvent(state State, project, character string, t time.Time, extra map[string]any) Event {
	return Event{
		State:     state,
		Project:   project,
		Character: character,
		Time:      t,
		Extra:     copyExtra(extra),
	}
}

// Tool returns the tool extra, if any.
func (e Event) Tool() string {
	s, _ := e.Extra[ExtraTool].(string)
	return s
}

// Note returns the note extra, if any.
func (e Event) Note() string {
	s, _ := e.Extra[ExtraNote].(string)
	return s
}

// MarshalJSON writes the flat wire format:
// {"state":…,"project":…,"character":…,"ts":…, ...extra}
// Extra keys are written in sorted order after the fixed fields.
func (e Event) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(key string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		v, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}

	if err := write(KeyState, string(e.State)); err != nil {
		return nil, err
	}
	if err := write(KeyProject, e.Project); err != nil {
		return nil, err
	}
	if e.Character != "" {
		if err := write(KeyCharacter, e.Character); err != nil {
			return nil, err
		}
	}
	if err := write(KeyTime, e.Time.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(e.Extra))
	for k := range e.Extra {
		if reserved(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := write(k, e.Extra[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the flat wire format. Unknown keys become extras.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out Event
	if v, ok := raw[KeyState]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("state: %w", err)
		}
		out.State = State(s)
	}
	if v, ok := raw[KeyProject]; ok {
		if err := json.Unmarshal(v, &out.Project); err != nil {
			return fmt.Errorf("project: %w", err)
		}
	}
	if v, ok := raw[KeyCharacter]; ok {
		if err := json.Unmarshal(v, &out.Character); err != nil {
			return fmt.Errorf("character: %w", err)
		}
	}
	if v, ok := raw[KeyTime]; ok {
		var ts string
		if err := json.Unmarshal(v, &ts); err != nil {
			return fmt.Errorf("ts: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return fmt.Errorf("ts: %w", err)
		}
		out.Time = t
	}

	for k, v := range raw {
		if reserved(k) {
			continue
		}
		var value any
		if err := json.Unmarshal(v, &value); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[k] = value
	}

	*e = out
	return nil
}

// JSONLine returns the event as a single JSON line with a trailing newline.
func (e Event) JSONLine() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func reserved(key string) bool {
	switch key {
	case KeyState, KeyProject, KeyCharacter, KeyTime:
		return true
	}
	return false
}

func copyExtra(extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	return out
}
