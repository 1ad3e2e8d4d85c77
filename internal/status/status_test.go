package status

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	for _, s := range States {
		got, err := ParseState(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseState("  Working ")
	require.NoError(t, err)
	assert.Equal(t, Working, got)

	_, err = ParseState("busy")
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestStateActive(t *testing.T) {
	assert.True(t, Thinking.Active())
	assert.True(t, Working.Active())
	assert.True(t, Planning.Active())
	assert.False(t, Done.Active())
	assert.False(t, Idle.Active())
}

func TestEventWireFormat(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 500, time.UTC)
	ev := NewEvent(Working, "OpenClaw", "claw", ts, map[string]any{"tool": "exec"})

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Equal(t,
		`{"state":"working","project":"OpenClaw","character":"claw","ts":"2026-03-01T12:30:00.0000005Z","tool":"exec"}`,
		string(data))
}

func TestEventOmitsEmptyCharacter(t *testing.T) {
	ev := NewEvent(Idle, "Sera", "", time.Unix(0, 0), nil)
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "character")
}

func TestEventExtraCannotShadowReserved(t *testing.T) {
	ev := NewEvent(Done, "p", "", time.Unix(0, 0), map[string]any{"state": "idle", "note": "x"})
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "done", raw["state"])
	assert.Equal(t, "x", raw["note"])
}

func TestEventRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{"no extra", NewEvent(Thinking, "proj", "clawd", time.Now(), nil)},
		{"tool", NewEvent(Working, "proj", "clawd", time.Now(), map[string]any{"tool": "read_file"})},
		{"note and reason", NewEvent(Done, "proj", "", time.Now(), map[string]any{"note": "bridge_started", "reason": "run_completed"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := tt.event.JSONLine()
			require.NoError(t, err)
			assert.Equal(t, byte('\n'), line[len(line)-1])

			var back Event
			require.NoError(t, json.Unmarshal(line, &back))
			assert.Equal(t, tt.event.State, back.State)
			assert.Equal(t, tt.event.Project, back.Project)
			assert.Equal(t, tt.event.Character, back.Character)
			assert.Equal(t, tt.event.Extra, back.Extra)
			assert.True(t, tt.event.Time.Equal(back.Time))
		})
	}
}

func TestEventUnmarshalRejectsBadTimestamp(t *testing.T) {
	var ev Event
	err := json.Unmarshal([]byte(`{"state":"idle","project":"p","ts":"yesterday"}`), &ev)
	assert.Error(t, err)
}

func TestNewEventCopiesExtra(t *testing.T) {
	extra := map[string]any{"tool": "exec"}
	ev := NewEvent(Working, "p", "", time.Now(), extra)
	extra["tool"] = "changed"
	assert.Equal(t, "exec", ev.Tool())
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		field   string
	}{
		{"empty payload", map[string]any{}, ""},
		{"valid full payload", map[string]any{"state": "working", "character": "clawd", "project": "x", "memory": "45%"}, ""},
		{"unknown state", map[string]any{"state": "busy"}, "state"},
		{"non-string state", map[string]any{"state": 3.0}, "state"},
		{"unknown character", map[string]any{"character": "robot"}, "character"},
		{"project not string", map[string]any{"project": 12.0}, "project"},
		{"project too long", map[string]any{"project": string(make([]byte, 101))}, "project"},
		{"memory format", map[string]any{"memory": "45"}, "memory"},
		{"memory range", map[string]any{"memory": "150%"}, "memory"},
		{"memory empty", map[string]any{"memory": ""}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.payload)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var perr *PayloadError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.field, perr.Field)
		})
	}
}
