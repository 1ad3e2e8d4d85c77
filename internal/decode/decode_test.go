package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLineShapes(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		shape     string
		subsystem string
		message   string
	}{
		{
			name:      "positional tuple",
			raw:       `{"0":"{\"subsystem\":\"agent/embedded\"}","1":"embedded run tool start: runId=1 tool=exec","time":"x"}`,
			shape:     "positional",
			subsystem: `{"subsystem":"agent/embedded"}`,
			message:   "embedded run tool start: runId=1 tool=exec",
		},
		{
			name:    "positional without subsystem",
			raw:     `{"1":"delivered reply to telegram"}`,
			shape:   "positional",
			message: "delivered reply to telegram",
		},
		{
			name:      "named fields",
			raw:       `{"subsystem":"diagnostic","message":"session state: prev=idle new=processing"}`,
			shape:     "named",
			subsystem: "diagnostic",
			message:   "session state: prev=idle new=processing",
		},
		{
			name:      "abbreviated fields",
			raw:       `{"sub":"gateway/channels/telegram","msg":"delivered reply to 123"}`,
			shape:     "abbreviated",
			subsystem: "gateway/channels/telegram",
			message:   "delivered reply to 123",
		},
		{
			name:      "msg with module",
			raw:       `{"msg":"embedded run start: runId=7","module":"agent/embedded"}`,
			shape:     "msg-with-source",
			subsystem: "agent/embedded",
			message:   "embedded run start: runId=7",
		},
		{
			name:      "msg with logger",
			raw:       `{"msg":"tool_call start tool=grep","logger":"agent"}`,
			shape:     "msg-with-source",
			subsystem: "agent",
			message:   "tool_call start tool=grep",
		},
		{
			name:    "msg without source",
			raw:     `{"msg":"hello","level":30}`,
			shape:   "msg-with-source",
			message: "hello",
		},
		{
			name:    "text only",
			raw:     `{"text":"executing tool: bash"}`,
			shape:   "message-only",
			message: "executing tool: bash",
		},
		{
			name:    "log only",
			raw:     `{"log":"[tool:read] start\n"}`,
			shape:   "message-only",
			message: "[tool:read] start",
		},
		{
			name:      "array",
			raw:       `["agent/embedded","embedded run done: runId=1",{"extra":true}]`,
			shape:     "array",
			subsystem: "agent/embedded",
			message:   "embedded run done: runId=1",
		},
		{
			name:      "non-string subsystem is encoded",
			raw:       `{"0":{"subsystem":"diagnostic"},"1":"session state: new=running"}`,
			shape:     "positional",
			subsystem: `{"subsystem":"diagnostic"}`,
			message:   "session state: new=running",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, ok := ParseLine(tt.raw)
			assert.True(t, ok)
			assert.Equal(t, tt.subsystem, line.Subsystem)
			assert.Equal(t, tt.message, line.Message)
		})
	}
}

func TestShapeName(t *testing.T) {
	assert.Equal(t, "positional", ShapeName(map[string]any{"0": "a", "1": "b"}))
	assert.Equal(t, "array", ShapeName([]any{"a", "b"}))
	assert.Equal(t, "", ShapeName(map[string]any{"level": 1.0}))
	assert.Equal(t, "", ShapeName("plain"))
}

func TestFirstStructuralMatchWins(t *testing.T) {
	// "1" is present but blank: the positional shape fits, so the named
	// message further down is not consulted.
	_, ok := ParseLine(`{"1":"   ","message":"ignored"}`)
	assert.False(t, ok)

	// Named beats abbreviated when both are present.
	line, ok := ParseLine(`{"message":"a","sub":"x","msg":"b"}`)
	assert.True(t, ok)
	assert.Equal(t, "a", line.Message)
}

func TestParseLineRejects(t *testing.T) {
	rejects := []string{
		"",
		"not json",
		`{"level":"info"}`,
		`"just a string"`,
		`42`,
		`["only-one"]`,
		`["sub", 3]`,
		`{"message":""}`,
		`{"text":"   "}`,
		`{"1": 5}`,
	}
	for _, raw := range rejects {
		_, ok := ParseLine(raw)
		assert.False(t, ok, "expected %q to be rejected", raw)
	}
}
