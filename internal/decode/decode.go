// Package decode extracts (subsystem, message) pairs from the JSON envelopes
// agent gateways write to their log files.
//
// Several envelope shapes are in use across gateway versions. Each shape has
// its own matcher; matchers are tried in order and the first one whose
// structure fits wins, even if it then yields an empty message.
package decode

import (
	"encoding/json"
	"strings"
)

// Line is a decoded log record.
type Line struct {
	Subsystem string // opaque text, matched by substring only
	Message   string
}

// shape recognises one envelope layout. extract reports whether the value has
// the layout at all; when it does, the returned Line is the result.
type shape struct {
	name    string
	extract func(v any) (Line, bool)
}

var shapes = []shape{
	{"positional", positional},
	{"named", named},
	{"abbreviated", abbreviated},
	{"msg-with-source", msgWithSource},
	{"message-only", messageOnly},
	{"array", array},
}

// Decode returns the subsystem and message carried by v, a value produced by
// json.Unmarshal into an interface. It returns false when no shape fits or
// the message is empty.
func Decode(v any) (Line, bool) {
	for _, s := range shapes {
		line, fits := s.extract(v)
		if !fits {
			continue
		}
		line.Message = strings.TrimSpace(line.Message)
		if line.Message == "" {
			return Line{}, false
		}
		return line, true
	}
	return Line{}, false
}

// ParseLine decodes a raw log line. Lines that are not JSON, or whose
// envelope is not recognised, return false.
func ParseLine(raw string) (Line, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Line{}, false
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Line{}, false
	}
	return Decode(v)
}

// ShapeName reports which envelope shape fits v, or "" if none does.
func ShapeName(v any) string {
	for _, s := range shapes {
		if _, fits := s.extract(v); fits {
			return s.name
		}
	}
	return ""
}

// positional: {"0": <subsystem>, "1": <message>}
func positional(v any) (Line, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Line{}, false
	}
	msg, ok := obj["1"].(string)
	if !ok {
		return Line{}, false
	}
	return Line{Subsystem: text(obj["0"]), Message: msg}, true
}

// named: {"subsystem": …, "message": …}
func named(v any) (Line, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Line{}, false
	}
	msg, ok := obj["message"].(string)
	if !ok {
		return Line{}, false
	}
	return Line{Subsystem: text(obj["subsystem"]), Message: msg}, true
}

// abbreviated: {"sub": …, "msg": …}
func abbreviated(v any) (Line, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Line{}, false
	}
	if _, hasSub := obj["sub"]; !hasSub {
		return Line{}, false
	}
	msg, ok := obj["msg"].(string)
	if !ok {
		return Line{}, false
	}
	return Line{Subsystem: text(obj["sub"]), Message: msg}, true
}

// msgWithSource: {"msg": …, "module"|"logger"|"source": …}
func msgWithSource(v any) (Line, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Line{}, false
	}
	msg, ok := obj["msg"].(string)
	if !ok {
		return Line{}, false
	}
	var sub string
	for _, key := range []string{"module", "logger", "source"} {
		if val, present := obj[key]; present {
			sub = text(val)
			break
		}
	}
	return Line{Subsystem: sub, Message: msg}, true
}

// messageOnly: {"text": …} or {"log": …}
func messageOnly(v any) (Line, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Line{}, false
	}
	for _, key := range []string{"text", "log"} {
		if msg, ok := obj[key].(string); ok {
			return Line{Message: msg}, true
		}
	}
	return Line{}, false
}

// array: [subsystem, message, ...]
func array(v any) (Line, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) < 2 {
		return Line{}, false
	}
	msg, ok := arr[1].(string)
	if !ok {
		return Line{}, false
	}
	return Line{Subsystem: text(arr[0]), Message: msg}, true
}

// text renders a subsystem value as matchable text. Strings are used as-is
// (including JSON-encoded strings, which are not re-parsed); other values
// are JSON-encoded.
func text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
