package status

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// ProjectMaxLength is the longest project name accepted from clients.
	ProjectMaxLength = 100

	// MaxPayloadSize bounds a status request body.
	MaxPayloadSize = 10 * 1024
)

// Characters lists the character names the display surfaces can draw.
var Characters = []string{"clawd", "kiro", "claw"}

var memoryPattern = regexp.MustCompile(`^(\d{1,3})%$`)

// PayloadError describes why a status payload was rejected.
type PayloadError struct {
	Field   string
	Message string
}

func (e *PayloadError) Error() string {
	return "invalid payload: " + e.Field + ": " + e.Message
}

// ValidCharacter reports whether name is a known character.
func ValidCharacter(name string) bool {
	for _, c := range Characters {
		if c == name {
			return true
		}
	}
	return false
}

// ValidatePayload checks a decoded status request. Absent fields are allowed;
// present fields must have the right type and range.
func ValidatePayload(data map[string]any) error {
	if v, ok := data[KeyState]; ok {
		s, isString := v.(string)
		if !isString || !State(s).Valid() {
			return &PayloadError{
				Field:   KeyState,
				Message: fmt.Sprintf("invalid state %v, valid states: %s", v, joinStates()),
			}
		}
	}

	if v, ok := data[KeyCharacter]; ok {
		s, isString := v.(string)
		if !isString || !ValidCharacter(s) {
			return &PayloadError{
				Field:   KeyCharacter,
				Message: fmt.Sprintf("invalid character %v, valid characters: %s", v, strings.Join(Characters, ", ")),
			}
		}
	}

	if v, ok := data[KeyProject]; ok {
		s, isString := v.(string)
		if !isString {
			return &PayloadError{Field: KeyProject, Message: "must be a string"}
		}
		if len(s) > ProjectMaxLength {
			return &PayloadError{Field: KeyProject, Message: fmt.Sprintf("exceeds %d characters", ProjectMaxLength)}
		}
	}

	if v, ok := data["memory"]; ok && v != "" {
		s, isString := v.(string)
		if !isString {
			return &PayloadError{Field: "memory", Message: "must be a string"}
		}
		m := memoryPattern.FindStringSubmatch(s)
		if m == nil {
			return &PayloadError{Field: "memory", Message: `must be in format "N%"`}
		}
		if n, _ := strconv.Atoi(m[1]); n > 100 {
			return &PayloadError{Field: "memory", Message: "percentage must be 0-100"}
		}
	}

	return nil
}

func joinStates() string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
