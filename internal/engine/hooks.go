package engine

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"vibebridge/internal/status"
)

// Gateway plugin hook names.
const (
	HookGatewayStart     = "gateway_start"
	HookGatewayStop      = "gateway_stop"
	HookBeforeAgentStart = "before_agent_start"
	HookBeforeToolCall   = "before_tool_call"
	HookAfterToolCall    = "after_tool_call"
	HookMessageSent      = "message_sent"
	HookAgentEnd         = "agent_end"
	HookSessionEnd       = "session_end"
)

// Editor-style hook names map straight onto a state.
var editorHooks = map[string]status.State{
	"SessionStart":     status.Start,
	"UserPromptSubmit": status.Thinking,
	"PreToolUse":       status.Working,
	"PostToolUse":      status.Working,
	"Notification":     status.Notification,
	"Stop":             status.Done,
}

// HookEvent is a lifecycle callback reported by an agent runtime.
type HookEvent struct {
	Name           string
	Project        string
	Tool           string
	Success        bool
	PermissionMode string
}

// ParseHook decodes one hook event. Field names vary between runtimes, so
// several spellings are probed. Success is set only by an explicit
// "success": true with no error attached.
func ParseHook(data []byte) (HookEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return HookEvent{}, fmt.Errorf("decode hook event: %w", err)
	}

	h := HookEvent{
		Name:           firstString(raw, "hook_event_name", "hook", "event", "type", "name"),
		Project:        firstString(raw, "project", "projectName"),
		Tool:           firstString(raw, "tool_name", "toolName", "tool"),
		PermissionMode: firstString(raw, "permission_mode", "permissionMode"),
	}
	if h.Name == "" {
		return HookEvent{}, fmt.Errorf("hook event has no name")
	}
	if h.Project == "" {
		if cwd := firstString(raw, "cwd"); cwd != "" {
			h.Project = filepath.Base(cwd)
		} else if tp := firstString(raw, "transcript_path"); tp != "" {
			h.Project = filepath.Base(filepath.Dir(tp))
		}
	}
	if ctx, ok := raw["ctx"].(map[string]any); ok && h.Tool == "" {
		h.Tool = firstString(ctx, "toolName", "tool_name")
	}
	if v, ok := raw["success"].(bool); ok {
		h.Success = v
	}
	if e, ok := raw["error"]; ok && e != nil && e != "" {
		h.Success = false
	}
	return h, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ApplyHook maps a hook event onto the project's state. Unknown hooks are
// ignored.
func (e *Engine) ApplyHook(h HookEvent) []status.Event {
	t := e.Tracker(h.Project)
	em := t.emitter

	switch h.Name {
	case HookGatewayStart:
		t.runs = 0
		return e.emit(t, status.Start, map[string]any{status.ExtraNote: NoteGatewayStarted})

	case HookBeforeAgentStart:
		em.Cancel()
		return e.emit(t, status.Thinking, nil)

	case HookBeforeToolCall:
		em.Cancel()
		tool := h.Tool
		if tool == "" {
			tool = "unknown"
		}
		return e.emit(t, status.Working, map[string]any{status.ExtraTool: tool})

	case HookAfterToolCall:
		// A scheduled done means the reply already went out.
		if doneScheduled(em) {
			return nil
		}
		return e.emit(t, status.Thinking, nil)

	case HookMessageSent:
		if h.Success {
			e.scheduleDone(t)
		}
		return nil

	case HookAgentEnd:
		if h.Success && !doneScheduled(em) {
			e.scheduleDone(t)
		}
		return nil

	case HookSessionEnd:
		em.Cancel()
		t.runs = 0
		return e.emit(t, status.Done, nil)

	// No run outlives its gateway.
	case HookGatewayStop:
		em.Cancel()
		t.runs = 0
		return e.emit(t, status.Done, map[string]any{status.ExtraNote: NoteGatewayStopped})
	}

	if state, ok := editorHooks[h.Name]; ok {
		if h.PermissionMode == "plan" && (state == status.Thinking || state == status.Working) {
			state = status.Planning
		}
		var extra map[string]any
		if state == status.Working && h.Tool != "" {
			extra = map[string]any{status.ExtraTool: h.Tool}
		}
		return e.emit(t, state, extra)
	}

	e.log.Debug("ignoring hook %q", h.Name)
	return nil
}

func (e *Engine) scheduleDone(t *Tracker) {
	e.log.Debug("[%s] done in %s", t.emitter.Project(), e.opts.HookDoneDelay)
	t.emitter.Schedule(status.Done, nil, e.opts.HookDoneDelay)
}

// doneScheduled reports whether the pending transition is a delayed done
// rather than an ordinary decay.
func doneScheduled(em *Emitter) bool {
	p, ok := em.Pending()
	return ok && p.State == status.Done
}
