package detect

import "strings"

// Phase is the boundary of a tool invocation.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
)

// ToolActivity is a detected tool invocation boundary.
type ToolActivity struct {
	Phase Phase
	Tool  string
}

// NormalizePhase maps the verbs used by different log formats onto
// start/end. Unknown verbs return "".
func NormalizePhase(word string) Phase {
	switch strings.ToLower(word) {
	case "start", "started", "starting", "begin", "began", "executing", "running":
		return PhaseStart
	case "end", "ended", "finish", "finished", "complete", "completed", "done":
		return PhaseEnd
	}
	return ""
}

const toolName = `[A-Za-z0-9_:.\-]+`

// ToolRules recognises tool invocation boundaries.
var ToolRules = RuleSet[ToolActivity]{
	// embedded run tool start: runId=… tool=exec toolCallId=…
	MustRule("embedded-run-tool",
		`embedded run tool (start|end): .*?\btool=(`+toolName+`)`,
		phaseThenTool),

	// tool_call started … tool=grep
	MustRule("tool-call",
		`(?i)\btool[_ ]?call\b\W*(start|started|begin|end|ended|finish|finished)\b.*?\btool=["']?(`+toolName+`)`,
		phaseThenTool),

	// executing tool: bash / completed tool: bash
	MustRule("tool-verb",
		`(?i)\b(executing|starting|finished|completed) tool:?\s+["'`+"`"+`]?(`+toolName+`)`,
		phaseThenTool),

	// [tool:read_file] start
	MustRule("bracketed",
		`(?i)\[tool:\s*(`+toolName+`)\]\s*(start|started|begin|end|ended|finish|finished)\b`,
		func(_ string, g []string) (ToolActivity, bool) {
			return toolActivity(g[2], g[1])
		}),
}

func phaseThenTool(_ string, g []string) (ToolActivity, bool) {
	return toolActivity(g[1], g[2])
}

func toolActivity(verb, tool string) (ToolActivity, bool) {
	phase := NormalizePhase(verb)
	tool = strings.TrimRight(strings.Trim(tool, `"'`+"`"), ".:")
	if phase == "" || tool == "" {
		return ToolActivity{}, false
	}
	return ToolActivity{Phase: phase, Tool: tool}, true
}

// MatchTool returns the first tool boundary found in msg.
func MatchTool(msg string) (ToolActivity, bool) {
	t, _, ok := ToolRules.Match(msg)
	return t, ok
}
