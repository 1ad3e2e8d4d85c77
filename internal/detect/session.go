package detect

import (
	"regexp"
	"strings"
)

// SessionChange is an announced session state transition. Empty fields were
// not present in the message.
type SessionChange struct {
	Prev   string
	Next   string
	Reason string
}

var (
	kvPrev   = regexp.MustCompile(`(?:^|[\s,{(])prev(?:ious)?=("[^"]*"|[^\s,})]+)`)
	kvReason = regexp.MustCompile(`(?:^|[\s,{(])reason=("[^"]*"|[^\s,})]+)`)

	jsonPrev   = regexp.MustCompile(`"prev(?:ious)?"\s*:\s*"([^"]*)"`)
	jsonReason = regexp.MustCompile(`"reason"\s*:\s*"([^"]*)"`)

	looseReason = regexp.MustCompile(`(?i)\breason[=:]\s*"?([^"\s,)]+)`)
)

// SessionRules recognises session state announcements.
var SessionRules = RuleSet[SessionChange]{
	// session state: sessionId=… prev=idle new=processing reason="run_started"
	MustRule("key-value",
		`(?:^|[\s,{(])new=("[^"]*"|[^\s,})]+)`,
		func(msg string, g []string) (SessionChange, bool) {
			return sessionChange(
				submatch(kvPrev, msg),
				g[1],
				submatch(kvReason, msg),
			)
		}),

	// {"state":"processing","previous":"idle"}
	MustRule("json",
		`"state"\s*:\s*"([^"]+)"`,
		func(msg string, g []string) (SessionChange, bool) {
			return sessionChange(
				submatch(jsonPrev, msg),
				g[1],
				submatch(jsonReason, msg),
			)
		}),

	// session state idle -> processing, state changed from idle to running
	MustRule("arrow",
		`(?i)(?:session|state)\b.*?\b([a-z_]+)\s*(?:->|=>|→|\bto\b)\s*([a-z_]+)\b`,
		func(msg string, g []string) (SessionChange, bool) {
			return sessionChange(g[1], g[2], submatch(looseReason, msg))
		}),

	// session.state = processing
	MustRule("assignment",
		`(?i)\bsession[._ ]?state\s*:?=\s*["']?([a-z_]+)`,
		func(msg string, g []string) (SessionChange, bool) {
			return sessionChange("", g[1], submatch(looseReason, msg))
		}),
}

func sessionChange(prev, next, reason string) (SessionChange, bool) {
	next = strings.ToLower(clean(next))
	if next == "" {
		return SessionChange{}, false
	}
	return SessionChange{
		Prev:   strings.ToLower(clean(prev)),
		Next:   next,
		Reason: clean(reason),
	}, true
}

func submatch(re *regexp.Regexp, msg string) string {
	m := re.FindStringSubmatch(msg)
	if m == nil {
		return ""
	}
	return m[1]
}

func clean(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

// MatchSession returns the first session transition found in msg.
func MatchSession(msg string) (SessionChange, bool) {
	s, _, ok := SessionRules.Match(msg)
	return s, ok
}

// ActiveSessionStates are the session states that mean a run is in progress.
var ActiveSessionStates = map[string]bool{
	"processing": true,
	"running":    true,
	"active":     true,
}
