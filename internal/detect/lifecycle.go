package detect

import "strings"

// Lifecycle predicate sets. They are independent: a message may match more
// than one.
var (
	RunStart = MustAnyOf(
		`(?i)^embedded run start\b`,
		`(?i)\bagent run start(ed)?\b`,
		`(?i)\brun[_ -]start(ed)?\b`,
		`(?i)\bstarting (agent )?run\b`,
	)

	RunDone = MustAnyOf(
		`(?i)^embedded run (done|end|complete)\b`,
		`(?i)\bagent run (done|end(ed)?|complete(d)?|finish(ed)?)\b`,
		`(?i)\brun[_ -](done|end(ed)?|complete(d)?|finish(ed)?)\b`,
	)

	PromptStart = MustAnyOf(
		`(?i)^embedded run prompt start\b`,
		`(?i)\bprompt[_ -]start(ed)?\b`,
		`(?i)\bsending prompt\b`,
	)

	PromptEnd = MustAnyOf(
		`(?i)^embedded run prompt end\b`,
		`(?i)\bprompt[_ -](end(ed)?|done|complete(d)?)\b`,
		`(?i)\bprompt response received\b`,
	)

	ReplyDelivered = MustAnyOf(
		`(?i)^delivered reply to\b`,
		`(?i)\bdelivered (the )?(reply|response|message)\b`,
		`(?i)\breply (delivered|sent)\b`,
		`(?i)\bmessage[_ ]sent\b`,
	)

	// Inbound marks channel traffic flowing toward the agent. It is not a
	// delivery even on a delivery subsystem.
	Inbound = MustAnyOf(
		`(?i)\binbound\b`,
		`(?i)\b(incoming|received) (message|update|event)\b`,
		`(?i)\bmessage (received|from)\b`,
	)
)

// Subsystem hints. Subsystem text is opaque (often a JSON object encoded as
// a string), so hints are substring checks.

// SessionSubsystem reports whether the subsystem carries session diagnostics.
func SessionSubsystem(sub string) bool {
	s := strings.ToLower(sub)
	return strings.Contains(s, "diagnostic") || strings.Contains(s, "session")
}

// AgentSubsystem reports whether the subsystem is the agent runtime.
func AgentSubsystem(sub string) bool {
	return strings.Contains(strings.ToLower(sub), "agent")
}

// DeliverySubsystem reports whether the subsystem is a gateway delivery
// channel (gateway/channels/<name>).
func DeliverySubsystem(sub string) bool {
	return strings.Contains(strings.ToLower(sub), "gateway/channels")
}

// SessionMessage reports whether the message itself announces session state,
// for logs without a usable subsystem.
func SessionMessage(msg string) bool {
	s := strings.ToLower(msg)
	return strings.Contains(s, "session state") ||
		strings.Contains(s, "session.state") ||
		strings.Contains(s, "session_state")
}
