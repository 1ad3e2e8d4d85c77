// Package engine infers agent activity state from decoded log lines and hook
// events. An Engine owns one Tracker per project; it is driven from a single
// goroutine and holds no locks.
package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"vibebridge/internal/decode"
	"vibebridge/internal/detect"
	"vibebridge/internal/logging"
	"vibebridge/internal/status"
)

// Policy selects how subsystem hints gate the line rules.
type Policy string

const (
	// PolicyPermissive treats subsystem hints as advisory: message content
	// alone can select a rule.
	PolicyPermissive Policy = "permissive"
	// PolicyStrict requires the matching subsystem hint before a rule is
	// tried.
	PolicyStrict Policy = "strict"
)

// ParsePolicy parses a policy name. The empty string selects permissive.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicyPermissive:
		return PolicyPermissive, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("unknown subsystem policy %q (want permissive or strict)", name)
}

// DefaultHookDoneDelay is how long a hook-driven done waits for the agent to
// start another turn.
const DefaultHookDoneDelay = 3 * time.Second

// Notes attached to lifecycle events.
const (
	NoteBridgeStarted  = "bridge_started"
	NoteGatewayStarted = "gateway_started"
	NoteGatewayStopped = "gateway_stopped"
)

// Options configures an Engine.
type Options struct {
	Project       string // used when an input names no project
	Character     string
	Policy        Policy
	Debounce      time.Duration
	Decays        map[status.State]Decay
	HookDoneDelay time.Duration
	Clock         clockwork.Clock
	Logger        *logging.Logger
}

// DefaultOptions returns options with the standard timings.
func DefaultOptions() Options {
	return Options{
		Project:       "default",
		Policy:        PolicyPermissive,
		Debounce:      DefaultDebounce,
		Decays:        DefaultDecays(),
		HookDoneDelay: DefaultHookDoneDelay,
	}
}

// Tracker is the per-project inference state.
type Tracker struct {
	emitter *Emitter
	runs    int
}

// Runs returns the number of agent runs currently in flight.
func (t *Tracker) Runs() int {
	return t.runs
}

// Emitter returns the tracker's emitter.
func (t *Tracker) Emitter() *Emitter {
	return t.emitter
}

// Engine maps inputs onto per-project state.
type Engine struct {
	opts     Options
	clock    clockwork.Clock
	log      *logging.Logger
	trackers map[string]*Tracker
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Policy == "" {
		opts.Policy = PolicyPermissive
	}
	if opts.Project == "" {
		opts.Project = "default"
	}
	return &Engine{
		opts:     opts,
		clock:    opts.Clock,
		log:      opts.Logger,
		trackers: make(map[string]*Tracker),
	}
}

// Policy returns the subsystem policy in use.
func (e *Engine) Policy() Policy {
	return e.opts.Policy
}

// Tracker returns the tracker for project, creating it on first use.
func (e *Engine) Tracker(project string) *Tracker {
	if project == "" {
		project = e.opts.Project
	}
	t, ok := e.trackers[project]
	if !ok {
		t = &Tracker{
			emitter: NewEmitter(e.clock, project, e.opts.Character, e.opts.Debounce, e.opts.Decays),
		}
		e.trackers[project] = t
	}
	return t
}

// Startup emits the bridge-started marker for project.
func (e *Engine) Startup(project string) []status.Event {
	t := e.Tracker(project)
	return e.emit(t, status.Done, map[string]any{status.ExtraNote: NoteBridgeStarted})
}

// HandleLine decodes a raw log line and applies it. Undecodable lines are
// skipped.
func (e *Engine) HandleLine(project, raw string) []status.Event {
	line, ok := decode.ParseLine(raw)
	if !ok {
		if strings.TrimSpace(raw) != "" {
			e.log.Debug("skipping undecodable line: %.120s", raw)
		}
		return nil
	}
	return e.ApplyLine(project, line)
}

// ApplyLine runs the line rules against a decoded line. The first rule that
// recognises the line consumes it.
func (e *Engine) ApplyLine(project string, line decode.Line) []status.Event {
	t := e.Tracker(project)
	strict := e.opts.Policy == PolicyStrict
	sub, msg := line.Subsystem, line.Message

	// Session diagnostics only ever move a project into thinking.
	sessionGate := detect.SessionSubsystem(sub)
	if !strict {
		sessionGate = sessionGate || detect.SessionMessage(msg)
	}
	if sessionGate {
		if change, ok := detect.MatchSession(msg); ok {
			if detect.ActiveSessionStates[change.Next] {
				return e.emit(t, status.Thinking, nil)
			}
			e.log.Debug("[%s] session %s -> %s ignored", t.emitter.Project(), change.Prev, change.Next)
			return nil
		}
	}

	if !strict || detect.AgentSubsystem(sub) {
		if events, ok := e.applyAgent(t, msg); ok {
			return events
		}
	}

	delivery := detect.DeliverySubsystem(sub) && !detect.Inbound.Match(msg)
	reply := detect.ReplyDelivered.Match(msg)
	if (strict && delivery && reply) || (!strict && (delivery || reply)) {
		if t.runs > 0 {
			e.log.Debug("[%s] delivery with %d runs active, not done", t.emitter.Project(), t.runs)
			return nil
		}
		return e.emit(t, status.Done, nil)
	}
	return nil
}

// applyAgent handles run, prompt and tool lifecycle lines. It reports whether
// the message was recognised.
func (e *Engine) applyAgent(t *Tracker, msg string) ([]status.Event, bool) {
	switch {
	case detect.RunStart.Match(msg):
		t.runs++
		return e.emit(t, status.Thinking, nil), true

	case detect.RunDone.Match(msg):
		if t.runs > 0 {
			t.runs--
		}
		return nil, true

	case detect.PromptStart.Match(msg):
		return e.emit(t, status.Planning, nil), true

	case detect.PromptEnd.Match(msg):
		if t.emitter.Current() == status.Planning {
			return e.emit(t, status.Thinking, nil), true
		}
		return nil, true
	}

	act, ok := detect.MatchTool(msg)
	if !ok {
		return nil, false
	}
	if act.Phase == detect.PhaseStart {
		return e.emit(t, status.Working, map[string]any{status.ExtraTool: act.Tool}), true
	}
	if t.emitter.Current() == status.Done {
		return nil, true
	}
	return e.emit(t, status.Thinking, nil), true
}

// Update is an externally requested state, as posted to the receiver.
type Update struct {
	Project   string
	Character string
	State     status.State
	Extra     map[string]any
}

// Set applies an external update directly. The debounce and decay rules
// still apply.
func (e *Engine) Set(u Update) []status.Event {
	t := e.Tracker(u.Project)
	if u.Character != "" {
		t.emitter.character = u.Character
	}
	return e.emit(t, u.State, u.Extra)
}

func (e *Engine) emit(t *Tracker, state status.State, extra map[string]any) []status.Event {
	ev, ok := t.emitter.Emit(state, extra)
	if !ok {
		return nil
	}
	return []status.Event{ev}
}

// Tick fires every due pending transition.
func (e *Engine) Tick() []status.Event {
	var out []status.Event
	for _, name := range e.projects() {
		out = append(out, e.trackers[name].emitter.Tick()...)
	}
	return out
}

// NextDeadline returns the earliest pending transition across projects.
func (e *Engine) NextDeadline() (time.Time, bool) {
	var next time.Time
	found := false
	for _, t := range e.trackers {
		if at, ok := t.emitter.Deadline(); ok && (!found || at.Before(next)) {
			next = at
			found = true
		}
	}
	return next, found
}

// Snapshot is a point-in-time view of one project.
type Snapshot struct {
	Project     string       `json:"project"`
	State       status.State `json:"state"`
	Runs        int          `json:"runs"`
	LastEmitted time.Time    `json:"last_emitted"`
	Pending     *PendingInfo `json:"pending,omitempty"`
}

// PendingInfo describes a scheduled transition in a snapshot.
type PendingInfo struct {
	State status.State `json:"state"`
	At    time.Time    `json:"at"`
}

// Snapshot returns the state of every tracked project, sorted by name.
func (e *Engine) Snapshot() []Snapshot {
	names := e.projects()
	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		t := e.trackers[name]
		s := Snapshot{
			Project:     name,
			State:       t.emitter.Current(),
			Runs:        t.runs,
			LastEmitted: t.emitter.LastEmitted(),
		}
		if p, ok := t.emitter.Pending(); ok {
			s.Pending = &PendingInfo{State: p.State, At: p.At}
		}
		out = append(out, s)
	}
	return out
}

func (e *Engine) projects() []string {
	names := make([]string, 0, len(e.trackers))
	for name := range e.trackers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
