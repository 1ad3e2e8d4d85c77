// Package bridge runs the single loop that joins log lines, hook events and
// external updates with the engine's timers and fans the resulting status
// events out to the sinks. Only the loop goroutine touches the engine.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"vibebridge/internal/engine"
	"vibebridge/internal/logging"
	"vibebridge/internal/monitor"
	"vibebridge/internal/sink"
	"vibebridge/internal/status"
)

// DefaultQueueSize bounds inputs waiting for the loop.
const DefaultQueueSize = 256

// ErrStopped is returned by Submit after the loop has exited.
var ErrStopped = errors.New("bridge stopped")

// Input is one unit of work for the loop. Exactly one of Line, Hook or
// Update is used, checked in that order.
type Input struct {
	Project string
	Line    string
	Hook    *engine.HookEvent
	Update  *engine.Update

	sync chan struct{}
}

// Options configures a Bridge.
type Options struct {
	Engine    *engine.Engine
	Sink      sink.Sink
	Clock     clockwork.Clock
	Logger    *logging.Logger
	QueueSize int

	// StartupProject, when set, receives the bridge-started marker as soon
	// as Run begins.
	StartupProject string
}

// Bridge owns an engine and drives it from one goroutine.
type Bridge struct {
	eng    *engine.Engine
	sink   sink.Sink
	clock  clockwork.Clock
	log    *logging.Logger
	opts   Options
	inputs chan Input
	snaps  chan chan []engine.Snapshot
	done   chan struct{}
}

// New creates a bridge. Call Run to start it.
func New(opts Options) *Bridge {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Engine == nil {
		eo := engine.DefaultOptions()
		eo.Clock = opts.Clock
		eo.Logger = opts.Logger
		opts.Engine = engine.New(eo)
	}
	if opts.Sink == nil {
		opts.Sink = sink.NewMulti(opts.Logger)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Bridge{
		eng:    opts.Engine,
		sink:   opts.Sink,
		clock:  opts.Clock,
		log:    opts.Logger,
		opts:   opts,
		inputs: make(chan Input, opts.QueueSize),
		snaps:  make(chan chan []engine.Snapshot),
		done:   make(chan struct{}),
	}
}

// Done is closed when Run returns.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Submit queues an input, blocking while the queue is full.
func (b *Bridge) Submit(ctx context.Context, in Input) error {
	select {
	case b.inputs <- in:
		return nil
	case <-b.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitLine queues a raw log line for project.
func (b *Bridge) SubmitLine(ctx context.Context, project, line string) error {
	return b.Submit(ctx, Input{Project: project, Line: line})
}

// SubmitHook queues a hook event.
func (b *Bridge) SubmitHook(ctx context.Context, h engine.HookEvent) error {
	return b.Submit(ctx, Input{Project: h.Project, Hook: &h})
}

// SubmitUpdate queues an external state update.
func (b *Bridge) SubmitUpdate(ctx context.Context, u engine.Update) error {
	return b.Submit(ctx, Input{Project: u.Project, Update: &u})
}

// Sync waits until every input queued before it has been processed.
func (b *Bridge) Sync(ctx context.Context) error {
	ch := make(chan struct{})
	if err := b.Submit(ctx, Input{sync: ch}); err != nil {
		return err
	}
	select {
	case <-ch:
		return nil
	case <-b.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot asks the loop for the current per-project state.
func (b *Bridge) Snapshot(ctx context.Context) ([]engine.Snapshot, error) {
	reply := make(chan []engine.Snapshot, 1)
	select {
	case b.snaps <- reply:
	case <-b.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run processes inputs and timers until ctx is cancelled. Inputs still
// queued at cancellation are dropped.
func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.done)

	if b.opts.StartupProject != "" {
		b.dispatch(ctx, b.eng.Startup(b.opts.StartupProject))
	}

	for {
		var (
			timer clockwork.Timer
			wake  <-chan time.Time
		)
		if at, ok := b.eng.NextDeadline(); ok {
			timer = b.clock.NewTimer(at.Sub(b.clock.Now()))
			wake = timer.Chan()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case in := <-b.inputs:
			b.dispatch(ctx, b.apply(in))

		case reply := <-b.snaps:
			reply <- b.eng.Snapshot()

		case <-wake:
			b.dispatch(ctx, b.eng.Tick())
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

func (b *Bridge) apply(in Input) []status.Event {
	switch {
	case in.sync != nil:
		close(in.sync)
		return nil
	case in.Line != "":
		return b.eng.HandleLine(in.Project, in.Line)
	case in.Hook != nil:
		h := *in.Hook
		if h.Project == "" {
			h.Project = in.Project
		}
		return b.eng.ApplyHook(h)
	case in.Update != nil:
		u := *in.Update
		if u.Project == "" {
			u.Project = in.Project
		}
		return b.eng.Set(u)
	}
	return nil
}

func (b *Bridge) dispatch(ctx context.Context, events []status.Event) {
	for _, ev := range events {
		b.log.LogEvent(logging.LevelInfo, ev.Project, "state", string(ev.State), details(ev))
		if err := b.sink.Send(ctx, ev); err != nil && !errors.Is(err, sink.ErrNotReady) {
			b.log.Debug("Deliver %s/%s: %v", ev.Project, ev.State, err)
		}
	}
}

func details(ev status.Event) string {
	if tool := ev.Tool(); tool != "" {
		return "tool=" + tool
	}
	if note := ev.Note(); note != "" {
		return "note=" + note
	}
	return ""
}

// GatewayHook converts a process transition into the matching lifecycle
// hook for project.
func GatewayHook(ev monitor.ProcessEvent, project string) engine.HookEvent {
	name := engine.HookGatewayStop
	if ev.Running {
		name = engine.HookGatewayStart
	}
	return engine.HookEvent{Name: name, Project: project, Success: true}
}

// String describes the bridge for diagnostics.
func (b *Bridge) String() string {
	return fmt.Sprintf("bridge(policy=%s, sinks=%s)", b.eng.Policy(), b.sink.Name())
}
