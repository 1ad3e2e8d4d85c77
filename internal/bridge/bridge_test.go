package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibebridge/internal/engine"
	"vibebridge/internal/monitor"
	"vibebridge/internal/status"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type chanSink struct {
	events chan status.Event
}

func (c *chanSink) Name() string { return "chan" }

func (c *chanSink) Send(ctx context.Context, ev status.Event) error {
	c.events <- ev
	return nil
}

type harness struct {
	bridge *Bridge
	clock  clockwork.FakeClock
	sink   *chanSink
	cancel context.CancelFunc
	done   chan error
}

func startBridge(t *testing.T, startup string) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	opts := engine.DefaultOptions()
	opts.Project = "OpenClaw"
	opts.Character = "claw"
	opts.Clock = clock

	h := &harness{
		clock: clock,
		sink:  &chanSink{events: make(chan status.Event, 16)},
		done:  make(chan error, 1),
	}
	h.bridge = New(Options{
		Engine:         engine.New(opts),
		Sink:           h.sink,
		Clock:          clock,
		StartupProject: startup,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.bridge.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) next(t *testing.T) status.Event {
	t.Helper()
	select {
	case ev := <-h.sink.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
	return status.Event{}
}

func (h *harness) quiet(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.sink.events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBridgeStartupMarker(t *testing.T) {
	h := startBridge(t, "OpenClaw")

	ev := h.next(t)
	assert.Equal(t, status.Done, ev.State)
	assert.Equal(t, engine.NoteBridgeStarted, ev.Note())
	assert.Equal(t, "OpenClaw", ev.Project)
}

func TestBridgeLinesAndDecay(t *testing.T) {
	h := startBridge(t, "")
	ctx := context.Background()

	line := `{"0":"{\"subsystem\":\"agent/embedded\"}","1":"embedded run tool start: runId=r1 tool=exec toolCallId=c1","time":"2026-03-01T12:00:00Z"}`
	require.NoError(t, h.bridge.SubmitLine(ctx, "", line))

	ev := h.next(t)
	assert.Equal(t, status.Working, ev.State)
	assert.Equal(t, "exec", ev.Tool())

	// Updates from the receiver go through the same engine.
	require.NoError(t, h.bridge.SubmitUpdate(ctx, engine.Update{State: status.Start}))
	assert.Equal(t, status.Start, h.next(t).State)

	// start decays to idle after a minute, then idle to sleep.
	h.clock.BlockUntil(1)
	h.clock.Advance(time.Minute)
	assert.Equal(t, status.Idle, h.next(t).State)

	h.clock.BlockUntil(1)
	h.clock.Advance(5 * time.Minute)
	assert.Equal(t, status.Sleep, h.next(t).State)
	h.quiet(t)
}

func TestBridgeHookDelay(t *testing.T) {
	h := startBridge(t, "")
	ctx := context.Background()

	require.NoError(t, h.bridge.SubmitHook(ctx, engine.HookEvent{Name: engine.HookBeforeAgentStart, Success: true}))
	assert.Equal(t, status.Thinking, h.next(t).State)

	require.NoError(t, h.bridge.SubmitHook(ctx, engine.HookEvent{Name: engine.HookMessageSent, Success: true}))
	h.quiet(t)

	h.clock.BlockUntil(1)
	h.clock.Advance(engine.DefaultHookDoneDelay)
	assert.Equal(t, status.Done, h.next(t).State)
}

func TestBridgeSnapshot(t *testing.T) {
	h := startBridge(t, "")
	ctx := context.Background()

	require.NoError(t, h.bridge.SubmitUpdate(ctx, engine.Update{Project: "web", State: status.Thinking}))
	h.next(t)

	snaps, err := h.bridge.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "web", snaps[0].Project)
	assert.Equal(t, status.Thinking, snaps[0].State)
}

func TestBridgeStopped(t *testing.T) {
	h := startBridge(t, "")
	h.cancel()
	<-h.bridge.Done()

	err := h.bridge.SubmitLine(context.Background(), "", "x")
	// The queue may still accept the input; after it fills, ErrStopped.
	if err != nil {
		assert.True(t, errors.Is(err, ErrStopped))
	}
	_, err = h.bridge.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestGatewayHook(t *testing.T) {
	start := GatewayHook(monitor.ProcessEvent{Running: true, PID: 1}, "OpenClaw")
	assert.Equal(t, engine.HookGatewayStart, start.Name)
	assert.Equal(t, "OpenClaw", start.Project)

	stop := GatewayHook(monitor.ProcessEvent{Running: false}, "OpenClaw")
	assert.Equal(t, engine.HookGatewayStop, stop.Name)
}

func TestBridgeSync(t *testing.T) {
	h := startBridge(t, "")
	ctx := context.Background()

	for _, state := range []status.State{status.Thinking, status.Working, status.Done} {
		require.NoError(t, h.bridge.SubmitUpdate(ctx, engine.Update{State: state}))
	}

	synced := make(chan error, 1)
	go func() { synced <- h.bridge.Sync(ctx) }()

	// Sync returns only once the queued updates have been delivered.
	for _, want := range []status.State{status.Thinking, status.Working, status.Done} {
		assert.Equal(t, want, h.next(t).State)
	}
	select {
	case err := <-synced:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Sync did not return")
	}

	h.cancel()
	<-h.bridge.Done()
	assert.ErrorIs(t, h.bridge.Sync(ctx), ErrStopped)
}
