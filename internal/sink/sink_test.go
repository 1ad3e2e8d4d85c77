package sink

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"vibebridge/internal/status"
)

var testTime = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

func testEvent(state status.State) status.Event {
	return status.NewEvent(state, "OpenClaw", "claw", testTime, nil)
}

type recordSink struct {
	name   string
	err    error
	events []status.Event
	closed bool
}

func (r *recordSink) Name() string { return r.name }

func (r *recordSink) Send(ctx context.Context, ev status.Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordSink) Close() error {
	r.closed = true
	return nil
}

func TestMultiSendsToAll(t *testing.T) {
	a := &recordSink{name: "a", err: errors.New("boom")}
	b := &recordSink{name: "b"}
	m := NewMulti(nil, a, b)

	err := m.Send(context.Background(), testEvent(status.Thinking))
	if err == nil || !strings.Contains(err.Error(), "a: boom") {
		t.Errorf("Send() error = %v, want a: boom", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("events = %d, %d; want 1, 1", len(a.events), len(b.events))
	}
}

func TestMultiName(t *testing.T) {
	m := NewMulti(nil)
	if m.Name() != "none" {
		t.Errorf("Name() = %q", m.Name())
	}
	m.Add(&recordSink{name: "serial"})
	m.Add(&recordSink{name: "http"})
	if m.Name() != "serial+http" {
		t.Errorf("Name() = %q", m.Name())
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d", m.Len())
	}
}

func TestMultiClose(t *testing.T) {
	a := &recordSink{name: "a"}
	b := &recordSink{name: "b"}
	if err := NewMulti(nil, a, b).Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("sinks not closed")
	}
}

func TestStdout(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	if err := s.Send(context.Background(), testEvent(status.Idle)); err != nil {
		t.Fatal(err)
	}
	want := `{"state":"idle","project":"OpenClaw","character":"claw","ts":"2026-03-01T12:30:00Z"}` + "\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
