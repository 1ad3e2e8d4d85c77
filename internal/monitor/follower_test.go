package monitor

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestDailyPath(t *testing.T) {
	at := time.Date(2026, 3, 7, 10, 0, 0, 0, time.Local)

	if got, want := DailyPath("/tmp/openclaw", "", at), "/tmp/openclaw/openclaw-2026-03-07.log"; got != want {
		t.Errorf("DailyPath() = %q, want %q", got, want)
	}
	if got, want := DailyPath("/var/log", "gw", at), "/var/log/gw-2026-03-07.log"; got != want {
		t.Errorf("DailyPath() = %q, want %q", got, want)
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in, want string
	}{
		{"~", home},
		{"~/logs", filepath.Join(home, "logs")},
		{"/abs/path", "/abs/path"},
		{"~other/x", "~other/x"},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFollowerDateSwitch(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 23, 59, 58, 0, time.Local))

	today := DailyPath(dir, "openclaw", clock.Now())
	appendFile(t, today, "existing\n")

	f := NewFollower(FollowerOptions{Dir: dir, Clock: clock})
	if f.Path() != today {
		t.Fatalf("Path() = %q, want %q", f.Path(), today)
	}

	lines, err := f.Poll()
	if err != nil || len(lines) != 0 {
		t.Fatalf("first Poll() = %q, %v; existing content should be skipped", lines, err)
	}

	appendFile(t, today, "late today\n")
	clock.Advance(5 * time.Second)

	// Tomorrow's file does not exist yet, so keep following today.
	lines, _ = f.Poll()
	if !reflect.DeepEqual(lines, []string{"late today"}) {
		t.Errorf("Poll() = %q", lines)
	}
	if f.Path() != today {
		t.Errorf("switched before the new file existed")
	}

	tomorrow := DailyPath(dir, "openclaw", clock.Now())
	appendFile(t, today, "last words\n")
	appendFile(t, tomorrow, "morning 1\nmorning 2\n")

	lines, err = f.Poll()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"last words", "morning 1", "morning 2"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("Poll() after switch = %q, want %q", lines, want)
	}
	if f.Path() != tomorrow {
		t.Errorf("Path() = %q, want %q", f.Path(), tomorrow)
	}
}

func TestFollowerFixedPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")
	f := NewFollower(FollowerOptions{Path: path, FromStart: true})

	lines, err := f.Poll()
	if err != nil || len(lines) != 0 {
		t.Fatalf("Poll() on missing file = %q, %v", lines, err)
	}

	appendFile(t, path, "hello\n")
	lines, _ = f.Poll()
	if !reflect.DeepEqual(lines, []string{"hello"}) {
		t.Errorf("Poll() = %q", lines)
	}
}

func TestFollowerWaitForFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.log")

	f := NewFollower(FollowerOptions{Path: path, StartupWait: 50 * time.Millisecond})
	start := time.Now()
	if f.WaitForFile(context.Background()) {
		t.Error("WaitForFile() = true for a missing file")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("WaitForFile() ignored the startup wait")
	}

	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if !f.WaitForFile(context.Background()) {
		t.Error("WaitForFile() = false for an existing file")
	}
}

func TestFollowerRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")
	appendFile(t, path, "one\n")

	f := NewFollower(FollowerOptions{
		Path:         path,
		FromStart:    true,
		PollInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 8)
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, func(line string) { got <- line }) }()

	expect := func(want string) {
		t.Helper()
		select {
		case line := <-got:
			if line != want {
				t.Errorf("line = %q, want %q", line, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	expect("one")
	appendFile(t, path, "two\n")
	expect("two")

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
