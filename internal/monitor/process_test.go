package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type fakeTable struct {
	procs []ProcInfo
	err   error
}

func (f *fakeTable) list() ([]ProcInfo, error) {
	return f.procs, f.err
}

func TestFindProcess(t *testing.T) {
	procs := []ProcInfo{
		{PID: 10, Cmdline: "/usr/bin/bash"},
		{PID: 20, Cmdline: "node /opt/openclaw/gateway.js", Created: 100},
		{PID: 30, Cmdline: "openclaw-gateway --port 1", Created: 300},
		{PID: 40, Cmdline: "", Created: 500},
	}

	tests := []struct {
		name     string
		names    []string
		wantPID  int
		wantName string
	}{
		{"newest match wins", []string{"openclaw"}, 30, "openclaw"},
		{"second candidate", []string{"nothing", "gateway.js"}, 20, "gateway.js"},
		{"no match", []string{"vim"}, 0, ""},
		{"no candidates", nil, 0, ""},
		{"empty candidate ignored", []string{""}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pid, name := FindProcess(procs, tt.names)
			if pid != tt.wantPID || name != tt.wantName {
				t.Errorf("FindProcess() = %d, %q; want %d, %q", pid, name, tt.wantPID, tt.wantName)
			}
		})
	}
}

func TestProcessWatcherScan(t *testing.T) {
	table := &fakeTable{procs: []ProcInfo{{PID: 7, Cmdline: "openclaw gateway", Created: 1}}}
	w := NewProcessWatcher(ProcessWatcherOptions{Names: []string{"openclaw"}, List: table.list})

	// Baseline scan reports nothing even though the process is up.
	events, err := w.Scan()
	if err != nil || len(events) != 0 {
		t.Fatalf("baseline Scan() = %v, %v", events, err)
	}
	if w.PID() != 7 {
		t.Errorf("PID() = %d, want 7", w.PID())
	}

	events, _ = w.Scan()
	if len(events) != 0 {
		t.Errorf("unchanged Scan() = %v", events)
	}

	table.procs = nil
	events, _ = w.Scan()
	if len(events) != 1 || events[0].Running || events[0].PID != 7 {
		t.Errorf("exit Scan() = %+v", events)
	}

	table.procs = []ProcInfo{{PID: 9, Cmdline: "openclaw gateway", Created: 2}}
	events, _ = w.Scan()
	if len(events) != 1 || !events[0].Running || events[0].PID != 9 || events[0].Name != "openclaw" {
		t.Errorf("start Scan() = %+v", events)
	}

	// A restart between scans shows up as stop then start.
	table.procs = []ProcInfo{{PID: 11, Cmdline: "openclaw gateway", Created: 3}}
	events, _ = w.Scan()
	if len(events) != 2 || events[0].Running || !events[1].Running {
		t.Errorf("restart Scan() = %+v", events)
	}
}

func TestProcessWatcherScanError(t *testing.T) {
	table := &fakeTable{err: errors.New("permission denied")}
	w := NewProcessWatcher(ProcessWatcherOptions{Names: []string{"x"}, List: table.list})
	if _, err := w.Scan(); err == nil {
		t.Error("Scan() should return the listing error")
	}
}

func TestProcessWatcherRun(t *testing.T) {
	clock := clockwork.NewFakeClock()
	table := &fakeTable{}
	w := NewProcessWatcher(ProcessWatcherOptions{
		Names:    []string{"openclaw"},
		Interval: 5 * time.Second,
		Clock:    clock,
		List:     table.list,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan ProcessEvent, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(ev ProcessEvent) { got <- ev }) }()

	clock.BlockUntil(1)
	table.procs = []ProcInfo{{PID: 42, Cmdline: "openclaw", Created: 1}}
	clock.Advance(5 * time.Second)

	select {
	case ev := <-got:
		if !ev.Running || ev.PID != 42 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no process event")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0B"},
		{500, "500B"},
		{1024, "1.0KiB"},
		{1536, "1.5KiB"},
		{1048576, "1.0MiB"},
		{1073741824, "1.0GiB"},
	}

	for _, tt := range tests {
		got := HumanBytes(tt.input)
		if got != tt.want {
			t.Errorf("HumanBytes(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatProcMeta(t *testing.T) {
	if got := FormatProcMeta(nil); got != "" {
		t.Errorf("FormatProcMeta(nil) = %q", got)
	}

	got := FormatProcMeta(&ProcSample{RSSBytes: 1048576, VSZBytes: 2097152, State: "S"})
	for _, want := range []string{"RSS=1.0MiB", "VSZ=2.0MiB", "STAT=S"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatProcMeta() = %q, missing %s", got, want)
		}
	}
}
