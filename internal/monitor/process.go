package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shirou/gopsutil/v3/process"

	"vibebridge/internal/logging"
)

// DefaultProcessInterval is how often the process table is scanned.
const DefaultProcessInterval = 5 * time.Second

// ProcInfo is the slice of a process table entry the watcher needs.
type ProcInfo struct {
	PID     int32
	Cmdline string
	Created int64 // Creation time in ms since epoch
}

// ProcessEvent reports that the watched process appeared or went away.
type ProcessEvent struct {
	Running bool
	PID     int
	Name    string // Candidate that matched
}

// ProcSample is a snapshot of process resource usage.
type ProcSample struct {
	CPUSeconds float64   // Cumulative CPU time (user + system) in seconds
	Wall       time.Time // Wall clock time when sample was taken
	RSSBytes   int64     // Resident set size in bytes
	VSZBytes   int64     // Virtual memory size in bytes
	State      string    // Process state (R/S/D/Z/T), platform-dependent
}

// ProcessWatcherOptions configures a ProcessWatcher.
type ProcessWatcherOptions struct {
	Names    []string // Substrings matched against each command line
	Interval time.Duration
	Clock    clockwork.Clock
	Logger   *logging.Logger
	List     func() ([]ProcInfo, error) // Process table source; gopsutil when nil
}

// ProcessWatcher polls the process table for the gateway process and
// reports start and stop transitions.
type ProcessWatcher struct {
	opts    ProcessWatcherOptions
	pid     int
	name    string
	scanned bool
}

// NewProcessWatcher creates a watcher for the given candidate names.
func NewProcessWatcher(opts ProcessWatcherOptions) *ProcessWatcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultProcessInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.List == nil {
		opts.List = ListProcesses
	}
	return &ProcessWatcher{opts: opts}
}

// PID returns the PID seen by the last scan, or 0.
func (w *ProcessWatcher) PID() int {
	return w.pid
}

// Scan checks the process table once. The first scan only records a
// baseline; later scans return an event when the process appears, exits
// or is replaced by a newer one.
func (w *ProcessWatcher) Scan() ([]ProcessEvent, error) {
	procs, err := w.opts.List()
	if err != nil {
		return nil, err
	}
	pid, name := FindProcess(procs, w.opts.Names)

	first := !w.scanned
	w.scanned = true
	prevPID, prevName := w.pid, w.name
	w.pid, w.name = pid, name

	if first || pid == prevPID {
		return nil, nil
	}

	var events []ProcessEvent
	if prevPID != 0 {
		events = append(events, ProcessEvent{Running: false, PID: prevPID, Name: prevName})
	}
	if pid != 0 {
		events = append(events, ProcessEvent{Running: true, PID: pid, Name: name})
	}
	return events, nil
}

// Run scans every interval and passes transitions to emit until ctx is
// cancelled.
func (w *ProcessWatcher) Run(ctx context.Context, emit func(ProcessEvent)) error {
	if len(w.opts.Names) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	log := w.opts.Logger
	scan := func() {
		events, err := w.Scan()
		if err != nil {
			log.Debug("Process scan failed: %v", err)
			return
		}
		for _, ev := range events {
			if ev.Running {
				log.Info("Gateway process %q started (PID %d)", ev.Name, ev.PID)
			} else {
				log.Info("Gateway process %q exited (PID %d)", ev.Name, ev.PID)
			}
			emit(ev)
		}
	}
	scan()
	if w.pid > 0 {
		log.Info("Tracking process: PID %d", w.pid)
	}

	ticker := w.opts.Clock.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			scan()
		}
	}
}

// FindProcess returns the most recently created process whose command line
// contains one of names.
func FindProcess(procs []ProcInfo, names []string) (int, string) {
	var (
		best    ProcInfo
		matched string
	)
	for _, p := range procs {
		if p.Cmdline == "" {
			continue
		}
		for _, name := range names {
			if name == "" || !strings.Contains(p.Cmdline, name) {
				continue
			}
			if matched == "" || p.Created > best.Created {
				best, matched = p, name
			}
			break
		}
	}
	return int(best.PID), matched
}

// ListProcesses reads the process table with gopsutil.
func ListProcesses() ([]ProcInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	out := make([]ProcInfo, 0, len(procs))
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}
		created, _ := p.CreateTime()
		out = append(out, ProcInfo{PID: p.Pid, Cmdline: cmdline, Created: created})
	}
	return out, nil
}

// ReadProcSample reads process stats using gopsutil.
func ReadProcSample(pid int) (ProcSample, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ProcSample{}, fmt.Errorf("failed to open process: %w", err)
	}

	sample := ProcSample{Wall: time.Now()}
	if times, err := p.Times(); err == nil {
		sample.CPUSeconds = times.User + times.System
	}
	if memInfo, err := p.MemoryInfo(); err == nil {
		sample.RSSBytes = int64(memInfo.RSS)
		sample.VSZBytes = int64(memInfo.VMS)
	}
	if status, err := p.Status(); err == nil && len(status) > 0 {
		sample.State = status[0]
	}
	return sample, nil
}

// FormatProcMeta formats process metadata for display.
func FormatProcMeta(sample *ProcSample) string {
	if sample == nil {
		return ""
	}
	state := sample.State
	if state == "" {
		state = "?"
	}
	return fmt.Sprintf(" (RSS=%s VSZ=%s STAT=%s)",
		HumanBytes(sample.RSSBytes),
		HumanBytes(sample.VSZBytes),
		state)
}

// HumanBytes formats bytes in human-readable form.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for n >= unit*div && exp < 5 {
		div *= unit
		exp++
	}
	value := float64(n) / float64(div)
	return fmt.Sprintf("%.1f%ciB", value, "KMGTPE"[exp])
}
