package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"vibebridge/internal/logging"
)

const (
	DefaultStartupWait  = 15 * time.Second
	DefaultPollInterval = time.Second
	waitStep            = 500 * time.Millisecond
)

// FollowerOptions configures a Follower.
type FollowerOptions struct {
	Dir          string        // Directory holding the daily logs
	Prefix       string        // File name prefix (default "openclaw")
	Path         string        // Fixed file to follow; disables date switching
	FromStart    bool          // Read content already in the file at startup
	StartupWait  time.Duration // How long WaitForFile waits for the first file
	PollInterval time.Duration // Fallback poll period when no fs events arrive
	Clock        clockwork.Clock
	Logger       *logging.Logger
}

// Follower follows today's log file, switching to the next day's file once
// it exists. The new file is read from its beginning.
type Follower struct {
	opts   FollowerOptions
	clock  clockwork.Clock
	log    *logging.Logger
	path   string
	tailer *Tailer
}

// NewFollower creates a follower. Nothing is opened until the first Poll.
func NewFollower(opts FollowerOptions) *Follower {
	if opts.Dir == "" {
		opts.Dir = DefaultLogDir
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultLogPrefix
	}
	if opts.StartupWait <= 0 {
		opts.StartupWait = DefaultStartupWait
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	opts.Dir = ExpandPath(opts.Dir)
	opts.Path = ExpandPath(opts.Path)

	f := &Follower{opts: opts, clock: opts.Clock, log: opts.Logger}
	f.path = f.TargetPath()
	f.tailer = NewTailer(f.path, opts.FromStart)
	return f
}

// TargetPath returns the file that should be followed right now.
func (f *Follower) TargetPath() string {
	if f.opts.Path != "" {
		return f.opts.Path
	}
	return DailyPath(f.opts.Dir, f.opts.Prefix, f.clock.Now())
}

// Path returns the file currently being followed.
func (f *Follower) Path() string {
	return f.path
}

// WaitForFile blocks until the current file exists, the startup wait
// elapses, or ctx is cancelled. It reports whether the file exists.
func (f *Follower) WaitForFile(ctx context.Context) bool {
	deadline := f.clock.Now().Add(f.opts.StartupWait)
	for {
		if _, err := os.Stat(f.path); err == nil {
			return true
		}
		if !f.clock.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-f.clock.After(waitStep):
		}
	}
}

// Poll switches files on a date change and returns lines appended since
// the previous call. A missing file yields no lines and no error.
func (f *Follower) Poll() ([]string, error) {
	var lines []string

	if next := f.TargetPath(); next != f.path {
		if _, err := os.Stat(next); err == nil {
			// Drain what is left of the old day first.
			if rest, err := f.tailer.ReadNewLines(); err == nil {
				lines = append(lines, rest...)
			}
			f.tailer.Close()
			f.log.Info("Switching log: %s -> %s", f.path, next)
			f.path = next
			f.tailer = NewTailer(next, true)
		}
	}

	got, err := f.tailer.ReadNewLines()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return lines, nil
		}
		return lines, err
	}
	return append(lines, got...), nil
}

// Run waits for the log file, then delivers every new line to emit until
// ctx is cancelled. fsnotify events trigger reads; a poll ticker covers
// date switches and filesystems without notifications.
func (f *Follower) Run(ctx context.Context, emit func(line string)) error {
	if !f.WaitForFile(ctx) && ctx.Err() == nil {
		f.log.Warn("Log file %s not found after %s, following anyway", f.path, f.opts.StartupWait)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		f.log.Warn("fsnotify unavailable, polling only: %v", err)
		fsw = nil
	} else {
		defer fsw.Close()
	}
	watching := f.watchDir(fsw)

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fsw != nil {
		events = fsw.Events
		errs = fsw.Errors
	}

	ticker := f.clock.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	deliver := func() {
		lines, err := f.Poll()
		if err != nil {
			f.log.Warn("Read %s: %v", f.path, err)
		}
		for _, line := range lines {
			emit(line)
		}
	}
	deliver()

	for {
		select {
		case <-ctx.Done():
			f.tailer.Close()
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !f.relevant(ev.Name) {
				continue
			}
			deliver()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			f.log.Warn("fsnotify error: %v", err)

		case <-ticker.Chan():
			if !watching {
				watching = f.watchDir(fsw)
			}
			deliver()
		}
	}
}

// watchDir adds the log directory to fsw. It fails quietly while the
// directory does not exist.
func (f *Follower) watchDir(fsw *fsnotify.Watcher) bool {
	if fsw == nil {
		return false
	}
	dir := filepath.Dir(f.path)
	if err := fsw.Add(dir); err != nil {
		f.log.Debug("Cannot watch %s: %v", dir, err)
		return false
	}
	return true
}

func (f *Follower) relevant(name string) bool {
	if name == f.path {
		return true
	}
	if f.opts.Path != "" {
		return false
	}
	return strings.HasPrefix(filepath.Base(name), f.opts.Prefix+"-")
}
