package sink

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"vibebridge/internal/status"
)

// DefaultEventFileMaxSize is the size at which the event file is rotated.
const DefaultEventFileMaxSize = 10 * 1024 * 1024

// EventFile appends events as JSON lines for external consumers.
type EventFile struct {
	path    string
	maxSize int64
	mu      sync.Mutex
	file    *os.File
}

// NewEventFile creates an event file sink.
// If path is empty, it defaults to ~/.vibebridge/events.jsonl.
// If maxSize is 0, it defaults to 10MB.
func NewEventFile(path string, maxSize int64) (*EventFile, error) {
	if path == "" {
		p, err := DefaultEventFilePath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if maxSize == 0 {
		maxSize = DefaultEventFileMaxSize
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return &EventFile{
		path:    path,
		maxSize: maxSize,
	}, nil
}

// DefaultEventFilePath returns ~/.vibebridge/events.jsonl.
func DefaultEventFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".vibebridge", "events.jsonl"), nil
}

// Name returns the sink type.
func (e *EventFile) Name() string {
	return "eventfile"
}

// Path returns the event file path.
func (e *EventFile) Path() string {
	return e.path
}

// Send appends ev to the file.
func (e *EventFile) Send(ctx context.Context, ev status.Event) error {
	data, err := ev.JSONLine()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.maybeRotate(); err != nil {
		return fmt.Errorf("failed to rotate event file: %w", err)
	}

	if e.file == nil {
		f, err := os.OpenFile(e.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("failed to open event file: %w", err)
		}
		e.file = f
	}

	if _, err := e.file.Write(data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return e.file.Sync()
}

// maybeRotate renames the file aside once it reaches maxSize.
// Must be called with e.mu held.
func (e *EventFile) maybeRotate() error {
	info, err := os.Stat(e.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < e.maxSize {
		return nil
	}

	if e.file != nil {
		e.file.Close()
		e.file = nil
	}

	rotatedPath := e.path + "." + time.Now().Format("2006-01-02-150405")
	if err := os.Rename(e.path, rotatedPath); err != nil {
		return fmt.Errorf("failed to rotate file: %w", err)
	}
	return nil
}

// Close closes the event file.
func (e *EventFile) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file != nil {
		err := e.file.Close()
		e.file = nil
		return err
	}
	return nil
}

// LatestByProject reads an event file and returns the last event of each
// project, sorted by project name. Lines that do not parse are skipped.
func LatestByProject(path string) ([]status.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	latest := make(map[string]status.Event)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), status.MaxPayloadSize*4)
	for scanner.Scan() {
		var ev status.Event
		if err := ev.UnmarshalJSON(scanner.Bytes()); err != nil {
			continue
		}
		latest[ev.Project] = ev
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	out := make([]status.Event, 0, len(latest))
	for _, ev := range latest {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Project < out[j].Project })
	return out, nil
}
