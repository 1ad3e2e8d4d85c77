package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"vibebridge/internal/device"
	"vibebridge/internal/logging"
	"vibebridge/internal/status"
)

const (
	// DefaultRescanInterval spaces device discovery while no device is attached.
	DefaultRescanInterval = 5 * time.Second

	// DefaultSerialWriteTimeout bounds one write to the device. A timeout
	// counts as a failed write.
	DefaultSerialWriteTimeout = 500 * time.Millisecond
)

// deadliner is implemented by *os.File for pollable descriptors such as
// ttys.
type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// SerialOptions configures a Serial sink.
type SerialOptions struct {
	Pattern        string        // device path or glob; empty uses the platform default
	RescanInterval time.Duration // minimum time between failed discoveries
	WriteTimeout   time.Duration // per-write deadline; zero uses the default
	Clock          clockwork.Clock
	Logger         *logging.Logger

	// Discover and Open default to the device package.
	Discover func(pattern string) (string, error)
	Open     func(path string) (io.WriteCloser, error)
}

// Serial writes one JSON line per event to a display's serial device. The
// device handle is cached; a failed write drops it and the next event
// rediscovers.
type Serial struct {
	pattern  string
	rescan   time.Duration
	timeout  time.Duration
	clock    clockwork.Clock
	log      *logging.Logger
	discover func(string) (string, error)
	open     func(string) (io.WriteCloser, error)

	mu       sync.Mutex
	path     string
	w        io.WriteCloser
	lastScan time.Time
}

// NewSerial creates a serial sink. No device is opened until the first
// event or an explicit Discover.
func NewSerial(opts SerialOptions) *Serial {
	s := &Serial{
		pattern:  opts.Pattern,
		rescan:   opts.RescanInterval,
		timeout:  opts.WriteTimeout,
		clock:    opts.Clock,
		log:      opts.Logger,
		discover: opts.Discover,
		open:     opts.Open,
	}
	if s.rescan <= 0 {
		s.rescan = DefaultRescanInterval
	}
	if s.timeout <= 0 {
		s.timeout = DefaultSerialWriteTimeout
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.discover == nil {
		s.discover = device.Discover
	}
	if s.open == nil {
		s.open = func(path string) (io.WriteCloser, error) { return device.Open(path) }
	}
	return s
}

// Name returns the sink type.
func (s *Serial) Name() string {
	return "serial"
}

// Path returns the device in use, or "" when none is attached.
func (s *Serial) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Discover looks for a device now, ignoring the rescan interval.
func (s *Serial) Discover() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.attach(); err != nil {
		return "", err
	}
	return s.path, nil
}

// attach finds and opens a device. Must be called with s.mu held.
func (s *Serial) attach() error {
	s.lastScan = s.clock.Now()
	path, err := s.discover(s.pattern)
	if err != nil {
		return err
	}
	w, err := s.open(path)
	if err != nil {
		return err
	}
	s.path = path
	s.w = w
	s.log.Info("using tty: %s", path)
	return nil
}

// Send writes ev as one line. With no device attached and the rescan
// interval not yet elapsed it returns ErrNotReady without touching /dev.
func (s *Serial) Send(ctx context.Context, ev status.Event) error {
	line, err := ev.JSONLine()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		if !s.lastScan.IsZero() && s.clock.Since(s.lastScan) < s.rescan {
			return ErrNotReady
		}
		if err := s.attach(); err != nil {
			s.log.Debug("serial: %v", err)
			return fmt.Errorf("%w: %v", ErrNotReady, err)
		}
	}

	// Deadlines are wall-clock; the injected clock only paces rescans.
	if d, ok := s.w.(deadliner); ok {
		d.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	if _, err := s.w.Write(line); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			s.log.Warn("serial write to %s timed out after %s", s.path, s.timeout)
		} else {
			s.log.Warn("serial write to %s failed: %v", s.path, err)
		}
		s.reset()
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// reset drops the cached device so the next event rediscovers immediately.
// Must be called with s.mu held.
func (s *Serial) reset() {
	if s.w != nil {
		s.w.Close()
	}
	s.w = nil
	s.path = ""
	s.lastScan = time.Time{}
}

// Close releases the device.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	s.path = ""
	return err
}
