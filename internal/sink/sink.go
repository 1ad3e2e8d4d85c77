// Package sink delivers status events to display surfaces and integrations.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vibebridge/internal/logging"
	"vibebridge/internal/status"
)

// Sink is a destination for status events. Implementations must not block
// for long: the bridge loop calls Send inline.
type Sink interface {
	// Send delivers one event.
	Send(ctx context.Context, ev status.Event) error

	// Name returns the sink type name.
	Name() string
}

// Multi fans events out to several sinks. Every sink is tried; failures are
// logged and joined into the returned error.
type Multi struct {
	sinks []Sink
	log   *logging.Logger
}

// NewMulti creates a fan-out sink.
func NewMulti(log *logging.Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, log: log}
}

// Add appends a sink.
func (m *Multi) Add(s Sink) {
	m.sinks = append(m.sinks, s)
}

// Name returns the combined sink names.
func (m *Multi) Name() string {
	if len(m.sinks) == 0 {
		return "none"
	}
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Len returns the number of member sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Send delivers ev to every sink.
func (m *Multi) Send(ctx context.Context, ev status.Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Send(ctx, ev); err != nil {
			if !errors.Is(err, ErrNotReady) {
				m.log.LogEvent(logging.LevelWarn, ev.Project, "sink_failed",
					fmt.Sprintf("%s: %v", s.Name(), err), string(ev.State))
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if closer, ok := s.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// ErrNotReady is returned by sinks that have nowhere to deliver yet, such as
// a serial sink with no device attached. It is not logged as a failure.
var ErrNotReady = errors.New("sink not ready")
