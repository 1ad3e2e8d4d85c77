package sink

import (
	"context"
	"io"
	"os"
	"sync"

	"vibebridge/internal/status"
)

// Stdout prints each event as a JSON line.
type Stdout struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdout creates a sink writing to w, or os.Stdout when w is nil.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{w: w}
}

// Name returns the sink type.
func (s *Stdout) Name() string {
	return "stdout"
}

// Send prints ev.
func (s *Stdout) Send(ctx context.Context, ev status.Event) error {
	data, err := ev.JSONLine()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(data)
	return err
}
