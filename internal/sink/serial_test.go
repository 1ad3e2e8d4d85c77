package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibebridge/internal/device"
	"vibebridge/internal/status"
)

type fakeDevice struct {
	bytes.Buffer
	fail   bool
	closed bool
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	if d.fail {
		return 0, errors.New("input/output error")
	}
	return d.Buffer.Write(p)
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

type fakeBus struct {
	paths   []string
	scans   int
	devices map[string]*fakeDevice
}

func (b *fakeBus) discover(string) (string, error) {
	b.scans++
	if len(b.paths) == 0 {
		return "", device.ErrNoDevice
	}
	return b.paths[0], nil
}

func (b *fakeBus) open(path string) (io.WriteCloser, error) {
	d := &fakeDevice{}
	if b.devices == nil {
		b.devices = make(map[string]*fakeDevice)
	}
	b.devices[path] = d
	return d, nil
}

func newFakeSerial(bus *fakeBus) (*Serial, clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(testTime)
	s := NewSerial(SerialOptions{
		RescanInterval: 5 * time.Second,
		Clock:          clock,
		Discover:       bus.discover,
		Open:           bus.open,
	})
	return s, clock
}

func TestSerialWritesLines(t *testing.T) {
	bus := &fakeBus{paths: []string{"/dev/ttyACM0"}}
	s, _ := newFakeSerial(bus)

	require.NoError(t, s.Send(context.Background(), testEvent(status.Working)))
	require.NoError(t, s.Send(context.Background(), testEvent(status.Thinking)))

	assert.Equal(t, "/dev/ttyACM0", s.Path())
	assert.Equal(t, 1, bus.scans, "handle is cached")
	lines := bytes.Split(bytes.TrimSpace(bus.devices["/dev/ttyACM0"].Bytes()), []byte("\n"))
	assert.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), `"state":"working"`)
}

func TestSerialRescanInterval(t *testing.T) {
	bus := &fakeBus{}
	s, clock := newFakeSerial(bus)
	ctx := context.Background()

	err := s.Send(ctx, testEvent(status.Idle))
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 1, bus.scans)

	clock.Advance(time.Second)
	assert.ErrorIs(t, s.Send(ctx, testEvent(status.Thinking)), ErrNotReady)
	assert.Equal(t, 1, bus.scans, "no rescan inside interval")

	bus.paths = []string{"/dev/ttyACM1"}
	clock.Advance(5 * time.Second)
	require.NoError(t, s.Send(ctx, testEvent(status.Thinking)))
	assert.Equal(t, 2, bus.scans)
	assert.Equal(t, "/dev/ttyACM1", s.Path())
}

func TestSerialWriteFailureResetsHandle(t *testing.T) {
	bus := &fakeBus{paths: []string{"/dev/ttyACM0"}}
	s, _ := newFakeSerial(bus)
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, testEvent(status.Idle)))
	first := bus.devices["/dev/ttyACM0"]
	first.fail = true

	assert.Error(t, s.Send(ctx, testEvent(status.Thinking)))
	assert.True(t, first.closed)
	assert.Empty(t, s.Path())

	// The next event rediscovers at once.
	require.NoError(t, s.Send(ctx, testEvent(status.Working)))
	assert.Equal(t, 2, bus.scans)
	assert.NotSame(t, first, bus.devices["/dev/ttyACM0"])
}

func TestSerialWithRealFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ttyACM0")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	s := NewSerial(SerialOptions{Pattern: filepath.Join(dir, "ttyACM*")})
	defer s.Close()

	got, err := s.Discover()
	require.NoError(t, err)
	assert.Equal(t, path, got)

	require.NoError(t, s.Send(context.Background(), testEvent(status.Done)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"state":"done","project":"OpenClaw","character":"claw","ts":"2026-03-01T12:30:00Z"}`+"\n", string(data))
}

// stalledDevice accepts a write deadline and then never drains, the way a
// display with a wedged firmware loop behaves.
type stalledDevice struct {
	fakeDevice
	deadline time.Time
}

func (d *stalledDevice) SetWriteDeadline(t time.Time) error {
	d.deadline = t
	return nil
}

func (d *stalledDevice) Write(p []byte) (int, error) {
	if d.deadline.IsZero() {
		return d.fakeDevice.Write(p)
	}
	return 0, os.ErrDeadlineExceeded
}

func TestSerialWriteTimeoutResetsDevice(t *testing.T) {
	dev := &stalledDevice{}
	s := NewSerial(SerialOptions{
		Clock:        clockwork.NewFakeClockAt(testTime),
		WriteTimeout: 50 * time.Millisecond,
		Discover:     func(string) (string, error) { return "/dev/ttyACM0", nil },
		Open:         func(string) (io.WriteCloser, error) { return dev, nil },
	})

	before := time.Now()
	err := s.Send(context.Background(), testEvent(status.Working))
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)

	assert.False(t, dev.deadline.Before(before.Add(50*time.Millisecond)), "deadline = %v", dev.deadline)
	assert.True(t, dev.closed, "timed-out device should be closed")
	assert.Empty(t, s.Path())
}

func TestSerialDefaultWriteTimeout(t *testing.T) {
	s := NewSerial(SerialOptions{})
	assert.Equal(t, DefaultSerialWriteTimeout, s.timeout)
}
