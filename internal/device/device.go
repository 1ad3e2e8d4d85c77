// Package device locates the serial character device of a status display.
package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrNoDevice is returned when no matching writable device exists.
var ErrNoDevice = errors.New("no writable device found")

// Default device patterns. ESP32 boards with native USB enumerate as CDC ACM
// devices.
const (
	LinuxPattern  = "/dev/ttyACM*"
	DarwinPattern = "/dev/cu.usbmodem*"
)

// DefaultPattern returns the device glob for the running platform, or "" on
// platforms without a known default.
func DefaultPattern() string {
	switch runtime.GOOS {
	case "linux":
		return LinuxPattern
	case "darwin":
		return DarwinPattern
	}
	return ""
}

// Discover returns the first writable device matching pattern, in sorted
// order. A pattern without glob characters names a single device. An empty
// pattern uses the platform default.
func Discover(pattern string) (string, error) {
	if pattern == "" {
		pattern = DefaultPattern()
	}
	if pattern == "" {
		return "", fmt.Errorf("%w: no default device pattern for %s", ErrNoDevice, runtime.GOOS)
	}

	candidates := []string{pattern}
	if isGlob(pattern) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return "", fmt.Errorf("invalid device pattern %q: %w", pattern, err)
		}
		sort.Strings(matches)
		candidates = matches
	}

	var skipped []string
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if Writable(path) {
			return path, nil
		}
		skipped = append(skipped, path)
	}
	if len(skipped) > 0 {
		return "", fmt.Errorf("%w: %s not writable (check dialout group)", ErrNoDevice, strings.Join(skipped, ", "))
	}
	return "", fmt.Errorf("%w matching %s", ErrNoDevice, pattern)
}

// Writable reports whether the current user may open path for writing.
func Writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// Open opens a device for appending status lines and puts it in raw mode
// when it is a terminal.
func Open(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("open device %s: %w", path, err)
	}
	if err := MakeRaw(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("configure device %s: %w", path, err)
	}
	return f, nil
}
