package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// LockFile is the singleton lock's file name inside the state directory.
const LockFile = "vibebridge.lock"

// Lock is a flock-based singleton lock holding the owner's PID.
type Lock struct {
	path string
	fl   *flock.Flock
}

// NewLock creates a lock under dir.
func NewLock(dir string) *Lock {
	return &Lock{path: filepath.Join(dir, LockFile)}
}

// TryLock acquires the lock without blocking and records our PID in it.
func (l *Lock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(l.path, flock.SetPermissions(0644))
	ok, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		fl.Close()
		if pid := l.readPID(); pid > 0 {
			return fmt.Errorf("another instance is running (PID %d)", pid)
		}
		return fmt.Errorf("another instance is already running")
	}

	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		fl.Unlock()
		return fmt.Errorf("failed to write PID: %w", err)
	}
	l.fl = fl
	return nil
}

// Unlock releases the lock and removes the lock file.
func (l *Lock) Unlock() error {
	if l.fl == nil {
		return nil
	}
	err := l.fl.Unlock()
	l.fl = nil
	os.Remove(l.path)
	return err
}

func (l *Lock) readPID() int {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// IsRunning reports whether another process holds the lock, and its PID.
func (l *Lock) IsRunning() (bool, int) {
	if _, err := os.Stat(l.path); err != nil {
		return false, 0
	}

	fl := flock.New(l.path)
	ok, err := fl.TryLock()
	if err != nil {
		return false, 0
	}
	if !ok {
		fl.Close()
		return true, l.readPID()
	}
	fl.Unlock()
	return false, 0
}

// GetPID returns the PID of the running daemon, or 0 if not running.
func (l *Lock) GetPID() int {
	if running, pid := l.IsRunning(); running {
		return pid
	}
	return 0
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}
