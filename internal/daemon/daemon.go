// Package daemon runs vibebridge in the background: a singleton lock, a
// detached child process, and housekeeping for its log files.
package daemon

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"vibebridge/internal/logging"
)

const (
	// DaemonEnvVar is set when running as daemon child process.
	DaemonEnvVar = "VIBEBRIDGE_DAEMON"
)

// Daemon manages the daemon lifecycle.
type Daemon struct {
	dir  string
	lock *Lock
	out  io.Writer
}

// NewDaemon creates a daemon manager rooted at dir (~/.vibebridge).
func NewDaemon(dir string) *Daemon {
	return &Daemon{
		dir:  dir,
		lock: NewLock(dir),
		out:  os.Stdout,
	}
}

// SetOutput redirects the progress messages Start and Stop print.
func (d *Daemon) SetOutput(w io.Writer) {
	d.out = w
}

// Start re-executes the current binary with args in the background.
func (d *Daemon) Start(args []string) error {
	if running, pid := d.lock.IsRunning(); running {
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	logDir := filepath.Join(d.dir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	// Child stdout/stderr land in the same daily file the logger writes.
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-%s.log", logging.FilePrefix, time.Now().Format("2006-01-02")))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), DaemonEnvVar+"=1")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := cmd.Process.Signal(syscall.Signal(0)); err != nil {
		return fmt.Errorf("daemon failed to start (check logs at %s)", logPath)
	}
	cmd.Process.Release()

	fmt.Fprintf(d.out, "Daemon started (PID %d)\n", cmd.Process.Pid)
	fmt.Fprintf(d.out, "Log file: %s\n", logPath)
	return nil
}

// Stop sends SIGTERM to the running daemon, escalating to SIGKILL after
// five seconds.
func (d *Daemon) Stop() error {
	running, pid := d.lock.IsRunning()
	if !running {
		return fmt.Errorf("daemon is not running")
	}
	if pid <= 0 {
		return fmt.Errorf("daemon lock held but PID unknown (%s)", d.lock.Path())
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			fmt.Fprintf(d.out, "Daemon stopped (was PID %d)\n", pid)
			return nil
		}
	}

	if err := proc.Signal(syscall.SIGKILL); err == nil {
		fmt.Fprintf(d.out, "Daemon killed (was PID %d)\n", pid)
		return nil
	}
	return fmt.Errorf("daemon did not stop (PID %d)", pid)
}

// Restart stops the daemon if it is running, then starts it.
func (d *Daemon) Restart(args []string) error {
	if running, _ := d.lock.IsRunning(); running {
		if err := d.Stop(); err != nil {
			return fmt.Errorf("failed to stop daemon: %w", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
	return d.Start(args)
}

// Status reports whether the daemon runs, its PID and uptime.
func (d *Daemon) Status() (running bool, pid int, uptime time.Duration) {
	running, pid = d.lock.IsRunning()
	if !running {
		return false, 0, 0
	}
	return true, pid, processUptime(pid)
}

func processUptime(pid int) time.Duration {
	if pid <= 0 {
		return 0
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	created, err := p.CreateTime()
	if err != nil {
		return 0
	}
	return time.Since(time.UnixMilli(created))
}

// IsDaemon reports whether this process is the daemon child.
func IsDaemon() bool {
	return os.Getenv(DaemonEnvVar) == "1"
}

// Lock returns the daemon lock.
func (d *Daemon) Lock() *Lock {
	return d.lock
}

// Dir returns the daemon directory.
func (d *Daemon) Dir() string {
	return d.dir
}

// LogDir returns the directory holding the daily log files.
func (d *Daemon) LogDir() string {
	return filepath.Join(d.dir, "logs")
}
