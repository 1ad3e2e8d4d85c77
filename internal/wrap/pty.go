// Package wrap runs a command under vibebridge and feeds its output to the
// bridge as log lines while passing the terminal through.
package wrap

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// PTY wraps a command with a pseudo-terminal for interactive use.
type PTY struct {
	cmd      *exec.Cmd
	pty      *os.File
	oldState *term.State
	winch    chan os.Signal
}

// NewPTY creates a PTY wrapper for the given command. The command is
// killed if ctx is cancelled.
func NewPTY(ctx context.Context, name string, args ...string) *PTY {
	return &PTY{cmd: exec.CommandContext(ctx, name, args...)}
}

// Start starts the command on a new pseudo-terminal and returns its output.
func (p *PTY) Start() (io.Reader, error) {
	ptmx, err := pty.Start(p.cmd)
	if err != nil {
		return nil, err
	}
	p.pty = ptmx

	p.winch = make(chan os.Signal, 1)
	signal.Notify(p.winch, syscall.SIGWINCH)
	go func() {
		for range p.winch {
			_ = pty.InheritSize(os.Stdin, ptmx)
		}
	}()
	p.winch <- syscall.SIGWINCH

	if term.IsTerminal(int(os.Stdin.Fd())) {
		if oldState, err := term.MakeRaw(int(os.Stdin.Fd())); err == nil {
			p.oldState = oldState
		}
	}

	go func() {
		_, _ = io.Copy(ptmx, os.Stdin)
	}()

	return ptmx, nil
}

// Wait waits for the command to finish and returns its exit code.
func (p *PTY) Wait() (int, error) {
	err := p.cmd.Wait()
	p.Close()
	return exitCode(err)
}

// Close restores the terminal and releases the pseudo-terminal.
func (p *PTY) Close() {
	if p.oldState != nil {
		term.Restore(int(os.Stdin.Fd()), p.oldState)
		p.oldState = nil
	}
	if p.winch != nil {
		signal.Stop(p.winch)
		close(p.winch)
		p.winch = nil
	}
	if p.pty != nil {
		p.pty.Close()
		p.pty = nil
	}
}

// exitCode maps a Wait error onto the child's exit status.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		// Killed by a signal.
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), nil
		}
		return 1, nil
	}
	return 1, err
}
