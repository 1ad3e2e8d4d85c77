package wrap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// ansiPattern matches CSI and OSC escape sequences in terminal output.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)

// LineFunc receives one line of the wrapped command's output.
type LineFunc func(line string)

// Options configures a Runner.
type Options struct {
	Stdout io.Writer // Where the command's output is echoed; os.Stdout when nil
	NoPTY  bool      // Run with plain pipes instead of a pseudo-terminal
}

// Runner executes a command and hands each output line to a LineFunc.
type Runner struct {
	opts   Options
	onLine LineFunc
}

// NewRunner creates a command runner.
func NewRunner(opts Options, onLine LineFunc) *Runner {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if onLine == nil {
		onLine = func(string) {}
	}
	return &Runner{opts: opts, onLine: onLine}
}

// Run executes the command and returns its exit code. Output is echoed as
// it arrives; complete lines are passed on with escape sequences removed.
func (r *Runner) Run(ctx context.Context, args []string) (int, error) {
	if len(args) == 0 {
		return 1, fmt.Errorf("no command specified")
	}
	if r.opts.NoPTY {
		return r.runPiped(ctx, args)
	}

	p := NewPTY(ctx, args[0], args[1:]...)
	output, err := p.Start()
	if err != nil {
		return 1, fmt.Errorf("failed to start command: %w", err)
	}
	defer p.Close()

	done := r.scan(output)
	code, err := p.Wait()
	<-done
	return code, err
}

func (r *Runner) runPiped(ctx context.Context, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return 1, fmt.Errorf("failed to start command: %w", err)
	}
	done := r.scan(pr)
	err := cmd.Wait()
	pw.Close()
	<-done
	return exitCode(err)
}

// scan tees output to Stdout and the line callback until EOF.
func (r *Runner) scan(output io.Reader) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(io.TeeReader(output, r.opts.Stdout))
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := CleanLine(scanner.Text())
			if line != "" {
				r.onLine(line)
			}
		}
	}()
	return done
}

// CleanLine strips terminal escape sequences and carriage returns.
func CleanLine(line string) string {
	line = ansiPattern.ReplaceAllString(line, "")
	if i := strings.LastIndexByte(line, '\r'); i >= 0 && i < len(line)-1 {
		// A bare carriage return rewrites the line; keep what is visible.
		line = line[i+1:]
	}
	return strings.TrimSpace(strings.TrimRight(line, "\r"))
}
