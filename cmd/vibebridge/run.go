package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vibebridge/internal/bridge"
	"vibebridge/internal/config"
	"vibebridge/internal/daemon"
	"vibebridge/internal/monitor"
)

// exitNoDevice is the exit status when --require-device finds nothing.
const exitNoDevice = 2

type runFlags struct {
	logDir        string
	logFile       string
	fromStart     bool
	requireDevice bool
	stdout        bool
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	fl := cmd.Flags()
	fl.StringVar(&f.logDir, "log-dir", "", "Directory holding the daily gateway logs")
	fl.StringVar(&f.logFile, "log-file", "", "Follow this file instead of the daily log")
	fl.BoolVar(&f.fromStart, "from-start", false, "Replay lines already in the log")
	fl.BoolVar(&f.requireDevice, "require-device", false, "Exit with status 2 when no serial device is found")
	fl.BoolVar(&f.stdout, "stdout", false, "Also print status events to stdout")
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Follow the gateway log and drive the displays (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd, g, f)
		},
	}
	addRunFlags(cmd, f)
	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runBridge follows the gateway log until interrupted.
func runBridge(cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if f.logDir != "" {
		cfg.Source.LogDir = f.logDir
	}
	if f.logFile != "" {
		cfg.Source.Path = f.logFile
	}
	if f.fromStart {
		cfg.Source.FromStart = true
	}
	if f.requireDevice {
		cfg.Serial.Required = true
		cfg.Serial.Enabled = true
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	var stdout io.Writer
	if f.stdout {
		stdout = cmd.OutOrStdout()
	}
	a, err := newApp(ctx, cfg, cmd.ErrOrStderr(), appOptions{stdout: stdout})
	if err != nil {
		return err
	}
	defer a.Close()

	stderr := cmd.ErrOrStderr()
	if err := probeDevice(a, stderr); err != nil {
		return err
	}

	follower := monitor.NewFollower(monitor.FollowerOptions{
		Dir:          cfg.Source.LogDir,
		Prefix:       cfg.Source.Prefix,
		Path:         cfg.Source.Path,
		FromStart:    cfg.Source.FromStart,
		StartupWait:  cfg.Source.StartupWait,
		PollInterval: cfg.Source.PollInterval,
		Clock:        a.clock,
		Logger:       a.log,
	})
	if !daemon.IsDaemon() {
		fmt.Fprintf(stderr, "Tailing log: %s\n", follower.Path())
	}

	b, err := a.newBridge(cfg.Project)
	if err != nil {
		return err
	}
	session := uuid.NewString()
	a.log.Info("vibebridge %s starting (session %s, project %s, %s)", config.Version, session, cfg.Project, b)

	loopErr := runLoop(ctx, b)

	go func() {
		err := follower.Run(ctx, func(line string) {
			if err := b.SubmitLine(ctx, cfg.Project, line); err != nil && ctx.Err() == nil {
				a.log.Debug("Dropped line: %v", err)
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("Follower stopped: %v", err)
		}
	}()

	if len(cfg.Monitor.ProcessNames) > 0 {
		watcher := monitor.NewProcessWatcher(monitor.ProcessWatcherOptions{
			Names:    cfg.Monitor.ProcessNames,
			Interval: cfg.Monitor.ProcessInterval,
			Clock:    a.clock,
			Logger:   a.log,
		})
		go watcher.Run(ctx, func(ev monitor.ProcessEvent) {
			b.SubmitHook(ctx, bridge.GatewayHook(ev, cfg.Project))
		})
	}

	err = <-loopErr
	a.log.Info("vibebridge stopped (session %s)", session)
	return err
}

// probeDevice looks for the serial display once at startup and reports the
// result. With serial.required set, a missing device is fatal.
func probeDevice(a *app, stderr io.Writer) error {
	if a.serial == nil {
		return nil
	}
	quiet := daemon.IsDaemon()

	path, err := a.serial.Discover()
	if err != nil {
		if a.cfg.Serial.Required {
			return &ExitError{
				Code: exitNoDevice,
				Err:  fmt.Errorf("no serial device found (%v); plug in the display and retry", err),
			}
		}
		a.log.Warn("No serial device yet (%v); rescanning every %s", err, a.cfg.Serial.RescanInterval)
		if !quiet {
			fmt.Fprintf(stderr, "Warning: no serial device found; will retry every %s\n", a.cfg.Serial.RescanInterval)
		}
		return nil
	}

	if !quiet {
		fmt.Fprintf(stderr, "Using tty: %s\n", path)
	}
	return nil
}
