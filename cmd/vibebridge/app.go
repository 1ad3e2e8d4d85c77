package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"

	"github.com/jonboulle/clockwork"

	"vibebridge/internal/bridge"
	"vibebridge/internal/config"
	"vibebridge/internal/daemon"
	"vibebridge/internal/engine"
	"vibebridge/internal/logging"
	"vibebridge/internal/monitor"
	"vibebridge/internal/sink"
)

// app holds what every bridge-driving command needs.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	clock  clockwork.Clock
	sinks  *sink.Multi
	serial *sink.Serial
	lock   *daemon.Lock
}

// loadConfig loads the config file, applies the environment and then the
// command-line flags.
func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadWithEnv(g.configPath, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if g.project != "" {
		cfg.Project = g.project
	}
	if g.debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger logs to the daily file when running as the daemon child and to
// stderr otherwise. The console only shows warnings unless debug is on.
func newLogger(cfg *config.Config, stderr io.Writer) (*logging.Logger, error) {
	if daemon.IsDaemon() {
		log, err := logging.New(config.DefaultConfigDir())
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		if cfg.Debug {
			log.SetLevel(logging.LevelDebug)
		}
		return log, nil
	}

	log := logging.NewConsole(stderr)
	level := logging.LevelWarn
	if cfg.Debug {
		level = logging.LevelDebug
	}
	if name := os.Getenv("VIBEBRIDGE_LOG_LEVEL"); name != "" {
		if l, ok := logging.ParseLevel(name); ok {
			level = l
		}
	}
	log.SetLevel(level)
	return log, nil
}

type appOptions struct {
	stdout   io.Writer // non-nil adds a stdout sink
	skipHTTP bool
}

// newApp builds the logger and sinks. In daemon mode it also takes the
// singleton lock and prunes old log files.
func newApp(ctx context.Context, cfg *config.Config, stderr io.Writer, opts appOptions) (*app, error) {
	log, err := newLogger(cfg, stderr)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, clock: clockwork.NewRealClock()}

	if daemon.IsDaemon() {
		dir := config.DefaultConfigDir()
		a.lock = daemon.NewLock(dir)
		if err := a.lock.TryLock(); err != nil {
			log.Close()
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		daemon.CleanupOnStart(dir, cfg.Daemon.LogRetentionDays, log)
	}

	a.sinks = sink.NewMulti(log)

	if cfg.Serial.Enabled {
		a.serial = sink.NewSerial(sink.SerialOptions{
			Pattern:        cfg.Serial.Port,
			RescanInterval: cfg.Serial.RescanInterval,
			Clock:          a.clock,
			Logger:         log,
		})
		a.sinks.Add(a.serial)
	}

	if cfg.HTTP.Enabled && !opts.skipHTTP {
		a.sinks.Add(sink.NewHTTP(sink.HTTPOptions{
			URL:       cfg.HTTP.URL,
			Timeout:   cfg.HTTP.Timeout,
			QueueSize: cfg.HTTP.QueueSize,
			Headers:   cfg.HTTP.Headers,
			UserAgent: "vibebridge/" + config.Version,
			Logger:    log,
		}))
	}

	if cfg.Daemon.EventFile {
		ef, err := sink.NewEventFile(monitor.ExpandPath(cfg.Daemon.EventFilePath), cfg.Daemon.EventFileMaxSize)
		if err != nil {
			log.Warn("Event file disabled: %v", err)
		} else {
			a.sinks.Add(ef)
		}
	}

	if cfg.Daemon.Socket {
		sock, err := sink.NewSocket(monitor.ExpandPath(cfg.Daemon.SocketPath))
		if err != nil {
			log.Warn("Socket disabled: %v", err)
		} else {
			sock.Start(ctx)
			a.sinks.Add(sock)
		}
	}

	if opts.stdout != nil {
		a.sinks.Add(sink.NewStdout(opts.stdout))
	}
	return a, nil
}

// newBridge creates the engine and bridge for this app.
func (a *app) newBridge(startupProject string) (*bridge.Bridge, error) {
	eo, err := a.cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	eo.Clock = a.clock
	eo.Logger = a.log
	return bridge.New(bridge.Options{
		Engine:         engine.New(eo),
		Sink:           a.sinks,
		Clock:          a.clock,
		Logger:         a.log,
		StartupProject: startupProject,
	}), nil
}

// Close releases the sinks, the lock and the logger.
func (a *app) Close() {
	if err := a.sinks.Close(); err != nil {
		a.log.Warn("Closing sinks: %v", err)
	}
	if a.lock != nil {
		a.lock.Unlock()
	}
	a.log.Close()
}

// runLoop runs b until ctx is cancelled and reports any unexpected error.
func runLoop(ctx context.Context, b *bridge.Bridge) <-chan error {
	errc := make(chan error, 1)
	go func() {
		err := b.Run(ctx)
		if ctx.Err() != nil {
			err = nil
		}
		errc <- err
	}()
	return errc
}

// sameEndpoint reports whether rawURL points at the listen address, which
// would make the receiver post every state back to itself.
func sameEndpoint(rawURL, listen string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return false
	}
	if port != u.Port() {
		return false
	}
	loopback := func(h string) bool {
		if h == "" || h == "localhost" {
			return true
		}
		ip := net.ParseIP(h)
		return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
	}
	return host == u.Hostname() || (loopback(host) && loopback(u.Hostname()))
}
