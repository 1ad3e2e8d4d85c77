// Package config provides configuration management for vibebridge.
// It reads YAML (or TOML) config files and applies environment overrides on top.
package config

import (
	"fmt"
	"strings"
	"time"

	"vibebridge/internal/engine"
	"vibebridge/internal/sink"
	"vibebridge/internal/status"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Config is the root configuration structure for vibebridge.
type Config struct {
	Version   string         `yaml:"version" toml:"version"`
	Project   string         `yaml:"project" toml:"project"`
	Character string         `yaml:"character" toml:"character"`
	Source    SourceConfig   `yaml:"source" toml:"source"`
	Monitor   MonitorConfig  `yaml:"monitor" toml:"monitor"`
	Serial    SerialConfig   `yaml:"serial" toml:"serial"`
	HTTP      HTTPConfig     `yaml:"http" toml:"http"`
	Receiver  ReceiverConfig `yaml:"receiver" toml:"receiver"`
	Daemon    DaemonConfig   `yaml:"daemon" toml:"daemon"`
	Debug     bool           `yaml:"debug" toml:"debug"`
}

// SourceConfig locates the agent log being followed.
type SourceConfig struct {
	LogDir       string        `yaml:"log_dir" toml:"log_dir"`
	Prefix       string        `yaml:"prefix" toml:"prefix"`
	Path         string        `yaml:"path,omitempty" toml:"path,omitempty"` // fixed file; disables daily switching
	FromStart    bool          `yaml:"from_start" toml:"from_start"`
	StartupWait  time.Duration `yaml:"startup_wait" toml:"startup_wait"`
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval"`
}

// MonitorConfig holds inference timings and the gateway process watch.
type MonitorConfig struct {
	Debounce            time.Duration `yaml:"debounce" toml:"debounce"`
	SubsystemPolicy     string        `yaml:"subsystem_policy" toml:"subsystem_policy"` // "permissive" | "strict"
	StartToIdle         time.Duration `yaml:"start_to_idle" toml:"start_to_idle"`
	DoneToIdle          time.Duration `yaml:"done_to_idle" toml:"done_to_idle"`
	IdleToSleep         time.Duration `yaml:"idle_to_sleep" toml:"idle_to_sleep"`
	NotificationToSleep time.Duration `yaml:"notification_to_sleep" toml:"notification_to_sleep"`
	HookDoneDelay       time.Duration `yaml:"hook_done_delay" toml:"hook_done_delay"`
	ProcessNames        []string      `yaml:"process_names,omitempty" toml:"process_names,omitempty"` // empty = no process watch
	ProcessInterval     time.Duration `yaml:"process_interval" toml:"process_interval"`
}

// SerialConfig configures the USB serial display sink.
type SerialConfig struct {
	Enabled        bool          `yaml:"enabled" toml:"enabled"`
	Port           string        `yaml:"port,omitempty" toml:"port,omitempty"` // path or glob; empty = platform default
	Required       bool          `yaml:"required" toml:"required"`
	RescanInterval time.Duration `yaml:"rescan_interval" toml:"rescan_interval"`
}

// HTTPConfig configures the desktop overlay sink.
type HTTPConfig struct {
	Enabled   bool              `yaml:"enabled" toml:"enabled"`
	URL       string            `yaml:"url" toml:"url"`
	Timeout   time.Duration     `yaml:"timeout" toml:"timeout"`
	QueueSize int               `yaml:"queue_size" toml:"queue_size"`
	Headers   map[string]string `yaml:"headers,omitempty" toml:"headers,omitempty"`
}

// ReceiverConfig configures the serve command.
type ReceiverConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
}

// DaemonConfig defines daemon mode settings.
type DaemonConfig struct {
	LogRetentionDays int `yaml:"log_retention_days" toml:"log_retention_days"` // 0 = forever

	EventFile        bool   `yaml:"event_file" toml:"event_file"`
	EventFilePath    string `yaml:"event_file_path" toml:"event_file_path"` // default: ~/.vibebridge/events.jsonl
	EventFileMaxSize int64  `yaml:"event_file_max_size" toml:"event_file_max_size"`

	Socket     bool   `yaml:"socket" toml:"socket"`
	SocketPath string `yaml:"socket_path" toml:"socket_path"` // default: ~/.vibebridge/vibebridge.sock
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:   "1",
		Project:   "OpenClaw",
		Character: "claw",
		Source: SourceConfig{
			LogDir:       "/tmp/openclaw",
			Prefix:       "openclaw",
			StartupWait:  15 * time.Second,
			PollInterval: time.Second,
		},
		Monitor: MonitorConfig{
			Debounce:            engine.DefaultDebounce,
			SubsystemPolicy:     string(engine.PolicyPermissive),
			StartToIdle:         time.Minute,
			DoneToIdle:          time.Minute,
			IdleToSleep:         5 * time.Minute,
			NotificationToSleep: 5 * time.Minute,
			HookDoneDelay:       engine.DefaultHookDoneDelay,
			ProcessInterval:     5 * time.Second,
		},
		Serial: SerialConfig{
			Enabled:        true,
			RescanInterval: sink.DefaultRescanInterval,
		},
		HTTP: HTTPConfig{
			Enabled:   false,
			URL:       sink.DefaultDesktopURL,
			Timeout:   2 * time.Second,
			QueueSize: 64,
		},
		Receiver: ReceiverConfig{
			Listen: "127.0.0.1:19280",
		},
		Daemon: DaemonConfig{
			LogRetentionDays: 7,
			EventFile:        true,
			EventFileMaxSize: sink.DefaultEventFileMaxSize,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Project) == "" {
		return &ValidationError{Field: "project", Message: "must not be empty"}
	}
	if len(c.Project) > status.ProjectMaxLength {
		return &ValidationError{Field: "project", Message: fmt.Sprintf("must be at most %d characters", status.ProjectMaxLength)}
	}
	if c.Character != "" && !status.ValidCharacter(c.Character) {
		return &ValidationError{Field: "character", Message: fmt.Sprintf("must be one of %s", strings.Join(status.Characters, ", "))}
	}
	if c.Source.Path == "" && c.Source.LogDir == "" {
		return &ValidationError{Field: "source.log_dir", Message: "must be set when source.path is empty"}
	}
	if c.Source.PollInterval <= 0 {
		return &ValidationError{Field: "source.poll_interval", Message: "must be positive"}
	}
	if c.Source.StartupWait < 0 {
		return &ValidationError{Field: "source.startup_wait", Message: "must not be negative"}
	}
	if _, err := engine.ParsePolicy(c.Monitor.SubsystemPolicy); err != nil {
		return &ValidationError{Field: "monitor.subsystem_policy", Message: "must be 'permissive' or 'strict'"}
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"monitor.debounce", c.Monitor.Debounce},
		{"monitor.start_to_idle", c.Monitor.StartToIdle},
		{"monitor.done_to_idle", c.Monitor.DoneToIdle},
		{"monitor.idle_to_sleep", c.Monitor.IdleToSleep},
		{"monitor.notification_to_sleep", c.Monitor.NotificationToSleep},
		{"monitor.hook_done_delay", c.Monitor.HookDoneDelay},
	}
	for _, d := range durations {
		if d.value < 0 {
			return &ValidationError{Field: d.field, Message: "must not be negative"}
		}
	}
	if len(c.Monitor.ProcessNames) > 0 && c.Monitor.ProcessInterval <= 0 {
		return &ValidationError{Field: "monitor.process_interval", Message: "must be positive when process_names is set"}
	}

	if c.Serial.Enabled && c.Serial.RescanInterval <= 0 {
		return &ValidationError{Field: "serial.rescan_interval", Message: "must be positive"}
	}
	if c.HTTP.Enabled {
		if !strings.HasPrefix(c.HTTP.URL, "http://") && !strings.HasPrefix(c.HTTP.URL, "https://") {
			return &ValidationError{Field: "http.url", Message: "must be an http:// or https:// URL"}
		}
		if c.HTTP.Timeout <= 0 {
			return &ValidationError{Field: "http.timeout", Message: "must be positive"}
		}
		if c.HTTP.QueueSize < 1 {
			return &ValidationError{Field: "http.queue_size", Message: "must be at least 1"}
		}
	}
	if c.Receiver.Listen == "" {
		return &ValidationError{Field: "receiver.listen", Message: "must not be empty"}
	}

	if c.Daemon.LogRetentionDays < 0 {
		return &ValidationError{Field: "daemon.log_retention_days", Message: "must not be negative"}
	}
	if c.Daemon.EventFileMaxSize < 0 {
		return &ValidationError{Field: "daemon.event_file_max_size", Message: "must not be negative"}
	}
	return nil
}

// Decays builds the engine's decay table. A zero duration disables that
// decay.
func (c *Config) Decays() map[status.State]engine.Decay {
	decays := make(map[status.State]engine.Decay)
	add := func(from, to status.State, after time.Duration) {
		if after > 0 {
			decays[from] = engine.Decay{To: to, After: after}
		}
	}
	add(status.Start, status.Idle, c.Monitor.StartToIdle)
	add(status.Done, status.Idle, c.Monitor.DoneToIdle)
	add(status.Idle, status.Sleep, c.Monitor.IdleToSleep)
	add(status.Notification, status.Sleep, c.Monitor.NotificationToSleep)
	return decays
}

// EngineOptions converts the configuration into engine options. Clock and
// Logger are left for the caller.
func (c *Config) EngineOptions() (engine.Options, error) {
	policy, err := engine.ParsePolicy(c.Monitor.SubsystemPolicy)
	if err != nil {
		return engine.Options{}, err
	}
	opts := engine.DefaultOptions()
	opts.Project = c.Project
	opts.Character = c.Character
	opts.Policy = policy
	opts.Debounce = c.Monitor.Debounce
	opts.Decays = c.Decays()
	opts.HookDoneDelay = c.Monitor.HookDoneDelay
	return opts, nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "config validation error: " + e.Field + ": " + e.Message
}
