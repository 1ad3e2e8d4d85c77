package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Environment variables honoured on top of the config file.
const (
	EnvLogDir      = "OPENCLAW_LOG_DIR"
	EnvProject     = "PROJECT_NAME"
	EnvSeraProject = "SERA_PROJECT"
	EnvCharacter   = "VIBEMON_CHARACTER"
	EnvSerialPort  = "VIBEMON_SERIAL_PORT"
	EnvDesktopURL  = "VIBEMON_DESKTOP_URL"
	EnvDoneToIdle  = "SERA_DONE_TO_IDLE_MS"
	EnvDebug       = "DEBUG"
)

// ApplyEnv overrides cfg from the environment. getenv is usually os.Getenv.
// PROJECT_NAME wins over SERA_PROJECT when both are set.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv(EnvLogDir); v != "" {
		cfg.Source.LogDir = v
	}

	if v := getenv(EnvProject); v != "" {
		cfg.Project = v
	} else if v := getenv(EnvSeraProject); v != "" {
		cfg.Project = v
	}

	if v := getenv(EnvCharacter); v != "" {
		cfg.Character = v
	}

	if v := getenv(EnvSerialPort); v != "" {
		cfg.Serial.Port = v
		cfg.Serial.Enabled = true
	}

	if v := getenv(EnvDesktopURL); v != "" {
		cfg.HTTP.URL = v
		cfg.HTTP.Enabled = true
	}

	if v := getenv(EnvDoneToIdle); v != "" {
		ms, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || ms < 0 {
			return &ValidationError{Field: EnvDoneToIdle, Message: fmt.Sprintf("invalid milliseconds %q", v)}
		}
		cfg.Monitor.DoneToIdle = time.Duration(ms) * time.Millisecond
	}

	if v := getenv(EnvDebug); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return &ValidationError{Field: EnvDebug, Message: fmt.Sprintf("invalid boolean %q", v)}
		}
		cfg.Debug = on
	}
	return nil
}
