package config

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"vibebridge/internal/monitor"
	"vibebridge/internal/status"
)

// ErrNotInteractive is returned when the wizard has no terminal to talk to.
var ErrNotInteractive = errors.New("setup requires an interactive terminal")

// SetupDeviceFinder reports the serial device the wizard would use.
type SetupDeviceFinder func(pattern string) (string, error)

// SetupURLTester checks that a desktop overlay answers at url.
type SetupURLTester func(url string) error

// SetupOptions configures the setup wizard.
type SetupOptions struct {
	In         io.Reader // default os.Stdin
	Out        io.Writer // default os.Stdout
	Path       string    // default DefaultConfigPath()
	FindDevice SetupDeviceFinder
	TestURL    SetupURLTester
	// Force skips the terminal check; tests feed In directly.
	Force bool
}

// SetupWizard runs the interactive configuration wizard and saves the result.
func SetupWizard(opts SetupOptions) (*Config, error) {
	if opts.In == nil {
		opts.In = os.Stdin
		if !opts.Force && !term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, ErrNotInteractive
		}
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Path == "" {
		opts.Path = DefaultConfigPath()
	}

	w := &wizard{in: bufio.NewReader(opts.In), out: opts.Out}
	cfg := DefaultConfig()

	w.printf("\nWelcome to vibebridge %s setup!\n\n", Version)

	w.setupIdentity(cfg)
	w.setupSource(cfg)
	w.setupSerial(cfg, opts.FindDevice)
	w.setupDesktop(cfg, opts.TestURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := Save(cfg, opts.Path); err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}

	w.printf("\nConfiguration saved to %s\n\n", opts.Path)
	w.printf("Run 'vibebridge' to start the bridge!\n\n")
	return cfg, nil
}

type wizard struct {
	in  *bufio.Reader
	out io.Writer
}

func (w *wizard) printf(format string, args ...any) {
	fmt.Fprintf(w.out, format, args...)
}

func (w *wizard) setupIdentity(cfg *Config) {
	w.printf("[1/4] Display identity\n")
	cfg.Project = w.promptDefault("Project name", cfg.Project)

	w.printf("  Characters:\n")
	for i, c := range status.Characters {
		w.printf("    %d. %s\n", i+1, c)
	}
	if choice := w.promptChoice("Character", 1, len(status.Characters)); choice > 0 {
		cfg.Character = status.Characters[choice-1]
	}
	w.printf("\n")
}

func (w *wizard) setupSource(cfg *Config) {
	w.printf("[2/4] Agent log\n")
	cfg.Source.LogDir = w.promptDefault("Log directory", cfg.Source.LogDir)
	if _, err := os.Stat(monitor.ExpandPath(cfg.Source.LogDir)); err != nil {
		w.printf("  Note: %s does not exist yet; the bridge will wait for it.\n", cfg.Source.LogDir)
	}
	if w.promptYesNo("Only trust subsystem-tagged lines (strict mode)?", false) {
		cfg.Monitor.SubsystemPolicy = "strict"
	}
	w.printf("\n")
}

func (w *wizard) setupSerial(cfg *Config, find SetupDeviceFinder) {
	w.printf("[3/4] USB status display\n")
	cfg.Serial.Enabled = w.promptYesNo("Send states to a serial display?", true)
	if cfg.Serial.Enabled {
		cfg.Serial.Port = w.promptDefault("Port or glob (empty = auto-detect)", "")
		if find != nil {
			if path, err := find(cfg.Serial.Port); err != nil {
				w.printf("  No device found right now (%v); it will be picked up when plugged in.\n", err)
			} else {
				w.printf("  Found %s\n", path)
			}
		}
	}
	w.printf("\n")
}

func (w *wizard) setupDesktop(cfg *Config, test SetupURLTester) {
	w.printf("[4/4] Desktop overlay\n")
	cfg.HTTP.Enabled = w.promptYesNo("Send states to the desktop overlay?", false)
	if !cfg.HTTP.Enabled {
		return
	}
	cfg.HTTP.URL = w.promptDefault("Overlay URL", cfg.HTTP.URL)
	if test != nil {
		w.printf("Testing overlay... ")
		if err := test(cfg.HTTP.URL); err != nil {
			w.printf("FAILED\n  Error: %v\n  States will be dropped until the overlay is running.\n", err)
		} else {
			w.printf("Success!\n")
		}
	}
}

// promptChoice prompts for a numeric choice within a range. Empty input
// returns 0.
func (w *wizard) promptChoice(prompt string, min, max int) int {
	for {
		w.printf("%s [%d-%d]: ", prompt, min, max)
		input, err := w.in.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return 0
		}
		choice, convErr := strconv.Atoi(input)
		if convErr == nil && choice >= min && choice <= max {
			return choice
		}
		if err != nil {
			return 0
		}
		w.printf("  Please enter a number between %d and %d\n", min, max)
	}
}

func (w *wizard) promptDefault(prompt, def string) string {
	if def != "" {
		w.printf("%s [%s]: ", prompt, def)
	} else {
		w.printf("%s: ", prompt)
	}
	input, _ := w.in.ReadString('\n')
	if input = strings.TrimSpace(input); input != "" {
		return input
	}
	return def
}

func (w *wizard) promptYesNo(prompt string, def bool) bool {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	w.printf("%s %s: ", prompt, hint)
	input, _ := w.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return def
}

// DefaultTestURL posts an idle state to a desktop overlay.
func DefaultTestURL(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload := []byte(`{"state":"idle","project":"vibebridge-setup"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("overlay returned status %d", resp.StatusCode)
	}
	return nil
}
