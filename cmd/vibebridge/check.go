package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"vibebridge/internal/config"
	"vibebridge/internal/daemon"
	"vibebridge/internal/device"
	"vibebridge/internal/monitor"
)

func newCheckCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Show config, log file, device and gateway status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			path := g.configPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			runHealthCheck(cmd.OutOrStdout(), cfg, path, time.Now())
			return nil
		},
	}
}

// runHealthCheck prints what the bridge would use if started now.
func runHealthCheck(w io.Writer, cfg *config.Config, configPath string, now time.Time) {
	fmt.Fprintf(w, "vibebridge %s - Health Check\n\n", config.Version)

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(w, "Config:   %s\n", configPath)
	} else {
		fmt.Fprintf(w, "Config:   defaults (run 'vibebridge init' to create %s)\n", configPath)
	}
	fmt.Fprintf(w, "Project:  %s (%s)\n", cfg.Project, cfg.Character)
	fmt.Fprintf(w, "Policy:   %s\n\n", cfg.Monitor.SubsystemPolicy)

	logPath := monitor.ExpandPath(cfg.Source.Path)
	if logPath == "" {
		logPath = monitor.DailyPath(monitor.ExpandPath(cfg.Source.LogDir), cfg.Source.Prefix, now)
	}
	if info, err := os.Stat(logPath); err == nil {
		fmt.Fprintf(w, "Log:      ✓ %s (%s, %s)\n", logPath, monitor.HumanBytes(info.Size()), formatAge(info.ModTime(), now))
	} else {
		fmt.Fprintf(w, "Log:      ✗ %s (not found)\n", logPath)
	}

	if cfg.Serial.Enabled {
		dev, err := device.Discover(cfg.Serial.Port)
		switch {
		case errors.Is(err, device.ErrNoDevice):
			fmt.Fprintf(w, "Device:   ✗ none found\n")
		case err != nil:
			fmt.Fprintf(w, "Device:   ✗ %v\n", err)
		default:
			fmt.Fprintf(w, "Device:   ✓ %s\n", dev)
		}
	} else {
		fmt.Fprintf(w, "Device:   disabled\n")
	}

	if cfg.HTTP.Enabled {
		fmt.Fprintf(w, "Desktop:  %s\n", cfg.HTTP.URL)
	} else {
		fmt.Fprintf(w, "Desktop:  disabled\n")
	}

	if len(cfg.Monitor.ProcessNames) > 0 {
		checkGateway(w, cfg.Monitor.ProcessNames)
	}

	d := daemon.NewDaemon(config.DefaultConfigDir())
	if running, pid, uptime := d.Status(); running {
		fmt.Fprintf(w, "Daemon:   running (PID %d, up %s)\n", pid, formatDuration(uptime))
	} else {
		fmt.Fprintf(w, "Daemon:   stopped\n")
	}
}

func checkGateway(w io.Writer, names []string) {
	procs, err := monitor.ListProcesses()
	if err != nil {
		fmt.Fprintf(w, "Gateway:  ✗ cannot list processes: %v\n", err)
		return
	}
	pid, name := monitor.FindProcess(procs, names)
	if pid == 0 {
		fmt.Fprintf(w, "Gateway:  ✗ not running\n")
		return
	}
	sample, err := monitor.ReadProcSample(pid)
	if err != nil {
		fmt.Fprintf(w, "Gateway:  ✓ %s (PID %d)\n", name, pid)
		return
	}
	fmt.Fprintf(w, "Gateway:  ✓ %s (PID %d)%s\n", name, pid, monitor.FormatProcMeta(&sample))
}

func newInitCmd(g *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			opts := config.SetupOptions{
				Out:        cmd.OutOrStdout(),
				Path:       path,
				FindDevice: device.Discover,
				TestURL:    config.DefaultTestURL,
			}
			if cmd.InOrStdin() != os.Stdin {
				opts.In = cmd.InOrStdin()
			}
			_, err := config.SetupWizard(opts)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
