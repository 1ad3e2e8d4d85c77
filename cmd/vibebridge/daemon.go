package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"vibebridge/internal/config"
	"vibebridge/internal/daemon"
	"vibebridge/internal/monitor"
)

// daemonArgs builds the argument list for the background child.
func daemonArgs(g *globalFlags) []string {
	args := []string{"run"}
	if g.configPath != "" {
		args = append(args, "--config", g.configPath)
	}
	if g.project != "" {
		args = append(args, "--project", g.project)
	}
	if g.debug {
		args = append(args, "--debug")
	}
	return args
}

func newStartCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the bridge in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := daemon.NewDaemon(config.DefaultConfigDir())
			d.SetOutput(cmd.OutOrStdout())
			return d.Start(daemonArgs(g))
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := daemon.NewDaemon(config.DefaultConfigDir())
			d.SetOutput(cmd.OutOrStdout())
			return d.Stop()
		},
	}
}

func newRestartCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the background bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := daemon.NewDaemon(config.DefaultConfigDir())
			d.SetOutput(cmd.OutOrStdout())
			return d.Restart(daemonArgs(g))
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon-status",
		Short: "Show whether the background bridge is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printDaemonStatus(cmd.OutOrStdout(), daemon.NewDaemon(config.DefaultConfigDir()))
			return nil
		},
	}
}

func printDaemonStatus(w io.Writer, d *daemon.Daemon) {
	running, pid, uptime := d.Status()

	fmt.Fprintln(w, "vibebridge daemon status")
	fmt.Fprintln(w)
	if running {
		fmt.Fprintf(w, "  Status:  running\n")
		fmt.Fprintf(w, "  PID:     %d\n", pid)
		fmt.Fprintf(w, "  Uptime:  %s\n", formatDuration(uptime))
	} else {
		fmt.Fprintf(w, "  Status:  stopped\n")
	}

	logs, err := daemon.GetLogFiles(d.LogDir())
	if err == nil && len(logs) > 0 {
		total, _ := daemon.TotalLogSize(d.LogDir())
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Logs:    %d file(s) in %s\n", len(logs), d.LogDir())
		fmt.Fprintf(w, "  Size:    %s\n", monitor.HumanBytes(total))
	}
}

func newLogsCmd() *cobra.Command {
	var (
		follow bool
		lines  int
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the background bridge's log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logDir := daemon.NewDaemon(config.DefaultConfigDir()).LogDir()
			logs, err := daemon.GetLogFiles(logDir)
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				return fmt.Errorf("no log files found in %s", logDir)
			}

			out := cmd.OutOrStdout()
			if err := tailFile(out, logs[0].Path, lines); err != nil {
				return err
			}
			if !follow {
				return nil
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return tailFollow(ctx, out, logs[0].Path)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new log lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	return cmd
}

// tailFile prints the last n lines of a file.
func tailFile(w io.Writer, path string, n int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// Ring of the last n lines.
	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, scanner.Text())
	}
	for _, line := range ring {
		fmt.Fprintln(w, line)
	}
	return scanner.Err()
}

// tailFollow prints lines appended to path until ctx is cancelled.
func tailFollow(ctx context.Context, w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}

	reader := bufio.NewReader(f)
	var partial string
	for {
		line, err := reader.ReadString('\n')
		partial += line
		if err == io.EOF {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprint(w, partial)
		partial = ""
	}
}
