package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vibebridge/internal/monitor"
	"vibebridge/internal/sink"
	"vibebridge/internal/status"
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true)
	styleDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))

	titleCaser = cases.Title(language.English)
)

// stateBadge renders a state name on the display's colour for it.
func stateBadge(s status.State) string {
	fg := lipgloss.Color("#ffffff")
	if s == status.Notification {
		fg = lipgloss.Color("#000000")
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color(s.Color())).
		Foreground(fg).
		Padding(0, 1).
		Render(titleCaser.String(string(s)))
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	var (
		path   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest state of each project",
		Long: `Show the latest state of each project, read from the event file the bridge
appends to (daemon.event_file).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := loadConfig(g)
				if err != nil {
					return err
				}
				path = monitor.ExpandPath(cfg.Daemon.EventFilePath)
				if path == "" {
					if path, err = sink.DefaultEventFilePath(); err != nil {
						return err
					}
				}
			}

			events, err := sink.LatestByProject(path)
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "No events recorded yet (%s)\n", path)
				return nil
			}
			if err != nil {
				return err
			}
			if g.project != "" {
				events = filterProject(events, g.project)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}
			renderStatus(cmd.OutOrStdout(), events, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "Event file to read (default: daemon.event_file_path)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the events as JSON")
	return cmd
}

func filterProject(events []status.Event, project string) []status.Event {
	var out []status.Event
	for _, ev := range events {
		if ev.Project == project {
			out = append(out, ev)
		}
	}
	return out
}

func renderStatus(w io.Writer, events []status.Event, now time.Time) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No projects.")
		return
	}

	width := len("PROJECT")
	for _, ev := range events {
		if len(ev.Project) > width {
			width = len(ev.Project)
		}
	}

	fmt.Fprintln(w, styleHeader.Render(fmt.Sprintf("%-*s  %-14s  %s", width, "PROJECT", "STATE", "SINCE")))
	for _, ev := range events {
		var detail []string
		if tool := ev.Tool(); tool != "" {
			detail = append(detail, "tool "+tool)
		}
		if note := ev.Note(); note != "" {
			detail = append(detail, strings.ReplaceAll(note, "_", " "))
		}
		line := fmt.Sprintf("%-*s  %s  %s", width, ev.Project,
			lipgloss.NewStyle().Width(14).Render(stateBadge(ev.State)),
			formatAge(ev.Time, now))
		if len(detail) > 0 {
			line += "  " + styleDim.Render(strings.Join(detail, ", "))
		}
		fmt.Fprintln(w, line)
	}
}
