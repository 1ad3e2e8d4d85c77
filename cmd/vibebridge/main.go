// Package main implements the vibebridge CLI entry point.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"vibebridge/internal/config"
)

// ExitError asks main to exit with Code after printing Err, if any.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	project    string
	debug      bool
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	run := &runFlags{}

	root := &cobra.Command{
		Use:   "vibebridge",
		Short: "Turn agent gateway logs into live status for displays",
		Long: `vibebridge follows an agent gateway's daily log, infers what the agent is
doing, and pushes the state to a USB status display, a desktop overlay and
local integrations.

Run without a subcommand to start the log bridge.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       config.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd, g, run)
		},
	}
	root.SetVersionTemplate("vibebridge {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Config file path (default: ~/.vibebridge/config.yaml)")
	pf.StringVar(&g.project, "project", "", "Project name shown on the display")
	pf.BoolVar(&g.debug, "debug", false, "Enable debug logging")

	addRunFlags(root, run)

	root.AddCommand(
		newRunCmd(g),
		newHooksCmd(g),
		newServeCmd(g),
		newWrapCmd(g),
		newStatusCmd(g),
		newCheckCmd(g),
		newInitCmd(g),
		newStartCmd(g),
		newStopCmd(),
		newRestartCmd(g),
		newDaemonStatusCmd(),
		newLogsCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vibebridge %s\n", config.Version)
		},
	}
}
