package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"vibebridge/internal/wrap"
)

func newWrapCmd(g *globalFlags) *cobra.Command {
	var noPTY bool
	cmd := &cobra.Command{
		Use:   "wrap -- <command> [args...]",
		Short: "Run a command and treat its output as gateway log lines",
		Long: `Run a command in a pseudo-terminal, echo its output, and feed every output
line through the same inference as the daily log. vibebridge exits with the
command's exit status.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, cfg, cmd.ErrOrStderr(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.newBridge("")
			if err != nil {
				return err
			}
			loopCtx, stopLoop := context.WithCancel(context.Background())
			defer stopLoop()
			loopErr := runLoop(loopCtx, b)

			runner := wrap.NewRunner(wrap.Options{Stdout: cmd.OutOrStdout(), NoPTY: noPTY}, func(line string) {
				if err := b.SubmitLine(loopCtx, cfg.Project, line); err != nil {
					a.log.Debug("Dropped line: %v", err)
				}
			})
			code, runErr := runner.Run(ctx, args)

			// Deliver what the command printed last before exiting.
			b.Sync(loopCtx)
			stopLoop()
			<-loopErr

			if runErr != nil {
				if code == 0 {
					code = 1
				}
				return &ExitError{Code: code, Err: fmt.Errorf("[vibebridge] %w", runErr)}
			}
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noPTY, "no-pty", false, "Use plain pipes instead of a pseudo-terminal")
	cmd.Flags().SetInterspersed(false)
	return cmd
}
