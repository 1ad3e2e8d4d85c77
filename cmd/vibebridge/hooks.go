package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"vibebridge/internal/engine"
	"vibebridge/internal/receiver"
	"vibebridge/internal/status"
)

func newHooksCmd(g *globalFlags) *cobra.Command {
	var (
		stdout bool
		linger time.Duration
	)
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Read agent hook events (one JSON object per line) from stdin",
		Long: `Read agent hook events from stdin and drive the displays.

Each line is a JSON object naming the hook (gateway_start, before_tool_call,
message_sent, ... or editor-style names such as PreToolUse). After stdin
closes, the command keeps running for --linger so delayed done states are
still delivered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("linger") {
				linger = cfg.Monitor.HookDoneDelay + time.Second
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			var out io.Writer
			if stdout {
				out = cmd.OutOrStdout()
			}
			a, err := newApp(ctx, cfg, cmd.ErrOrStderr(), appOptions{stdout: out})
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.newBridge("")
			if err != nil {
				return err
			}
			loopCtx, stopLoop := context.WithCancel(ctx)
			defer stopLoop()
			loopErr := runLoop(loopCtx, b)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 64*1024), status.MaxPayloadSize*4)
			for scanner.Scan() {
				line := bytes.TrimSpace(scanner.Bytes())
				if len(line) == 0 {
					continue
				}
				h, err := engine.ParseHook(line)
				if err != nil {
					a.log.Warn("Skipping hook line: %v", err)
					continue
				}
				if h.Project == "" {
					h.Project = cfg.Project
				}
				if err := b.SubmitHook(ctx, h); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading hooks: %w", err)
			}

			if err := b.Sync(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if linger > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(linger):
				}
			}
			stopLoop()
			return <-loopErr
		},
	}
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Also print status events to stdout")
	cmd.Flags().DurationVar(&linger, "linger", 0, "How long to keep running after stdin closes (default: hook_done_delay + 1s)")
	return cmd
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		listen string
		stdout bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept states and hook events over HTTP",
		Long: `Run an HTTP receiver that validates posted states and hook events and fans
them out to the configured displays.

  POST /status   {"state":"working","project":"web","tool":"exec"}
  POST /hook     a hook event, as read by 'vibebridge hooks'
  GET  /status   current state of every project
  GET  /health`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Receiver.Listen = listen
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			opts := appOptions{}
			if stdout {
				opts.stdout = cmd.OutOrStdout()
			}
			loop := cfg.HTTP.Enabled && sameEndpoint(cfg.HTTP.URL, cfg.Receiver.Listen)
			opts.skipHTTP = loop

			a, err := newApp(ctx, cfg, cmd.ErrOrStderr(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if loop {
				a.log.Warn("HTTP sink %s points at this receiver; disabled", cfg.HTTP.URL)
			}

			b, err := a.newBridge("")
			if err != nil {
				return err
			}
			loopErr := runLoop(ctx, b)

			srv := receiver.New(b, a.log)
			fmt.Fprintf(cmd.ErrOrStderr(), "Listening on http://%s\n", cfg.Receiver.Listen)
			serveErr := srv.ListenAndServe(ctx, cfg.Receiver.Listen)
			interrupted := ctx.Err() != nil
			cancel()
			if err := <-loopErr; err != nil {
				return err
			}
			if interrupted {
				return nil
			}
			return serveErr
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: receiver.listen, "+receiver.DefaultListen+")")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Also print status events to stdout")
	return cmd
}
