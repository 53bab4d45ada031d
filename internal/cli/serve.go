package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/vetogate/internal/api"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP gateway",
		Long: `Start the single-writer engine loop and the HTTP gateway on --listen.

Commands and clock advances sent over HTTP are queued and applied one at a
time; queries are answered directly. Interrupt (Ctrl-C) shuts both down.

Example:
  vetogate serve --db ./vetogate.db --listen 127.0.0.1:8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}

	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := openSession(ctx, cmd, opts, "")
	if err != nil {
		return err
	}
	// The session outlives ctx so that telemetry is flushed after a signal.
	defer closeSession(context.Background(), s)

	server := api.New(s.engine, s.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.engine.Run(gctx)
	})
	g.Go(func() error {
		return server.ListenAndServe(gctx, s.cfg.Listen)
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s. Press Ctrl-C to stop.\n", s.cfg.Listen)

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "serve error", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}
