package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/vetogate/internal/config"
	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/store"
	"github.com/roach88/vetogate/internal/telemetry"
	"github.com/roach88/vetogate/internal/topology"
)

// GenesisHeight is the block height of a fresh database.
const GenesisHeight = 1

// session is an open database and engine shared by the commands that touch
// chain state. Every command opens its own session and closes it on return.
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	engine    *engine.Engine
	telemetry *telemetry.Providers
}

// openSession opens the configured database, initialising the chain at the
// current wall-clock time when the database is new. chainID overrides the
// configured chain id for a new database; pass "" to keep it.
func openSession(ctx context.Context, cmd *cobra.Command, opts *RootOptions, chainID string) (*session, error) {
	cfg, err := opts.prepare()
	if err != nil {
		return nil, err
	}
	if chainID == "" {
		chainID = cfg.ChainID
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)

	providers, err := telemetry.Init(cfg.Telemetry, Version, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start telemetry", err)
	}

	logger.Debug("opening database", "path", cfg.DB)
	st, err := store.Open(cfg.DB)
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	eng := engine.New(st, topology.Codes(),
		engine.WithMaxSteps(cfg.MaxSteps),
		engine.WithChainID(chainID),
		engine.WithLogger(logger),
		engine.WithTracerProvider(providers.TracerProvider),
		engine.WithMeterProvider(providers.MeterProvider),
	)
	if err := eng.Genesis(ctx, GenesisHeight, time.Now().UTC().Truncate(time.Second)); err != nil {
		_ = st.Close()
		_ = providers.Shutdown(ctx)
		return nil, WrapExitError(ExitCommandError, "failed to initialise chain", err)
	}

	return &session{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		engine:    eng,
		telemetry: providers,
	}, nil
}

// Close flushes telemetry and closes the database.
func (s *session) Close(ctx context.Context) error {
	return errors.Join(
		s.telemetry.Shutdown(ctx),
		s.store.Close(),
	)
}

// closeSession closes s, logging instead of failing the command.
func closeSession(ctx context.Context, s *session) {
	if err := s.Close(ctx); err != nil {
		s.logger.Error("error closing session", "error", err)
	}
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// resolveContract maps a label or hex reference onto a deployed contract,
// turning unknown references into command errors.
func (s *session) resolveContract(ctx context.Context, ref string) (store.ContractRecord, error) {
	rec, err := s.engine.Lookup(ctx, ref)
	if err != nil {
		return store.ContractRecord{}, WrapExitError(ExitCommandError, fmt.Sprintf("unknown contract %q", ref), err)
	}
	return rec, nil
}
