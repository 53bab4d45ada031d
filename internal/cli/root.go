package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/vetogate/internal/config"
	"github.com/roach88/vetogate/internal/engine"
)

// Version is reported by --version and tagged on telemetry.
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Verbose    bool
	Format     string // "json" | "text"

	// Config is resolved by the root command before any subcommand runs.
	// Tests that build a subcommand directly set it themselves.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the vetogate CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "vetogate",
		Short:   "vetogate - subDAO timelock with parent overrule",
		Long:    "A local chain for subDAO proposals that wait out a timelock while the parent DAO may veto them.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd); err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags; every one but --config and --verbose maps onto a config key.
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default ./vetogate.yaml)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.String("db", "vetogate.db", "path to SQLite database")
	flags.String("log-level", "info", "log level (debug|info|warn|error)")
	flags.String("deployer", "deployer", "deployer account (name or hex address)")
	flags.String("listen", "127.0.0.1:8080", "HTTP listen address for serve")
	flags.Int("max-steps", engine.DefaultMaxSteps, "maximum units per command")
	flags.Bool("telemetry", false, "export traces and metrics to stderr")

	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewAdvanceCommand(opts))
	cmd.AddCommand(NewContractsCommand(opts))
	cmd.AddCommand(NewProposalsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// load resolves the configuration from flags, environment and files.
func (o *RootOptions) load(cmd *cobra.Command) error {
	v, err := config.NewViper(o.ConfigFile, cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	o.Config = cfg
	o.Format = cfg.Format
	return nil
}

// config returns the resolved configuration, falling back to defaults when
// the root command did not run.
func (o *RootOptions) config() (*config.Config, error) {
	if o.Config != nil {
		return o.Config, nil
	}
	v, err := config.NewViper(o.ConfigFile, nil)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	o.Config = cfg
	if o.Format == "" {
		o.Format = cfg.Format
	}
	return cfg, nil
}

// prepare resolves the configuration and checks the output format.
func (o *RootOptions) prepare() (*config.Config, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if err := o.checkFormat(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// checkFormat rejects unknown --format values before a subcommand runs.
func (o *RootOptions) checkFormat() error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	return nil
}

// newLogger returns the slog text logger every command logs through.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
