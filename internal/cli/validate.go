package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vetogate/internal/topology"
	"github.com/roach88/vetogate/internal/types"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                   `json:"valid"`
	Manifest *topology.Topology     `json:"manifest,omitempty"`
	Errors   []ManifestErrorDetails `json:"errors,omitempty"`
}

// ManifestErrorDetails locates a manifest error.
type ManifestErrorDetails struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Output string // write the decoded manifest as canonical JSON
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <manifest.cue>",
		Short: "Validate a deployment manifest without deploying it",
		Long: `Validate a CUE deployment manifest against the topology schema.

Checks syntax, required fields and voting periods without touching the
database. Faster than deploy for development feedback.

With --output, the decoded manifest is written as canonical JSON.

Examples:
  vetogate validate ./neutron.cue
  vetogate validate ./neutron.cue -o topology.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the decoded manifest to this file")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	if _, err := opts.prepare(); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	formatter.VerboseLog("Validating manifest %s", path)
	topo, err := topology.Load(path)
	if err != nil {
		return outputManifestError(formatter, err)
	}

	if opts.Output != "" {
		data, err := types.MarshalCanonical(topo)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode manifest", err)
		}
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}
	return outputValidateSuccess(formatter, topo)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, topo *topology.Topology) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Manifest: topo})
	}

	keys := topo.SubdaoKeys()
	fmt.Fprintf(formatter.Writer, "✓ Manifest valid: parent %q, %d subdao(s)", topo.Parent.Name, len(keys))
	if len(keys) > 0 {
		fmt.Fprintf(formatter.Writer, " (%s)", strings.Join(keys, ", "))
	}
	fmt.Fprintln(formatter.Writer)
	return nil
}

// outputManifestError reports a manifest that failed to load. Read errors are
// command errors; schema violations are validation failures.
func outputManifestError(formatter *OutputFormatter, err error) error {
	var mErr *topology.ManifestError
	if !errors.As(err, &mErr) {
		_ = formatter.Error(string(types.KindInvalidConfig), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load manifest", err)
	}

	details := ManifestErrorDetails{Code: string(mErr.Kind()), Message: mErr.Message}
	if mErr.Pos.IsValid() {
		details.Line = mErr.Pos.Line()
	}

	if formatter.Format == "json" {
		if encErr := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: []ManifestErrorDetails{details}},
			Error:  &CLIError{Code: details.Code, Message: details.Message},
		}); encErr != nil {
			return encErr
		}
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	if details.Line > 0 {
		fmt.Fprintf(formatter.Writer, "line %d\n", details.Line)
	}
	fmt.Fprintf(formatter.Writer, "  %s: %s\n", details.Code, details.Message)
	return WrapExitError(ExitFailure, "validation failed", err)
}
