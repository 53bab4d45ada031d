package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vetogate/internal/config"
	"github.com/roach88/vetogate/internal/engine"
)

const testManifest = "testdata/neutron.cue"

// testOptions returns root options backed by a fresh database in a temp dir.
func testOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	return &RootOptions{
		Format: format,
		Config: &config.Config{
			DB:       filepath.Join(t.TempDir(), "vetogate.db"),
			LogLevel: "error",
			Format:   format,
			Deployer: "deployer",
			Listen:   "127.0.0.1:0",
			MaxSteps: engine.DefaultMaxSteps,
			ChainID:  "vetogate-test",
		},
	}
}

// run executes cmd with args and returns stdout.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// mustRun executes cmd and fails the test on error.
func mustRun(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	out, err := run(t, cmd, args...)
	require.NoError(t, err, "output:\n%s", out)
	return out
}

// decodeResponse parses a JSON CLI response.
func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output:\n%s", out)
	return resp
}

// deployed returns options for a database with testdata/neutron.cue deployed.
func deployed(t *testing.T, format string) *RootOptions {
	t.Helper()
	opts := testOptions(t, format)
	mustRun(t, NewDeployCommand(opts), testManifest)
	return opts
}
