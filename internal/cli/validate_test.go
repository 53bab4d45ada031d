package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestValidate_Text(t *testing.T) {
	opts := testOptions(t, "text")

	out := mustRun(t, NewValidateCommand(opts), testManifest)
	assert.Equal(t, "✓ Manifest valid: parent \"Neutron DAO\", 2 subdao(s) (alpha, beta)\n", out)
}

func TestValidate_JSON(t *testing.T) {
	opts := testOptions(t, "json")

	resp := decodeResponse(t, mustRun(t, NewValidateCommand(opts), testManifest))
	require.Equal(t, "ok", resp.Status)
	result := resp.Data.(map[string]any)
	assert.Equal(t, true, result["valid"])
	manifest := result["manifest"].(map[string]any)
	assert.Equal(t, "vetogate-test", manifest["chain_id"])
}

func TestValidate_Output(t *testing.T) {
	opts := testOptions(t, "text")
	path := filepath.Join(t.TempDir(), "topology.json")

	mustRun(t, NewValidateCommand(opts), testManifest, "-o", path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var topo map[string]any
	require.NoError(t, json.Unmarshal(data, &topo))
	assert.Contains(t, topo, "parent")
	assert.Contains(t, topo, "subdaos")
}

func TestValidate_SchemaError(t *testing.T) {
	path := writeManifest(t, "parent: {max_voting_period: time: 10}\nsubdaos: {}\n")

	t.Run("text", func(t *testing.T) {
		out, err := run(t, NewValidateCommand(testOptions(t, "text")), path)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "✗ Validation failed")
		assert.Contains(t, out, "invalid_config:")
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, NewValidateCommand(testOptions(t, "json")), path)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		resp := decodeResponse(t, out)
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, "invalid_config", resp.Error.Code)
		assert.Equal(t, false, resp.Data.(map[string]any)["valid"])
	})
}

func TestValidate_ErrorLine(t *testing.T) {
	path := writeManifest(t, "parent: {\n\tname: \"P\"\n\tmax_voting_period: time: \"soon\"\n}\nsubdaos: {}\n")

	out, err := run(t, NewValidateCommand(testOptions(t, "text")), path)
	require.Error(t, err)
	assert.Regexp(t, `line \d+`, out)
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := run(t, NewValidateCommand(testOptions(t, "text")), filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "read manifest")
}
