package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "vetogate", cmd.Use)
	assert.Contains(t, cmd.Short, "overrule")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"deploy", "validate", "exec", "query", "advance", "contracts", "proposals", "history", "test", "serve"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for name, def := range map[string]string{
		"db":        "vetogate.db",
		"log-level": "info",
		"deployer":  "deployer",
		"listen":    "127.0.0.1:8080",
		"max-steps": "1000",
		"telemetry": "false",
	} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, def, f.DefValue, name)
	}
}

func TestValidateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	validateCmd, _, err := cmd.Find([]string{"validate"})
	require.NoError(t, err)

	outputFlag := validateCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
}

func TestExecCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	execCmd, _, err := cmd.Find([]string{"exec"})
	require.NoError(t, err)

	for _, name := range []string{"sender", "msg"} {
		f := execCmd.Flags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, []string{"true"}, f.Annotations["cobra_annotation_bash_completion_one_required_flag"], name)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	require.NotNil(t, testCmd.Flags().Lookup("filter"))
	require.NotNil(t, testCmd.Flags().Lookup("golden"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "invalid", "--db", filepath.Join(t.TempDir(), "x.db"), "contracts"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRootCommand_ResolvesFlags(t *testing.T) {
	db := filepath.Join(t.TempDir(), "flags.db")

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", db, "--format", "json", "--log-level", "error", "contracts"})
	require.NoError(t, cmd.Execute())

	resp := decodeResponse(t, out.String())
	assert.Equal(t, "ok", resp.Status)
	_, err := os.Stat(db)
	assert.NoError(t, err, "the database is created at --db")
}

func TestRootCommand_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vetogate.yaml")
	db := filepath.Join(dir, "file.db")
	require.NoError(t, os.WriteFile(path, []byte("db: "+db+"\nformat: json\nlog_level: error\nchain_id: from-file\n"), 0o644))

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path, "advance", "--blocks", "1"})
	require.NoError(t, cmd.Execute())

	resp := decodeResponse(t, out.String())
	state, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "from-file", state["chain_id"])
	assert.EqualValues(t, 2, state["height"])
}
