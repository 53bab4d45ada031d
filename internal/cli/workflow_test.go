package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeploy_Text(t *testing.T) {
	opts := testOptions(t, "text")

	out := mustRun(t, NewDeployCommand(opts), testManifest)

	for _, label := range []string{"parent/core", "parent/proposal", "parent/overrule", "alpha/core", "alpha/timelock", "beta/proposal"} {
		assert.Contains(t, out, label)
	}
	assert.Contains(t, out, `✓ Deployed "Neutron DAO" with 2 subdao(s) on vetogate-test`)
}

func TestDeploy_Twice(t *testing.T) {
	opts := deployed(t, "text")

	out, err := run(t, NewDeployCommand(opts), testManifest)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [already_exists]")
}

func TestDeploy_ChainMismatch(t *testing.T) {
	opts := testOptions(t, "json")
	opts.Config.ChainID = "other-chain"
	// Any command initialises the chain with the configured id.
	mustRun(t, NewContractsCommand(opts))

	out, err := run(t, NewDeployCommand(opts), testManifest)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "invalid_config", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, `"vetogate-test"`)
}

func TestContracts_Empty(t *testing.T) {
	opts := testOptions(t, "text")
	out := mustRun(t, NewContractsCommand(opts))
	assert.Contains(t, out, "No contracts deployed.")
}

func TestContracts_JSON(t *testing.T) {
	opts := deployed(t, "json")

	resp := decodeResponse(t, mustRun(t, NewContractsCommand(opts)))
	require.Equal(t, "ok", resp.Status)
	records, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, records, 9)
	first := records[0].(map[string]any)
	assert.Equal(t, "parent/core", first["label"])
}

func TestExec_ProposalLifecycle(t *testing.T) {
	opts := deployed(t, "text")

	out := mustRun(t, NewExecCommand(opts), "alpha/proposal",
		"--sender", "member", "--msg", `{"propose":{"title":"Fund grants","msgs":[]}}`)
	assert.Contains(t, out, "execute member -> alpha/proposal.propose")
	assert.Contains(t, out, "data: 1")

	mustRun(t, NewExecCommand(opts), "alpha/proposal", "--sender", "deployer", "--msg", `{"pass":{"proposal_id":1}}`)

	out = mustRun(t, NewExecCommand(opts), "alpha/proposal", "--sender", "member", "--msg", `{"execute":{"proposal_id":1}}`)
	assert.Contains(t, out, "submsg alpha/core -> alpha/timelock.timelock_proposal")
	assert.Contains(t, out, "call parent/overrule -> parent/proposal.propose")

	out = mustRun(t, NewProposalsCommand(opts), "alpha/timelock")
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "timelocked")

	// Locked for the parent's max voting period of one hour.
	out, err := run(t, NewExecCommand(opts), "alpha/timelock",
		"--sender", "member", "--msg", `{"execute_proposal":{"proposal_id":1}}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "error=time_locked")
	assert.Contains(t, out, "Error [time_locked]")

	out = mustRun(t, NewAdvanceCommand(opts), "--seconds", "3600", "--blocks", "1")
	assert.Contains(t, out, "height 2")

	mustRun(t, NewExecCommand(opts), "alpha/timelock",
		"--sender", "member", "--msg", `{"execute_proposal":{"proposal_id":1}}`)

	out = mustRun(t, NewProposalsCommand(opts), "alpha/timelock")
	assert.Contains(t, out, "executed")

	out = mustRun(t, NewHistoryCommand(opts), "--contract", "alpha/timelock")
	assert.Contains(t, out, "alpha/timelock.timelock_proposal")
	assert.Contains(t, out, "alpha/timelock.execute_proposal error=time_locked")
	assert.Contains(t, out, "Failed: 1")
}

func TestExec_JSONFailureCarriesOutcome(t *testing.T) {
	opts := deployed(t, "json")

	out, err := run(t, NewExecCommand(opts), "alpha/timelock",
		"--sender", "member", "--msg", `{"execute_proposal":{"proposal_id":42}}`)
	require.Error(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "no_such_proposal", resp.Error.Code)
	outcome, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	units := outcome["units"].([]any)
	require.Len(t, units, 1)
	assert.Equal(t, "no_such_proposal", units[0].(map[string]any)["error_kind"])
}

func TestExec_ContractSender(t *testing.T) {
	opts := deployed(t, "text")

	// Only the parent core may overrule; a label sender stands in for it.
	out, err := run(t, NewExecCommand(opts), "alpha/timelock",
		"--sender", "beta/core", "--msg", `{"overrule_proposal":{"proposal_id":1}}`)
	require.Error(t, err)
	assert.Contains(t, out, "execute beta/core -> alpha/timelock.overrule_proposal")
	assert.Contains(t, out, "Error [unauthorized]")
}

func TestExec_InvalidInput(t *testing.T) {
	opts := deployed(t, "text")

	tests := map[string]struct {
		args []string
		want string
	}{
		"bad json":          {[]string{"alpha/timelock", "--sender", "member", "--msg", "{"}, "invalid --msg JSON"},
		"two variants":      {[]string{"alpha/timelock", "--sender", "member", "--msg", `{"a":{},"b":{}}`}, "exactly one variant"},
		"unknown contract":  {[]string{"gamma/timelock", "--sender", "member", "--msg", `{"config":{}}`}, `unknown contract "gamma/timelock"`},
		"bad hex sender":    {[]string{"alpha/timelock", "--sender", "0xzz", "--msg", `{"config":{}}`}, "invalid --sender"},
		"missing sender":    {[]string{"alpha/timelock", "--msg", `{"config":{}}`}, `required flag(s) "sender"`},
		"missing arguments": {[]string{}, "accepts 1 arg"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, NewExecCommand(opts), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestQuery(t *testing.T) {
	opts := deployed(t, "text")

	out := mustRun(t, NewQueryCommand(opts), "parent/overrule", "--msg", `{"proposal_module":{}}`)
	assert.Contains(t, out, "0x")

	out, err := run(t, NewQueryCommand(opts), "alpha/timelock", "--msg", `{"proposal":{"proposal_id":9}}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [no_such_proposal]")
}

func TestQuery_JSON(t *testing.T) {
	opts := deployed(t, "json")

	resp := decodeResponse(t, mustRun(t, NewQueryCommand(opts), "alpha/proposal", "--msg", `{"proposal_count":{}}`))
	assert.Equal(t, "ok", resp.Status)
	assert.EqualValues(t, 0, resp.Data)
}

func TestAdvance_RequiresAmount(t *testing.T) {
	opts := testOptions(t, "text")
	_, err := run(t, NewAdvanceCommand(opts))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestProposals_RejectsOtherCodes(t *testing.T) {
	opts := deployed(t, "text")

	_, err := run(t, NewProposalsCommand(opts), "alpha/core")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a timelock")

	out := mustRun(t, NewProposalsCommand(opts), "beta/timelock")
	assert.Contains(t, out, "No proposals in beta/timelock.")
}

func TestHistory(t *testing.T) {
	opts := deployed(t, "json")

	resp := decodeResponse(t, mustRun(t, NewHistoryCommand(opts), "--limit", "3"))
	data := resp.Data.(map[string]any)
	stats := data["stats"].(map[string]any)
	assert.EqualValues(t, 3, stats["units"])
	assert.EqualValues(t, 0, stats["failed"])

	units := data["units"].([]any)
	commandID := units[0].(map[string]any)["command_id"].(string)

	resp = decodeResponse(t, mustRun(t, NewHistoryCommand(opts), "--command", commandID))
	stats = resp.Data.(map[string]any)["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["commands"])

	_, err := run(t, NewHistoryCommand(opts), "--command", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "nope"`)

	_, err = run(t, NewHistoryCommand(opts), "--limit", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
