package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoldenScenarios(t *testing.T) {
	names := []string{
		"scenario_a_veto_proposal",
		"scenario_b_timelock_execute",
		"scenario_b_execution_failed",
		"scenario_c_overrule",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join(scenarioDir, name+".yaml"))
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "scenario name must match its golden file")

			result := RunWithGolden(t, scenario)
			require.True(t, result.Pass)
		})
	}
}
