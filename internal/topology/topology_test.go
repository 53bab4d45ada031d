package topology

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vetogate/internal/types"
)

func TestLoad_Fixture(t *testing.T) {
	topo, err := Load(filepath.Join("testdata", "neutron.cue"))
	require.NoError(t, err)

	want := &Topology{
		ChainID: "vetogate-test",
		Parent: DAO{
			Name:            "Neutron DAO",
			Description:     "parent governance",
			MaxVotingPeriod: types.TimeDuration(3600),
		},
		Subdaos: map[string]DAO{
			"alpha": {Name: "Alpha", Description: "grants subdao", MaxVotingPeriod: types.TimeDuration(600)},
			"beta":  {Name: "Beta", Description: "", MaxVotingPeriod: types.HeightDuration(20)},
		},
	}
	if diff := cmp.Diff(want, topo); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"alpha", "beta"}, topo.SubdaoKeys())
}

func TestParse_NoSubdaos(t *testing.T) {
	topo, err := Parse("m.cue", []byte(`parent: {name: "P", max_voting_period: time: 10}
subdaos: {}
`))
	require.NoError(t, err)
	assert.Empty(t, topo.SubdaoKeys())
	assert.Empty(t, topo.ChainID)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "syntax error",
			src:  "parent: {\n",
		},
		{
			name: "missing parent name",
			src:  `parent: {max_voting_period: time: 10}` + "\nsubdaos: {}\n",
		},
		{
			name: "empty name",
			src:  `parent: {name: "", max_voting_period: time: 10}` + "\nsubdaos: {}\n",
		},
		{
			name: "zero voting period",
			src:  `parent: {name: "P", max_voting_period: time: 0}` + "\nsubdaos: {}\n",
		},
		{
			name: "both duration variants",
			src:  `parent: {name: "P", max_voting_period: {time: 1, height: 1}}` + "\nsubdaos: {}\n",
		},
		{
			name: "bad subdao key",
			src: `parent: {name: "P", max_voting_period: time: 10}
subdaos: "Bad_Key": {name: "S", max_voting_period: time: 1}
`,
		},
		{
			name: "reserved subdao key",
			src: `parent: {name: "P", max_voting_period: time: 10}
subdaos: parent: {name: "S", max_voting_period: time: 1}
`,
		},
		{
			name: "unknown field",
			src:  `parent: {name: "P", max_voting_period: time: 10, quorum: 5}` + "\nsubdaos: {}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("manifest.cue", []byte(tt.src))
			require.Error(t, err)

			var me *ManifestError
			require.True(t, errors.As(err, &me), "want *ManifestError, got %T: %v", err, err)
			assert.Equal(t, types.KindInvalidConfig, types.KindOf(err))
		})
	}
}

func TestParse_ErrorPosition(t *testing.T) {
	src := `parent: {
	name:              "P"
	max_voting_period: time: "soon"
}
subdaos: {}
`
	_, err := Parse("manifest.cue", []byte(src))
	require.Error(t, err)

	var me *ManifestError
	require.True(t, errors.As(err, &me))
	require.True(t, me.Pos.IsValid(), "error %q carries no position", me.Message)
	assert.Contains(t, err.Error(), "manifest.cue:")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read manifest")
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "parent/overrule", Label(ParentKey, RoleOverrule))
	assert.Equal(t, "alpha/timelock", Label("alpha", RoleTimelock))
}
