package topology

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/vetogate/internal/types"
)

//go:embed schema.cue
var schemaSource []byte

// DAO describes one DAO of the manifest.
type DAO struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	MaxVotingPeriod types.Duration `json:"max_voting_period"`
}

// Topology is a decoded deployment manifest.
type Topology struct {
	ChainID string         `json:"chain_id,omitempty"`
	Parent  DAO            `json:"parent"`
	Subdaos map[string]DAO `json:"subdaos"`
}

// SubdaoKeys returns the subDAO keys in sorted order.
func (t *Topology) SubdaoKeys() []string {
	keys := make([]string, 0, len(t.Subdaos))
	for k := range t.Subdaos {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ManifestError is a manifest that failed to compile or validate.
type ManifestError struct {
	Message string
	Pos     token.Pos
}

func (e *ManifestError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Kind implements the error taxonomy.
func (e *ManifestError) Kind() types.ErrorKind {
	return types.KindInvalidConfig
}

// Load reads and validates a CUE manifest from path.
func Load(path string) (*Topology, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(path, src)
}

// Parse validates src against the #Topology schema and decodes it.
func Parse(filename string, src []byte) (*Topology, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	manifest := ctx.CompileBytes(src, cue.Filename(filename))
	if err := manifest.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	value := schema.LookupPath(cue.ParsePath("#Topology")).Unify(manifest)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	// Decode through JSON so that types.Duration applies its own validation.
	raw, err := value.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var t Topology
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, &ManifestError{Message: fmt.Sprintf("decode manifest: %v", err)}
	}
	if t.Subdaos == nil {
		t.Subdaos = map[string]DAO{}
	}
	return &t, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ManifestError{Message: err.Error()}
	}
	first := errs[0]
	me := &ManifestError{Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		me.Pos = positions[0]
	}
	return me
}
