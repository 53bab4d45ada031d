package engine

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/roach88/vetogate/internal/types"
)

// CommandIDGenerator generates command ids for journal correlation.
// Implemented by UUIDv7Generator (production) and SequenceGenerator (tests).
type CommandIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 command ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns "<prefix>-1", "<prefix>-2", ... so that journals and
// golden traces are reproducible.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator with the given prefix ("cmd" if empty).
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "cmd"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// contractDomain separates instance addresses from any other keccak preimage.
const contractDomain = "vetogate/contract/v1"

// ContractAddress derives the address of the instance a creator deploys under a
// label: keccak256(domain || creator || label)[12:].
func ContractAddress(creator types.Address, label string) types.Address {
	hash := crypto.Keccak256([]byte(contractDomain), creator.Bytes(), []byte(label))
	return common.BytesToAddress(hash[12:])
}
