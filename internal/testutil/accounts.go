package testutil

import (
	"github.com/roach88/vetogate/internal/types"
)

// Account returns a deterministic external account address for name.
//
// The same name always yields the same address, so golden traces stay stable:
//
//	deployer := testutil.Account("deployer")
func Account(name string) types.Address {
	return types.AccountAddress(name)
}
