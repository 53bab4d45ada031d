package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Address identifies a contract instance or an external account.
type Address = common.Address

// ZeroAddress is never a valid principal.
var ZeroAddress = common.Address{}

// ParseAddress validates a hex address: it must be well formed and must not be the
// zero address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return ZeroAddress, Errorf(KindInvalidAddress, "invalid address %q", s)
	}
	addr := common.HexToAddress(s)
	if addr == ZeroAddress {
		return ZeroAddress, Errorf(KindInvalidAddress, "zero address is not allowed")
	}
	return addr, nil
}

// ParseOptionalAddress parses s when non-nil.
func ParseOptionalAddress(s *string) (*Address, error) {
	if s == nil {
		return nil, nil
	}
	addr, err := ParseAddress(*s)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// AccountAddress derives the external account address of a named account.
// The same name always yields the same address.
func AccountAddress(name string) Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("vetogate/account/" + name))[12:])
}
