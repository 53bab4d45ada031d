package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Domain prefixes for derived identifiers. The version suffix leaves room for
// changing the derivation without colliding with stored ids.
const (
	DomainOverruleRecord = "vetogate/overrule-record/v1"
	DomainMsgs           = "vetogate/msgs/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RecordID derives the key of the overrule record for (timelock, subdao proposal id).
// At most one veto proposal may exist per key.
func RecordID(timelock Address, subdaoProposalID uint64) string {
	obj := map[string]any{
		"timelock":           strings.ToLower(timelock.Hex()),
		"subdao_proposal_id": subdaoProposalID,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		// Only strings and integers above; encoding cannot fail.
		panic(fmt.Sprintf("RecordID: %v", err))
	}
	return hashWithDomain(DomainOverruleRecord, canonical)
}

// MsgsDigest fingerprints an ordered msg list for logs.
func MsgsDigest(msgs []Msg) (string, error) {
	canonical, err := MarshalCanonical(msgs)
	if err != nil {
		return "", fmt.Errorf("MsgsDigest: %w", err)
	}
	return hashWithDomain(DomainMsgs, canonical), nil
}
