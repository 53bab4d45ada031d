package types

import (
	"fmt"
	"math"
	"time"
)

// ProposalStatus is the lifecycle state of a timelocked proposal.
//
//	timelocked --execute--> executed --failure callback--> execution_failed
//	timelocked --overrule--> overruled
type ProposalStatus string

const (
	StatusTimelocked      ProposalStatus = "timelocked"
	StatusExecuted        ProposalStatus = "executed"
	StatusOverruled       ProposalStatus = "overruled"
	StatusExecutionFailed ProposalStatus = "execution_failed"
)

// Valid reports whether s is a known status.
func (s ProposalStatus) Valid() bool {
	switch s {
	case StatusTimelocked, StatusExecuted, StatusOverruled, StatusExecutionFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no command may move the proposal any further.
// Executed is terminal for commands; only the failure callback can still rewrite it.
func (s ProposalStatus) IsTerminal() bool {
	return s.Valid() && s != StatusTimelocked
}

func (s ProposalStatus) String() string {
	return string(s)
}

// UnmarshalText rejects unknown statuses.
func (s *ProposalStatus) UnmarshalText(b []byte) error {
	v := ProposalStatus(b)
	if !v.Valid() {
		return fmt.Errorf("unknown proposal status %q", string(b))
	}
	*s = v
	return nil
}

// TimelockConfig is the configuration of one timelock module instance.
type TimelockConfig struct {
	// Owner is the parent DAO: the only principal that may overrule or reconfigure.
	Owner Address `json:"owner"`
	// OverrulePrePropose is the admission module that creates veto proposals.
	OverrulePrePropose Address `json:"overrule_pre_propose"`
	// Subdao is the only principal that may submit proposals for timelocking.
	Subdao Address `json:"subdao"`
}

// Validate checks the write-time invariants of the configuration.
func (c TimelockConfig) Validate() error {
	switch {
	case c.Owner == ZeroAddress:
		return Errorf(KindInvalidConfig, "owner is not set")
	case c.OverrulePrePropose == ZeroAddress:
		return Errorf(KindInvalidConfig, "overrule_pre_propose is not set")
	case c.Subdao == ZeroAddress:
		return Errorf(KindInvalidConfig, "subdao is not set")
	case c.Owner == c.Subdao:
		return Errorf(KindInvalidConfig, "owner and subdao must differ (both %s)", c.Owner.Hex())
	}
	return nil
}

// TimelockedProposal is a subDAO proposal waiting out its lock interval.
type TimelockedProposal struct {
	ID         uint64         `json:"id"`
	Msgs       []Msg          `json:"msgs"`
	TimelockTS time.Time      `json:"timelock_ts"`
	Status     ProposalStatus `json:"status"`
}

// UnlocksAt returns the earliest time the proposal may be executed.
func (p TimelockedProposal) UnlocksAt(lock time.Duration) time.Time {
	return p.TimelockTS.Add(lock)
}

// OverruleRecord links a subDAO proposal to the veto proposal created for it.
type OverruleRecord struct {
	RecordID           string  `json:"record_id"`
	Timelock           Address `json:"timelock"`
	SubdaoProposalID   uint64  `json:"subdao_proposal_id"`
	OverruleProposalID uint64  `json:"overrule_proposal_id"`
}

// MaxProposalID is the largest proposal id a timelock or admission module
// accepts; ids are stored as signed 64-bit integers.
const MaxProposalID = math.MaxInt64

// CheckProposalID rejects ids above MaxProposalID.
func CheckProposalID(id uint64) error {
	if id > MaxProposalID {
		return Errorf(KindUnknownMessage, "proposal id %d out of range (max %d)", id, uint64(MaxProposalID))
	}
	return nil
}
