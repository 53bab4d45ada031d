package timelock

import (
	"github.com/roach88/vetogate/internal/types"
)

// InstantiateMsg configures a new timelock.
//
// When Subdao is omitted the instantiating sender is taken to be the subDAO's
// pre-propose module and the subDAO core is resolved with its "dao" query.
type InstantiateMsg struct {
	OverrulePrePropose string  `json:"overrule_pre_propose"`
	Subdao             *string `json:"subdao,omitempty"`
}

// TimelockProposalMsg is sent by the subDAO core when one of its proposals passes.
type TimelockProposalMsg struct {
	ProposalID uint64      `json:"proposal_id"`
	Msgs       []types.Msg `json:"msgs"`
}

// ProposalIDMsg is the body of execute_proposal, overrule_proposal and the
// proposal query.
type ProposalIDMsg struct {
	ProposalID uint64 `json:"proposal_id"`
}

// UpdateConfigMsg replaces the owner and/or the admission module. The subDAO
// cannot be reassigned.
type UpdateConfigMsg struct {
	Owner              *string `json:"owner,omitempty"`
	OverrulePrePropose *string `json:"overrule_pre_propose,omitempty"`
}

// ListProposalsQuery pages through records in ascending id order.
type ListProposalsQuery struct {
	StartAfter *uint64 `json:"start_after,omitempty"`
	Limit      *uint64 `json:"limit,omitempty"`
}

// ProposalListResponse is returned by list_proposals.
type ProposalListResponse struct {
	Proposals []types.TimelockedProposal `json:"proposals"`
}

// proposeOverrule is the request sent to the admission module for every
// newly timelocked proposal.
type proposeOverrule struct {
	TimelockContract types.Address `json:"timelock_contract"`
	ProposalID       uint64        `json:"proposal_id"`
}

func proposeOverruleMsg(timelock types.Address, id uint64) map[string]any {
	return types.Variant("propose", map[string]any{
		"msg": types.Variant("propose_overrule", proposeOverrule{TimelockContract: timelock, ProposalID: id}),
	})
}

// votingConfig is the part of a proposal module configuration the timelock reads.
type votingConfig struct {
	MaxVotingPeriod types.Duration `json:"max_voting_period"`
}
