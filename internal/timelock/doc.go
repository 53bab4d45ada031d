// Package timelock implements the subDAO timelock code.
//
// A subDAO core hands every passed proposal to its timelock instead of running
// it. The timelock keeps the proposal for the parent DAO's voting period and asks
// the parent's overrule module to open a veto proposal. After the period anyone
// may execute the proposal, unless the parent DAO (the owner) overruled it first.
//
// Lifecycle of a record:
//
//	timelocked --execute_proposal--> executed --failed msg--> execution_failed
//	timelocked --overrule_proposal--> overruled
//
// The lock period is read on every execute_proposal from the parent proposal
// module, found through the overrule module's proposal_module query. Height-based
// periods cannot be compared with block time and fail CantCreateOverrule.
//
// Messages of an executed proposal are dispatched as sub-messages with
// reply-on-error keyed by the proposal id; the first failure marks the record
// execution_failed.
package timelock
