// Package overrule implements the admission module placed in front of the parent
// DAO's proposal module.
//
// It accepts a single command shape, propose_overrule, sent by subDAO timelocks.
// Admit checks the linkage between the timelock, the subDAO and the parent DAO
// and builds the veto proposal; the contract submits it synchronously to the
// proposal module and records the returned id. At most one veto proposal exists
// per (timelock, subDAO proposal).
//
// Admit depends only on the Registry and Ledger interfaces, so the admission
// rules can be exercised without an engine.
package overrule
