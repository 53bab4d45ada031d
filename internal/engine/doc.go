// Package engine implements the deterministic command applier that hosts the
// timelock, overrule and collaborator contracts.
//
// ARCHITECTURE:
//
// Codes and instances:
// A code is a Contract implementation registered by name. Instances are created
// with Instantiate and live at deterministic addresses derived from the creator
// and a label (ContractAddress).
//
// Command processing:
//  1. A top-level command runs in one store transaction (atomic: no partial writes)
//  2. The contract may Query other contracts and Call them synchronously; calls
//     share the transaction under a savepoint
//  3. On commit, emitted sub-messages are dispatched depth-first, each in its own
//     transaction, with the emitter as sender
//  4. A failing ReplyOnError sub-message triggers the emitter's Reply; a failing
//     fire-and-forget sub-message is logged and recorded in the Outcome
//
// Every unit is journaled with its command id and step number. The number of
// units per command is bounded by a quota (DefaultMaxSteps).
//
// Single-writer loop:
// Run applies requests from a FIFO queue one at a time; Submit enqueues and waits.
// Direct calls to Instantiate, Execute and Advance are serialized with the loop.
//
// Block height and block time only move through Advance. Contracts observe them
// through Env and never read the wall clock.
package engine
