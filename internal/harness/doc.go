// Package harness runs conformance scenarios against a real engine.
//
// A scenario deploys a CUE topology, runs setup commands, then runs a flow of
// commands, queries and clock advances, checking each step's expect clause.
// Every unit the flow runs is recorded in a trace that assertions and golden
// files are checked against.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: overrule_blocks_execution
//	description: "An overruled proposal can never execute"
//	manifest: neutron.cue
//	setup:
//	  - exec: alpha/proposal
//	    sender: member
//	    msg: { propose: { title: "t", msgs: [] } }
//	flow:
//	  - exec: alpha/timelock
//	    sender: member
//	    msg: { execute_proposal: { proposal_id: 1 } }
//	    expect:
//	      error: wrong_status
//	  - query: alpha/timelock
//	    msg: { proposal: { proposal_id: 1 } }
//	    expect:
//	      result: { status: overruled }
//	  - advance: { seconds: 3600, blocks: 1 }
//	assertions:
//	  - type: trace_contains
//	    action: parent/proposal.propose
//	    args: { proposer: "@alpha/timelock" }
//	  - type: final_state
//	    contract: alpha/timelock
//	    query: { proposal: { proposal_id: 1 } }
//	    expect: { status: overruled }
//
// Strings starting with "@" name an address: "@alpha/core" is a deployed
// contract, "@member" an account.
//
// # Assertion Types
//
//   - trace_contains: some unit ran the action, with matching args and error
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly N times
//   - final_state: a query result matches the expected value
//
// Actions are written "<contract label>.<variant>", e.g. "alpha/timelock.execute_proposal".
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory SQLite store with sequential
// command ids and a fixed genesis, so traces are identical across runs and can
// be compared against golden files (see RunWithGolden).
package harness
