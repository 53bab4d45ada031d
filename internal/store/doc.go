// Package store provides SQLite-backed durable storage for vetogate.
//
// The store holds:
//   - Chain state: the single row of block height and block time
//   - Contracts: instantiated contracts, their code names and labels
//   - Commands: the journal, one row per executed unit
//   - Contract state: generic key/value state for collaborator contracts
//   - Timelock configs and proposals
//   - Overrule configs and records
//
// # Atomicity
//
// Every command runs inside exactly one Tx. A failing command rolls the whole Tx
// back, so a failed command leaves no partial writes. Synchronous calls between
// contracts run under a savepoint (Tx.Nested) of the caller's Tx.
//
// # Deterministic Ordering
//
// List queries order by an explicit key (proposal id, seq, key COLLATE BINARY),
// never by insertion time.
//
// # Uniqueness
//
//   - timelock_proposals: PRIMARY KEY(contract, proposal_id)
//   - overrule_proposals: UNIQUE(admission, timelock, subdao_proposal_id)
//   - commands: UNIQUE(command_id, step)
//
// Inserts use ON CONFLICT DO NOTHING and report a no-op as ErrConflict.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
