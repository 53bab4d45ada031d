// Package types holds the data model shared by the timelock and overrule modules,
// the store and the execution engine.
//
// # Identities
//
// Every principal (DAO core, proposal module, timelock, admission module, external
// account) is an Address. Addresses arriving as text are validated with ParseAddress
// before they are written anywhere.
//
// # Canonical encoding
//
// Payloads that are persisted, hashed or compared in golden traces go through
// MarshalCanonical, an RFC 8785 encoder with NFC-normalised strings. Floats are
// rejected: every number in this system is an id, a height or a second count.
//
// # Derived identifiers
//
// Overrule records are keyed by RecordID, a domain-separated SHA-256 over the
// canonical form of (timelock, subdao proposal id).
//
// # Errors
//
// Module errors carry an ErrorKind so the CLI, the HTTP gateway and the scenario
// harness can report them without knowing which module produced them.
package types
