// Package daostub provides minimal DAO core and proposal module codes, enough to
// drive the timelock and overrule modules end to end. Voting is replaced by
// explicit pass and reject commands from the admin.
package daostub
