// Package device provides the canonical registry of camera devices and
// their connection lifecycle state.
//
// The Registry is the single source of truth for which devices exist and
// what state each is in. Consumers read snapshots (deep copies) and never
// hold references into the registry; all mutation flows through registry
// methods, which persist through a Repository and announce changes through
// an optional Publisher.
//
// State ownership is deliberately narrow: the health monitor demotes
// connected devices, the reconnection orchestrator owns the reconnecting
// and failed states, and scans only ever add or refresh identity fields.
// The registry itself enforces none of this beyond validating state
// values; it is a table, not a state machine.
package device
