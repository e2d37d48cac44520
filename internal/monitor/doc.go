// Package monitor implements periodic health polling of connected cameras.
//
// The monitor owns exactly one state transition: connected to
// disconnected. It never promotes, never retries, and never probes a
// device some other component is working on. When a cycle finds failures
// it hands the whole batch to a handler once and moves on; what happens
// to the batch (typically a reconnection run) is not its concern.
package monitor
