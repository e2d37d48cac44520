// Package reconnect restores connectivity for batches of unhealthy
// cameras with bounded effort.
//
// One job runs at a time. Devices are attempted sequentially in batch
// order: provision with the most-recently-used credential, settle,
// confirm with a health check, up to three attempts with a fixed delay
// between them. Cancellation is cooperative: it stops devices that have
// not started, interrupts inter-attempt waits, and never aborts an
// attempt already talking to the transport.
//
// Observers follow a run through Job snapshots and the Done channel.
// Runs that reconnect everything complete themselves after a short
// grace period; runs with failures stay open until dismissed, with
// per-device retry and skip available throughout.
package reconnect
