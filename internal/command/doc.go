// Package command fans capture commands out to a selected subset of the
// fleet.
//
// The dispatcher is deliberately thin: select by predicate, issue one
// batched transport call, report the single batch-level outcome. Retry
// and state repair live elsewhere. Its only stateful duty is tracking
// per-device recording flags, so a stop command knows it has something
// to stop.
package command
