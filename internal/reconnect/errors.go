package reconnect

import "errors"

var (
	// ErrJobInProgress indicates a reconnection run is already active.
	ErrJobInProgress = errors.New("reconnect: job already in progress")

	// ErrEmptyBatch indicates Start was called with no devices.
	ErrEmptyBatch = errors.New("reconnect: empty batch")
)
