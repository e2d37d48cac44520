package transport

import "errors"

var (
	// ErrUnavailable indicates the transport bus is not connected.
	ErrUnavailable = errors.New("transport: unavailable")

	// ErrTimeout indicates a bridge did not answer in time.
	ErrTimeout = errors.New("transport: request timed out")

	// ErrRequestFailed indicates a bridge answered with a failure.
	ErrRequestFailed = errors.New("transport: request failed")
)
