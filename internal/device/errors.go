package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidID is returned when a device identifier is empty or too long.
	ErrInvalidID = errors.New("device: invalid identifier")

	// ErrInvalidTransport is returned when a transport kind is not recognised.
	ErrInvalidTransport = errors.New("device: invalid transport kind")

	// ErrInvalidState is returned when a connectivity state is not recognised.
	ErrInvalidState = errors.New("device: invalid state")
)
