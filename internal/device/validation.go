package device

import (
	"fmt"
	"strings"
)

// Validation limits.
const (
	maxIDLength   = 64
	maxNameLength = 128
)

// Validate checks that the device's fields are well-formed.
// It is called by the registry before accepting an upsert.
func (d *Device) Validate() error {
	if err := validateID(d.ID); err != nil {
		return err
	}

	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	if len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}

	if !validTransport(d.Transport) {
		return fmt.Errorf("%w: %q", ErrInvalidTransport, d.Transport)
	}

	if d.State != "" && !validState(d.State) {
		return fmt.Errorf("%w: %q", ErrInvalidState, d.State)
	}

	return nil
}

// validateID checks a device identifier.
func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidID, maxIDLength)
	}
	if strings.ContainsAny(id, " \t\n") {
		return fmt.Errorf("%w: must not contain whitespace", ErrInvalidID)
	}
	return nil
}

// validTransport reports whether kind is a known transport.
func validTransport(kind TransportKind) bool {
	for _, t := range AllTransportKinds() {
		if kind == t {
			return true
		}
	}
	return false
}

// validState reports whether s is a known connectivity state.
func validState(s State) bool {
	for _, st := range AllStates() {
		if s == st {
			return true
		}
	}
	return false
}
