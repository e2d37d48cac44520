package device

import "time"

// TransportKind identifies the channel used to reach a camera.
type TransportKind string

// TransportKind constants.
const (
	// TransportBLE reaches the camera over Bluetooth Low Energy.
	TransportBLE TransportKind = "ble"

	// TransportCOHN reaches the camera over HTTPS on its home WiFi network
	// (Camera On Home Network).
	TransportCOHN TransportKind = "cohn"
)

// AllTransportKinds returns all valid transport kinds.
func AllTransportKinds() []TransportKind {
	return []TransportKind{TransportBLE, TransportCOHN}
}

// State represents a device's connectivity state.
type State string

// State constants.
//
// Single-owner mutation: the health monitor owns transitions into
// StateDisconnected; the reconnection orchestrator owns transitions into
// StateReconnecting, StateConnected and StateFailed.
const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// AllStates returns all valid connectivity states.
func AllStates() []State {
	return []State{StateDisconnected, StateConnected, StateReconnecting, StateFailed}
}

// Device represents one physical camera in the fleet.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Transport is the channel used to reach this camera.
	Transport TransportKind `json:"transport"`

	// State is the current connectivity state.
	State State `json:"state"`

	// LastHealthCheckAt is when the device last answered a health check.
	LastHealthCheckAt *time.Time `json:"last_health_check_at,omitempty"`

	// ReconnectAttempt counts provisioning attempts within the current
	// reconnection run. Reset to 0 on success or on leaving StateReconnecting.
	ReconnectAttempt int `json:"reconnect_attempt"`

	// Recording tracks whether the camera is currently capturing.
	// Maintained by the command dispatcher so stop commands can be issued
	// deliberately rather than blindly re-sending start.
	Recording bool `json:"recording"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates an independent copy of the Device.
// This is essential for cache isolation: callers can safely modify the
// copy without affecting the registry's internal state.
//
// Pointer fields (*time.Time) don't need further copying because
// time.Time is immutable in Go.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// TransitionRecord is a single device state change, persisted for audit.
type TransitionRecord struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// DeviceID is the unique identifier of the device.
	DeviceID string `json:"device_id"`

	// From is the state before the transition.
	From State `json:"from"`

	// To is the state after the transition.
	To State `json:"to"`

	// Reason is a short phrase describing why the transition happened
	// (e.g., "health_check_failed", "reconnected").
	Reason string `json:"reason"`

	// CreatedAt is the timestamp of the transition (UTC).
	CreatedAt time.Time `json:"created_at"`
}
