package transport

import (
	"context"

	"github.com/nerrad567/camfleet-core/internal/device"
)

// Descriptor identifies a camera observed by a scan.
type Descriptor struct {
	ID   string
	Name string
	Kind device.TransportKind
}

// Action is a camera command verb.
type Action string

const (
	// ActionStartCapture begins recording on the selected cameras.
	ActionStartCapture Action = "start_capture"

	// ActionStopCapture ends recording on the selected cameras.
	ActionStopCapture Action = "stop_capture"

	// ActionSetCaptureSettings applies capture settings without
	// changing the recording state.
	ActionSetCaptureSettings Action = "set_capture_settings"
)

// Params carries optional parameters for a command.
// Zero values mean "leave unchanged".
type Params struct {
	FPS        int    `json:"fps,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

// Transport is the boundary to whatever actually talks to cameras.
//
// Implementations are expected to be slow and unreliable: every method
// takes a context and may block for seconds. The lifecycle core never
// retries at this layer; retry policy lives with the callers.
type Transport interface {
	// Scan discovers reachable cameras.
	Scan(ctx context.Context) ([]Descriptor, error)

	// HealthCheck probes a single camera for liveness.
	// A nil error means the camera responded.
	HealthCheck(ctx context.Context, deviceID string) error

	// Provision pushes network credentials to a camera and waits for it
	// to come up on the target network.
	Provision(ctx context.Context, deviceID, ssid, password string) error

	// DispatchCommand sends one action to a batch of cameras in a
	// single call. An error means the batch as a whole failed.
	DispatchCommand(ctx context.Context, deviceIDs []string, action Action, params Params) error
}
