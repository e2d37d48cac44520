package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/camfleet-core/internal/device"
	"github.com/nerrad567/camfleet-core/internal/infrastructure/mqtt"
)

// Bus is the messaging surface the bridge adapter needs.
// Satisfied by *mqtt.Client; tests supply an in-memory fake.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// request is the wire format for bridge requests.
type request struct {
	RequestID string   `json:"request_id"`
	Op        string   `json:"op"`
	DeviceID  string   `json:"device_id,omitempty"`
	DeviceIDs []string `json:"device_ids,omitempty"`
	SSID      string   `json:"ssid,omitempty"`
	Password  string   `json:"password,omitempty"`
	Action    string   `json:"action,omitempty"`
	Params    *Params  `json:"params,omitempty"`
}

// response is the wire format for bridge responses.
type response struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Message   string `json:"message,omitempty"`
	Devices   []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Kind string `json:"kind"`
	} `json:"devices,omitempty"`
}

// Bridge implements Transport over an MQTT request/response exchange with
// bridge processes (the daemons that actually speak BLE or COHN HTTPS to
// cameras).
//
// Each call publishes a request with a fresh correlation ID and blocks
// until the matching response arrives, the per-call timeout fires, or the
// caller's context is cancelled. Responses for unknown correlation IDs
// are dropped; a bridge answering after the caller gave up is normal.
type Bridge struct {
	bus     Bus
	topics  mqtt.Topics
	timeout time.Duration
	logger  Logger

	mu      sync.Mutex
	pending map[string]chan response
}

// NewBridge creates a bridge adapter with the given per-call timeout.
func NewBridge(bus Bus, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Bridge{
		bus:     bus,
		timeout: timeout,
		logger:  noopLogger{},
		pending: make(map[string]chan response),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to the bridge response topic.
// Must be called before any Transport method.
func (b *Bridge) Start() error {
	return b.bus.Subscribe(b.topics.AllBridgeResponses(), 1, b.handleResponse)
}

// handleResponse routes an incoming response to the waiting call.
func (b *Bridge) handleResponse(_ string, payload []byte) error {
	var resp response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding bridge response: %w", err)
	}

	b.mu.Lock()
	ch, ok := b.pending[resp.RequestID]
	if ok {
		delete(b.pending, resp.RequestID)
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("dropping late bridge response", "request_id", resp.RequestID)
		return nil
	}

	ch <- resp
	return nil
}

// exchange publishes a request and waits for its response.
func (b *Bridge) exchange(ctx context.Context, req request) (response, error) {
	if !b.bus.IsConnected() {
		return response{}, ErrUnavailable
	}

	req.RequestID = uuid.New().String()
	payload, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("encoding bridge request: %w", err)
	}

	ch := make(chan response, 1)
	b.mu.Lock()
	b.pending[req.RequestID] = ch
	b.mu.Unlock()

	cleanup := func() {
		b.mu.Lock()
		delete(b.pending, req.RequestID)
		b.mu.Unlock()
	}

	topic := b.topics.BridgeRequest(req.Op, req.RequestID)
	if err := b.bus.Publish(topic, payload, 1, false); err != nil {
		cleanup()
		return response{}, fmt.Errorf("publishing bridge request: %w", err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		cleanup()
		return response{}, fmt.Errorf("%w: %s after %s", ErrTimeout, req.Op, b.timeout)
	case <-ctx.Done():
		cleanup()
		return response{}, ctx.Err()
	}
}

// Scan discovers reachable cameras via the bridges.
func (b *Bridge) Scan(ctx context.Context) ([]Descriptor, error) {
	resp, err := b.exchange(ctx, request{Op: "scan"})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("%w: scan: %s", ErrRequestFailed, resp.Message)
	}

	descriptors := make([]Descriptor, 0, len(resp.Devices))
	for _, d := range resp.Devices {
		descriptors = append(descriptors, Descriptor{
			ID:   d.ID,
			Name: d.Name,
			Kind: device.TransportKind(d.Kind),
		})
	}
	return descriptors, nil
}

// HealthCheck probes a single camera for liveness.
func (b *Bridge) HealthCheck(ctx context.Context, deviceID string) error {
	resp, err := b.exchange(ctx, request{Op: "health_check", DeviceID: deviceID})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%w: health check %s: %s", ErrRequestFailed, deviceID, resp.Message)
	}
	return nil
}

// Provision pushes network credentials to a camera.
func (b *Bridge) Provision(ctx context.Context, deviceID, ssid, password string) error {
	resp, err := b.exchange(ctx, request{
		Op:       "provision",
		DeviceID: deviceID,
		SSID:     ssid,
		Password: password,
	})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%w: provision %s: %s", ErrRequestFailed, deviceID, resp.Message)
	}
	return nil
}

// DispatchCommand sends one action to a batch of cameras in a single call.
func (b *Bridge) DispatchCommand(ctx context.Context, deviceIDs []string, action Action, params Params) error {
	req := request{
		Op:        "dispatch",
		DeviceIDs: deviceIDs,
		Action:    string(action),
	}
	if params != (Params{}) {
		req.Params = &params
	}

	resp, err := b.exchange(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%w: dispatch %s: %s", ErrRequestFailed, action, resp.Message)
	}
	return nil
}
