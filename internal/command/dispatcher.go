package command

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/camfleet-core/internal/device"
	"github.com/nerrad567/camfleet-core/internal/transport"
)

// Logger defines the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Predicate selects devices from a registry snapshot.
type Predicate func(device.Device) bool

// Connected selects devices currently in the connected state.
// The usual target set for capture commands.
func Connected(d device.Device) bool {
	return d.State == device.StateConnected
}

// Result reports a dispatch outcome. A batch either succeeds or fails
// as a whole; there is no per-device result at this layer.
type Result struct {
	OK      bool
	Message string
	Devices []string
}

// Dispatcher fans one command out to a selected subset of the fleet in
// a single transport call.
//
// It performs no retry: a failed batch is reported to the caller and
// recovery, if any, belongs to the reconnection path. One batch runs at
// a time; the health monitor gates its polling on Busy.
type Dispatcher struct {
	registry  *device.Registry
	transport transport.Transport
	logger    Logger

	mu   sync.Mutex
	busy bool
}

// New creates a batch command dispatcher.
func New(registry *device.Registry, tr transport.Transport) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		transport: tr,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Busy reports whether a command batch is currently in flight.
func (d *Dispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

// Dispatch selects devices matching the predicate and issues one
// batched transport call carrying all their identifiers.
//
// An empty selection returns a successful "nothing to do" result
// without touching the transport. On a successful start or stop capture
// the selected devices' recording flags are updated.
func (d *Dispatcher) Dispatch(ctx context.Context, action transport.Action, params transport.Params, pred Predicate) Result {
	if pred == nil {
		pred = Connected
	}

	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return Result{OK: false, Message: "a command batch is already in flight"}
	}
	d.busy = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}()

	// The batch slot is claimed before the snapshot so the selection
	// cannot go stale against a concurrently finishing batch.
	var ids []string
	for _, dev := range d.registry.All() {
		if pred(dev) {
			ids = append(ids, dev.ID)
		}
	}

	if len(ids) == 0 {
		return Result{OK: true, Message: "nothing to do"}
	}

	d.logger.Info("dispatching command", "action", action, "devices", len(ids))

	if err := d.transport.DispatchCommand(ctx, ids, action, params); err != nil {
		d.logger.Warn("command batch failed", "action", action, "error", err)
		return Result{
			OK:      false,
			Message: fmt.Sprintf("%s failed for %d devices", action, len(ids)),
			Devices: ids,
		}
	}

	switch action {
	case transport.ActionStartCapture:
		d.setRecording(ctx, ids, true)
	case transport.ActionStopCapture:
		d.setRecording(ctx, ids, false)
	}

	return Result{
		OK:      true,
		Message: fmt.Sprintf("%s sent to %d devices", action, len(ids)),
		Devices: ids,
	}
}

// setRecording updates the recording flag for each device in the batch.
func (d *Dispatcher) setRecording(ctx context.Context, ids []string, recording bool) {
	for _, id := range ids {
		d.registry.SetRecording(ctx, id, recording)
	}
}
