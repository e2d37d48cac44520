package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher is the interface for publishing state-change notifications.
// This is typically implemented by an MQTT client.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// TopicBuilder produces the notification topic for a device's state.
type TopicBuilder func(deviceID string) string

// Telemetry receives state transition measurements. Optional.
type Telemetry interface {
	WriteStateTransition(deviceID, from, to, reason string)
}

// Registry is the canonical, thread-safe table of known devices.
//
// Mutation is the only way consumers observe state: there are no derived
// caches. All reads return deep copies so callers can never mutate the
// registry's internal state.
//
// The registry is the single publication point for state changes. Every
// transition is optionally persisted through a Repository (with a
// transition history row) and announced through a Publisher, so observers
// and the audit trail can never drift from the canonical table.
//
// All public methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device

	repo       Repository   // optional persistence
	publisher  Publisher    // optional notification channel
	stateTopic TopicBuilder // topic for state notifications
	telemetry  Telemetry    // optional measurement sink
	logger     Logger
}

// NewRegistry creates a new device registry.
// The repository may be nil for a purely in-memory registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		repo:    repo,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetPublisher sets the notification publisher and the topic builder
// used for device state announcements.
func (r *Registry) SetPublisher(p Publisher, stateTopic TopicBuilder) {
	r.publisher = p
	r.stateTopic = stateTopic
}

// SetTelemetry sets an optional transition measurement sink.
func (r *Registry) SetTelemetry(t Telemetry) {
	r.telemetry = t
}

// Load populates the registry from the repository.
// This should be called once on application startup. Devices persisted in
// a transient state (reconnecting) are demoted to disconnected: a restart
// means any in-flight reconnection run is gone.
func (r *Registry) Load(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}

	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		if d.State == StateReconnecting {
			d.State = StateDisconnected
			d.ReconnectAttempt = 0
		}
		r.devices[d.ID] = d.DeepCopy()
	}

	r.logger.Info("device registry loaded", "count", len(devices))
	return nil
}

// Upsert adds a device or refreshes the identity fields of an existing one.
//
// A device is created when first observed by a scan; re-observing a known
// device updates its name and transport but never resets its connectivity
// state or counters.
func (r *Registry) Upsert(ctx context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()

	r.mu.Lock()
	existing, ok := r.devices[d.ID]
	var stored *Device
	if ok {
		existing.Name = d.Name
		existing.Transport = d.Transport
		existing.UpdatedAt = now
		stored = existing.DeepCopy()
	} else {
		fresh := d.DeepCopy()
		if fresh.State == "" {
			fresh.State = StateDisconnected
		}
		fresh.CreatedAt = now
		fresh.UpdatedAt = now
		r.devices[fresh.ID] = fresh
		stored = fresh.DeepCopy()
	}
	r.mu.Unlock()

	r.persist(ctx, stored)
	r.publishState(stored, "upserted")

	if !ok {
		r.logger.Info("device registered", "device_id", stored.ID, "transport", stored.Transport)
	}
	return nil
}

// Get retrieves a device by ID.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, false
	}
	return d.DeepCopy(), true
}

// All returns a snapshot of every device, sorted by ID.
// The returned devices are deep copies; concurrent mutation of the
// registry during iteration of the result is safe.
func (r *Registry) All() []Device {
	r.mu.RLock()
	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d.DeepCopy())
	}
	r.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// UpdateState transitions a device to a new connectivity state.
//
// Unknown IDs are a silent no-op: a device may legitimately have been
// removed between a read and this write, and the registry never raises
// for a foreign identifier.
//
// Leaving StateReconnecting resets the attempt counter. The transition is
// persisted, recorded in history, and published to observers; failures in
// any of those are logged but never surfaced, since the in-memory table
// is canonical.
func (r *Registry) UpdateState(ctx context.Context, id string, to State, reason string) {
	if !validState(to) {
		r.logger.Warn("ignoring invalid state transition", "device_id", id, "state", to)
		return
	}

	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("state update for unknown device", "device_id", id)
		return
	}

	from := d.State
	d.State = to
	if from == StateReconnecting && to != StateReconnecting {
		d.ReconnectAttempt = 0
	}
	d.UpdatedAt = time.Now().UTC()
	snapshot := d.DeepCopy()
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	if from != to {
		r.recordTransition(ctx, id, from, to, reason)
		if r.telemetry != nil {
			r.telemetry.WriteStateTransition(id, string(from), string(to), reason)
		}
	}
	r.publishState(snapshot, reason)

	r.logger.Debug("device state changed",
		"device_id", id,
		"from", from,
		"to", to,
		"reason", reason,
	)
}

// IncrementAttempt bumps a device's reconnect attempt counter and returns
// the new value. Unknown IDs are a silent no-op returning 0.
func (r *Registry) IncrementAttempt(ctx context.Context, id string) int {
	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return 0
	}
	d.ReconnectAttempt++
	d.UpdatedAt = time.Now().UTC()
	attempt := d.ReconnectAttempt
	snapshot := d.DeepCopy()
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	return attempt
}

// TouchHealthCheck records a successful health check at the given time.
// Unknown IDs are a silent no-op.
func (r *Registry) TouchHealthCheck(ctx context.Context, id string, at time.Time) {
	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	at = at.UTC()
	d.LastHealthCheckAt = &at
	d.UpdatedAt = time.Now().UTC()
	snapshot := d.DeepCopy()
	r.mu.Unlock()

	r.persist(ctx, snapshot)
}

// SetRecording updates a device's recording flag.
// Unknown IDs are a silent no-op.
func (r *Registry) SetRecording(ctx context.Context, id string, recording bool) {
	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	d.Recording = recording
	d.UpdatedAt = time.Now().UTC()
	snapshot := d.DeepCopy()
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	r.publishState(snapshot, "recording_changed")
}

// Remove deletes a device from the registry and the repository.
// Unknown IDs are a silent no-op. The core never drives removal itself;
// this exists for explicit user action from the composing layer.
func (r *Registry) Remove(ctx context.Context, id string) {
	r.mu.Lock()
	_, ok := r.devices[id]
	if ok {
		delete(r.devices, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if r.repo != nil {
		if err := r.repo.Delete(ctx, id); err != nil {
			r.logger.Error("deleting device from repository", "device_id", id, "error", err)
		}
	}
	r.logger.Info("device removed", "device_id", id)
}

// History returns recent state transitions for a device, newest first.
// Returns nil when no repository is configured.
func (r *Registry) History(ctx context.Context, id string, limit int) ([]TransitionRecord, error) {
	if r.repo == nil {
		return nil, nil
	}
	return r.repo.History(ctx, id, limit)
}

// persist writes the device through to the repository, if configured.
func (r *Registry) persist(ctx context.Context, d *Device) {
	if r.repo == nil {
		return
	}
	if err := r.repo.Save(ctx, d); err != nil {
		r.logger.Error("persisting device", "device_id", d.ID, "error", err)
	}
}

// recordTransition appends a history row, if a repository is configured.
func (r *Registry) recordTransition(ctx context.Context, id string, from, to State, reason string) {
	if r.repo == nil {
		return
	}
	if err := r.repo.RecordTransition(ctx, id, from, to, reason); err != nil {
		r.logger.Error("recording state transition", "device_id", id, "error", err)
	}
}

// stateNotification is the JSON payload published on state topics.
type stateNotification struct {
	DeviceID  string    `json:"device_id"`
	Name      string    `json:"name"`
	Transport string    `json:"transport"`
	State     string    `json:"state"`
	Attempt   int       `json:"attempt"`
	Recording bool      `json:"recording"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// publishState announces a device's current state to observers.
// Published retained (QoS 1) so late subscribers see the current state.
func (r *Registry) publishState(d *Device, reason string) {
	if r.publisher == nil || r.stateTopic == nil || !r.publisher.IsConnected() {
		return
	}

	payload, err := json.Marshal(stateNotification{
		DeviceID:  d.ID,
		Name:      d.Name,
		Transport: string(d.Transport),
		State:     string(d.State),
		Attempt:   d.ReconnectAttempt,
		Recording: d.Recording,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}

	if err := r.publisher.Publish(r.stateTopic(d.ID), payload, 1, true); err != nil {
		r.logger.Warn("publishing state notification", "device_id", d.ID, "error", err)
	}
}
