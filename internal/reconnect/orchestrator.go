package reconnect

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/camfleet-core/internal/device"
	"github.com/nerrad567/camfleet-core/internal/transport"
)

// Logger defines the logging interface used by the orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Credential is a network credential used for provisioning.
type Credential struct {
	SSID     string
	Password string
}

// CredentialSource supplies the most-recently-used credential.
// Satisfied by the credential profile store.
type CredentialSource interface {
	// ActiveCredential returns the newest saved credential.
	// ok is false when no profile exists.
	ActiveCredential() (ssid, password string, ok bool)
}

// Publisher publishes job progress and outcomes. Optional.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Telemetry receives job outcome measurements. Optional.
type Telemetry interface {
	WriteJobOutcome(reconnected, failed int, cancelled bool)
}

// Config carries the orchestrator's retry policy.
// The delays exist so tests can compress time; production uses defaults.
type Config struct {
	MaxAttempts int
	SettleDelay time.Duration
	RetryDelay  time.Duration
	GraceDelay  time.Duration
}

// DefaultConfig returns the production retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		SettleDelay: 500 * time.Millisecond,
		RetryDelay:  2000 * time.Millisecond,
		GraceDelay:  2000 * time.Millisecond,
	}
}

// normalize fills zero fields with defaults.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = def.SettleDelay
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = def.GraceDelay
	}
	return c
}

// Orchestrator restores connectivity for batches of unhealthy devices.
//
// Devices are processed strictly sequentially, in batch order. This
// bounds load on the shared transport and keeps progress reporting
// deterministic. One job runs at a time; a batch handed off while a job
// is active is rejected.
//
// The orchestrator owns transitions into Reconnecting, Connected, and
// Failed. Nothing else writes those states.
type Orchestrator struct {
	registry  *device.Registry
	transport transport.Transport
	creds     CredentialSource
	cfg       Config

	publisher     Publisher
	progressTopic string
	outcomeTopic  string
	telemetry     Telemetry
	logger        Logger

	mu       sync.Mutex
	job      *Job
	fallback *Credential
	running  bool
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// New creates an orchestrator. creds may be nil when every run supplies
// a fallback credential.
func New(registry *device.Registry, tr transport.Transport, creds CredentialSource, cfg Config) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		transport: tr,
		creds:     creds,
		cfg:       cfg.normalize(),
		logger:    noopLogger{},
		inFlight:  make(map[string]bool),
	}
}

// SetLogger sets the logger for the orchestrator.
func (o *Orchestrator) SetLogger(logger Logger) {
	o.logger = logger
}

// SetPublisher sets an optional publisher for progress and outcomes.
func (o *Orchestrator) SetPublisher(p Publisher, progressTopic, outcomeTopic string) {
	o.publisher = p
	o.progressTopic = progressTopic
	o.outcomeTopic = outcomeTopic
}

// SetTelemetry sets an optional outcome measurement sink.
func (o *Orchestrator) SetTelemetry(t Telemetry) {
	o.telemetry = t
}

// Start begins a reconnection run over the given devices.
//
// The batch is processed in a background goroutine; the returned Job
// exposes progress and completion. fallback is used when no saved
// credential profile exists; it may be nil.
//
// Returns ErrJobInProgress if a run is already active, ErrEmptyBatch
// for an empty batch.
func (o *Orchestrator) Start(ctx context.Context, devices []device.Device, fallback *Credential) (*Job, error) {
	if len(devices) == 0 {
		return nil, ErrEmptyBatch
	}

	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrJobInProgress
	}
	job := newJob(ids)
	o.job = job
	o.fallback = fallback
	o.running = true
	o.mu.Unlock()

	o.logger.Info("reconnection run started", "devices", len(ids))

	o.wg.Add(1)
	go o.run(ctx, job, ids)
	return job, nil
}

// Cancel requests cooperative cancellation of the active run.
// No-op when no run is active.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	job := o.job
	o.mu.Unlock()
	if job == nil {
		return
	}
	job.Cancel()
	o.logger.Info("reconnection run cancellation requested")
}

// CurrentJob returns the most recent job, which may already be terminal.
// Returns nil before the first run.
func (o *Orchestrator) CurrentJob() *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.job
}

// Dismiss completes the current job, releasing observers waiting on Done.
// Used for jobs with failures, which never auto-complete.
func (o *Orchestrator) Dismiss() {
	o.mu.Lock()
	job := o.job
	o.mu.Unlock()
	if job != nil {
		job.complete()
	}
}

// Busy reports whether remediation is in flight: the batch loop is
// running or a per-device override attempt is active. The health monitor
// gates its polling on this.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running || len(o.inFlight) > 0
}

// Wait blocks until all background work has finished. Intended for
// shutdown and tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// RetryDevice runs the attempt loop again for a single device, outside
// the batch's cancellation scope. Silent no-op if the device is unknown
// to the current job or already mid-attempt.
func (o *Orchestrator) RetryDevice(ctx context.Context, id string) {
	o.mu.Lock()
	job := o.job
	o.mu.Unlock()
	if job == nil {
		return
	}
	if _, known := job.statusOf(id); !known {
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		// Ignores job cancellation: an explicit retry is a fresh ask.
		o.attemptDevice(ctx, job, id, nil)
		job.refreshOutcome()
		o.publishProgress(job)
	}()
}

// SkipDevice force-fails a device without further communication.
// Silent no-op if the device is unknown, mid-attempt, or already
// terminal.
func (o *Orchestrator) SkipDevice(ctx context.Context, id string) {
	o.mu.Lock()
	job := o.job
	busy := o.inFlight[id]
	o.mu.Unlock()
	if job == nil || busy {
		return
	}

	status, known := job.statusOf(id)
	if !known {
		return
	}
	switch status {
	case StatusConnected, StatusFailed, StatusSkipped, StatusCancelled:
		return
	}

	job.markFailed(id, StatusSkipped)
	o.registry.UpdateState(ctx, id, device.StateFailed, "skipped by user")
	job.refreshOutcome()
	o.publishProgress(job)
	o.logger.Info("device skipped", "device_id", id)
}

// run processes the batch sequentially, then finalizes the job.
func (o *Orchestrator) run(ctx context.Context, job *Job, ids []string) {
	defer o.wg.Done()

	for _, id := range ids {
		// A device skipped while waiting its turn is already terminal.
		if status, _ := job.statusOf(id); status != StatusPending {
			continue
		}
		if job.IsCancelled() {
			job.markCancelled(id)
			o.publishProgress(job)
			break
		}
		o.attemptDevice(ctx, job, id, job.IsCancelled)
		o.publishProgress(job)
	}

	o.finish(ctx, job)
}

// attemptDevice runs the bounded attempt loop for one device.
//
// cancelled, when non-nil, is consulted inside the inter-attempt delay
// so a batch cancellation interrupts the wait; the current attempt
// itself always runs to completion. The per-device in-flight guard
// makes concurrent attempts on the same device a no-op.
func (o *Orchestrator) attemptDevice(ctx context.Context, job *Job, id string, cancelled func() bool) {
	o.mu.Lock()
	if o.inFlight[id] {
		o.mu.Unlock()
		return
	}
	o.inFlight[id] = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.inFlight, id)
		o.mu.Unlock()
	}()

	// Skipped and connected devices are never attempted again; failed
	// and cancelled ones may be, via an explicit retry.
	switch status, _ := job.statusOf(id); status {
	case StatusSkipped, StatusConnected:
		return
	}

	o.mu.Lock()
	fallback := o.fallback
	o.mu.Unlock()

	ssid, password, ok := o.activeCredential(fallback)
	if !ok {
		o.registry.UpdateState(ctx, id, device.StateFailed, "no credentials available")
		job.markFailed(id, StatusFailed)
		o.logger.Warn("no credentials available for reconnect", "device_id", id)
		return
	}

	o.registry.UpdateState(ctx, id, device.StateReconnecting, "reconnect started")

	for n := 1; n <= o.cfg.MaxAttempts; n++ {
		o.registry.IncrementAttempt(ctx, id)
		job.setStatus(id, attemptingStatus(n, o.cfg.MaxAttempts))
		o.publishProgress(job)

		if o.attemptOnce(ctx, id, ssid, password) {
			o.registry.UpdateState(ctx, id, device.StateConnected, "reconnected")
			job.markConnected(id)
			o.logger.Info("device reconnected", "device_id", id, "attempt", n)
			return
		}

		o.logger.Debug("reconnect attempt failed", "device_id", id, "attempt", n)

		if n < o.cfg.MaxAttempts {
			if !o.interruptibleDelay(ctx, o.cfg.RetryDelay, cancelled) {
				job.setStatus(id, StatusCancelled)
				o.registry.UpdateState(ctx, id, device.StateDisconnected, "reconnect cancelled")
				return
			}
		}
	}

	o.registry.UpdateState(ctx, id, device.StateFailed, "reconnect attempts exhausted")
	job.markFailed(id, StatusFailed)
	o.logger.Warn("device failed to reconnect", "device_id", id, "attempts", o.cfg.MaxAttempts)
}

// attemptOnce provisions, settles, and confirms with a health check.
func (o *Orchestrator) attemptOnce(ctx context.Context, id, ssid, password string) bool {
	if err := o.transport.Provision(ctx, id, ssid, password); err != nil {
		return false
	}

	// Let the camera finish joining the network before probing it.
	select {
	case <-time.After(o.cfg.SettleDelay):
	case <-ctx.Done():
		return false
	}

	return o.transport.HealthCheck(ctx, id) == nil
}

// interruptibleDelay sleeps for d, returning false if cancelled (via
// the flag or the context) before the delay elapses.
func (o *Orchestrator) interruptibleDelay(ctx context.Context, d time.Duration, cancelled func() bool) bool {
	const pollStep = 25 * time.Millisecond

	timer := time.NewTimer(d)
	defer timer.Stop()

	poll := time.NewTicker(pollStep)
	defer poll.Stop()

	for {
		select {
		case <-timer.C:
			return true
		case <-ctx.Done():
			return false
		case <-poll.C:
			if cancelled != nil && cancelled() {
				return false
			}
		}
	}
}

// activeCredential resolves the credential for provisioning: the saved
// most-recently-used profile, falling back to the caller-supplied one.
func (o *Orchestrator) activeCredential(fallback *Credential) (ssid, password string, ok bool) {
	if o.creds != nil {
		if s, p, found := o.creds.ActiveCredential(); found {
			return s, p, true
		}
	}
	if fallback != nil {
		return fallback.SSID, fallback.Password, true
	}
	return "", "", false
}

// finish finalizes counters, publishes the outcome, and schedules
// auto-completion for fully successful runs.
func (o *Orchestrator) finish(ctx context.Context, job *Job) {
	job.finalize()

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()

	snap := job.Snapshot()
	o.logger.Info("reconnection run finished",
		"reconnected", snap.Reconnected,
		"failed", snap.Failed,
		"cancelled", snap.Cancelled,
		"outcome", snap.Outcome,
	)

	o.publishOutcome(snap)
	if o.telemetry != nil {
		o.telemetry.WriteJobOutcome(snap.Reconnected, snap.Failed, snap.Cancelled)
	}

	if snap.Failed == 0 && !snap.Cancelled && snap.Reconnected > 0 {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			select {
			case <-time.After(o.cfg.GraceDelay):
			case <-ctx.Done():
			}
			job.complete()
		}()
	}
}

// publishProgress announces the job's current snapshot.
func (o *Orchestrator) publishProgress(job *Job) {
	if o.publisher == nil || o.progressTopic == "" || !o.publisher.IsConnected() {
		return
	}
	payload, err := json.Marshal(job.Snapshot())
	if err != nil {
		return
	}
	if err := o.publisher.Publish(o.progressTopic, payload, 0, false); err != nil {
		o.logger.Warn("publishing job progress", "error", err)
	}
}

// publishOutcome announces a terminal job snapshot.
func (o *Orchestrator) publishOutcome(snap Snapshot) {
	if o.publisher == nil || o.outcomeTopic == "" || !o.publisher.IsConnected() {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := o.publisher.Publish(o.outcomeTopic, payload, 1, false); err != nil {
		o.logger.Warn("publishing job outcome", "error", err)
	}
}
