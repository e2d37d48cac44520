package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/camfleet-core/internal/device"
	"github.com/nerrad567/camfleet-core/internal/transport"
)

// Logger defines the logging interface used by the monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Gate reports whether remediation work is in flight.
// While any gate is busy the monitor skips its polling cycle entirely,
// so health probes never race a reconnection run or a command batch.
type Gate interface {
	Busy() bool
}

// BatchHandler receives the devices that failed a polling cycle.
// It is called at most once per cycle, and never with an empty batch.
type BatchHandler func(unhealthy []device.Device)

// Telemetry receives per-probe measurements. Optional.
type Telemetry interface {
	WriteHealthCheck(deviceID string, ok bool, latency time.Duration)
}

// Publisher publishes cycle summaries. Optional.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Monitor periodically probes connected devices and demotes the ones
// that stop answering.
//
// Each cycle it snapshots the registry, probes only devices currently in
// the connected state, marks failures disconnected, and hands the full
// unhealthy batch to the configured handler in a single call. Devices
// already disconnected, reconnecting, or failed are someone else's
// problem and are never probed.
type Monitor struct {
	registry  *device.Registry
	transport transport.Transport
	handler   BatchHandler

	interval     time.Duration
	checkTimeout time.Duration

	gates        []Gate
	telemetry    Telemetry
	publisher    Publisher
	summaryTopic string
	logger       Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a health monitor.
// The handler receives each cycle's unhealthy batch; it must not block
// for long, since the monitor calls it synchronously from the poll loop.
func New(registry *device.Registry, tr transport.Transport, handler BatchHandler, interval, checkTimeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if checkTimeout <= 0 {
		checkTimeout = 10 * time.Second
	}
	return &Monitor{
		registry:     registry,
		transport:    tr,
		handler:      handler,
		interval:     interval,
		checkTimeout: checkTimeout,
		logger:       noopLogger{},
		done:         make(chan struct{}),
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.logger = logger
}

// AddGate registers a busy-check consulted before each polling cycle.
func (m *Monitor) AddGate(g Gate) {
	m.gates = append(m.gates, g)
}

// SetTelemetry sets an optional per-probe measurement sink.
func (m *Monitor) SetTelemetry(t Telemetry) {
	m.telemetry = t
}

// SetPublisher sets an optional publisher for cycle summaries.
func (m *Monitor) SetPublisher(p Publisher, summaryTopic string) {
	m.publisher = p
	m.summaryTopic = summaryTopic
}

// Start launches the polling loop in a background goroutine.
// The loop exits when ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
	m.logger.Info("health monitor started", "interval", m.interval)
}

// Stop terminates the polling loop and waits for it to exit.
// Safe to call multiple times.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

// run is the monitor's main loop.
func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// cycleSummary is the JSON payload published after each polling cycle.
type cycleSummary struct {
	Probed    int       `json:"probed"`
	Healthy   int       `json:"healthy"`
	Unhealthy int       `json:"unhealthy"`
	Skipped   bool      `json:"skipped"`
	Timestamp time.Time `json:"timestamp"`
}

// tick runs one polling cycle.
func (m *Monitor) tick(ctx context.Context) {
	for _, g := range m.gates {
		if g.Busy() {
			m.logger.Debug("skipping health cycle, remediation in flight")
			m.publishSummary(cycleSummary{Skipped: true, Timestamp: time.Now().UTC()})
			return
		}
	}

	var probed, healthy int
	var unhealthy []device.Device

	for _, d := range m.registry.All() {
		if d.State != device.StateConnected {
			continue
		}
		probed++

		if m.probe(ctx, d.ID) {
			healthy++
			m.registry.TouchHealthCheck(ctx, d.ID, time.Now().UTC())
			continue
		}

		m.registry.UpdateState(ctx, d.ID, device.StateDisconnected, "health check failed")
		if fresh, ok := m.registry.Get(d.ID); ok {
			unhealthy = append(unhealthy, *fresh)
		}
	}

	m.publishSummary(cycleSummary{
		Probed:    probed,
		Healthy:   healthy,
		Unhealthy: len(unhealthy),
		Timestamp: time.Now().UTC(),
	})

	if len(unhealthy) == 0 {
		return
	}

	m.logger.Warn("health cycle found unhealthy devices", "count", len(unhealthy))
	if m.handler != nil {
		m.handler(unhealthy)
	}
}

// probe runs a single bounded health check.
// Any failure, timeout included, counts as unhealthy.
func (m *Monitor) probe(ctx context.Context, id string) bool {
	checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	start := time.Now()
	err := m.transport.HealthCheck(checkCtx, id)
	latency := time.Since(start)

	if m.telemetry != nil {
		m.telemetry.WriteHealthCheck(id, err == nil, latency)
	}
	if err != nil {
		m.logger.Debug("health check failed", "device_id", id, "error", err)
		return false
	}
	return true
}

// publishSummary announces a cycle summary, if a publisher is configured.
func (m *Monitor) publishSummary(s cycleSummary) {
	if m.publisher == nil || m.summaryTopic == "" || !m.publisher.IsConnected() {
		return
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := m.publisher.Publish(m.summaryTopic, payload, 0, false); err != nil {
		m.logger.Warn("publishing health summary", "error", err)
	}
}
