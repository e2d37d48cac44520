package reconnect

import (
	"fmt"
	"sync"
	"time"
)

// Per-device status strings surfaced to observers.
const (
	StatusPending   = "pending"
	StatusConnected = "connected"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusSkipped   = "skipped"
)

// attemptingStatus formats the in-progress status for attempt n of max.
func attemptingStatus(n, max int) string {
	return fmt.Sprintf("attempting (%d/%d)", n, max)
}

// Job tracks one reconnection run over a batch of devices.
//
// A job is ephemeral: it lives from the moment a batch is handed off
// until every device has a terminal outcome (or cancellation) and the
// observer dismisses it. It is never persisted.
type Job struct {
	mu        sync.Mutex
	order     []string
	status    map[string]string
	startedAt time.Time

	reconnected int
	failed      int
	cancelled   bool
	finalized   bool
	outcome     string

	done     chan struct{}
	doneOnce sync.Once
}

// newJob creates a job with every device pending, in batch order.
func newJob(deviceIDs []string) *Job {
	status := make(map[string]string, len(deviceIDs))
	for _, id := range deviceIDs {
		status[id] = StatusPending
	}
	return &Job{
		order:     append([]string(nil), deviceIDs...),
		status:    status,
		startedAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
}

// Snapshot is a point-in-time view of a job for observers.
type Snapshot struct {
	Order       []string          `json:"order"`
	Status      map[string]string `json:"status"`
	Reconnected int               `json:"reconnected"`
	Failed      int               `json:"failed"`
	Cancelled   bool              `json:"cancelled"`
	Outcome     string            `json:"outcome,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
}

// Snapshot returns a copy of the job's current state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	status := make(map[string]string, len(j.status))
	for id, s := range j.status {
		status[id] = s
	}
	return Snapshot{
		Order:       append([]string(nil), j.order...),
		Status:      status,
		Reconnected: j.reconnected,
		Failed:      j.failed,
		Cancelled:   j.cancelled,
		Outcome:     j.outcome,
		StartedAt:   j.startedAt,
	}
}

// Done returns a channel closed when the job completes.
// Jobs with no failures complete automatically after a grace delay;
// anything else stays open until dismissed.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel sets the cooperative cancellation flag.
// Devices not yet started will never start; a device mid-attempt
// finishes its current attempt before observing the flag.
func (j *Job) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelled = true
}

// IsCancelled reports whether cancellation has been requested.
func (j *Job) IsCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// setStatus records a device's current status string.
func (j *Job) setStatus(id, status string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status[id] = status
}

// markConnected records a terminal success for a device.
func (j *Job) markConnected(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.uncount(id)
	j.status[id] = StatusConnected
	j.reconnected++
}

// markFailed records a terminal failure for a device.
func (j *Job) markFailed(id, status string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.uncount(id)
	j.status[id] = status
	j.failed++
}

// uncount reverses the counter contribution of a device's current
// status, so an override attempt re-marking a device counts it exactly
// once. Callers must hold j.mu.
func (j *Job) uncount(id string) {
	switch j.status[id] {
	case StatusConnected:
		j.reconnected--
	case StatusFailed, StatusSkipped:
		j.failed--
	}
}

// markCancelled records that a device was never attempted due to
// cancellation. Not counted as failed.
func (j *Job) markCancelled(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status[id] = StatusCancelled
}

// statusOf returns the current status for a device.
func (j *Job) statusOf(id string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	s, ok := j.status[id]
	return s, ok
}

// finalize computes the job's outcome message from its counters.
// Called once when the batch loop finishes.
func (j *Job) finalize() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finalized = true
	j.computeOutcome()
}

// refreshOutcome recomputes the outcome after an override changes the
// counters. No-op while the batch loop is still running.
func (j *Job) refreshOutcome() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finalized {
		j.computeOutcome()
	}
}

// computeOutcome derives the outcome message from the counters.
// Callers must hold j.mu.
func (j *Job) computeOutcome() {
	switch {
	case j.reconnected == 0 && j.failed == 0:
		j.outcome = "cancelled"
	case j.failed == 0:
		j.outcome = "all reconnected"
	case j.reconnected == 0:
		j.outcome = "all failed"
	default:
		j.outcome = fmt.Sprintf("%d reconnected, %d failed", j.reconnected, j.failed)
	}
}

// complete closes the done channel. Safe to call multiple times.
func (j *Job) complete() {
	j.doneOnce.Do(func() {
		close(j.done)
	})
}
