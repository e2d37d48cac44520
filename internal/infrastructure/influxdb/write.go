package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteHealthCheck records the result of a single device health check.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "gp-7231")
//   - ok: Whether the device answered the check
//   - latency: Round-trip time of the check
func (c *Client) WriteHealthCheck(deviceID string, ok bool, latency time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"health_check",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"ok":         ok,
			"latency_ms": float64(latency.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteStateTransition records a device connectivity state change.
//
// Parameters:
//   - deviceID: Device identifier
//   - from: Previous connectivity state
//   - to: New connectivity state
//   - reason: Short transition reason (e.g., "health_check_failed")
func (c *Client) WriteStateTransition(deviceID, from, to, reason string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"state_transition",
		map[string]string{
			"device_id": deviceID,
			"from":      from,
			"to":        to,
		},
		map[string]interface{}{
			"reason": reason,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteJobOutcome records the terminal outcome of a reconnection job.
//
// Parameters:
//   - reconnected: Devices restored to connected state
//   - failed: Devices that exhausted their attempts
//   - cancelled: Whether the job was cancelled before completion
func (c *Client) WriteJobOutcome(reconnected, failed int, cancelled bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"reconnect_job",
		map[string]string{},
		map[string]interface{}{
			"reconnected": reconnected,
			"failed":      failed,
			"cancelled":   cancelled,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
