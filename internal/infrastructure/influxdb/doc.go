// Package influxdb provides optional connection telemetry for the fleet core.
//
// When enabled in config, the core records time-series data about the
// fleet's connectivity:
//
//   - health_check: per-device check results and latency
//   - state_transition: device connectivity state changes
//   - reconnect_job: reconnection job outcomes
//
// Writes are non-blocking and batched; a telemetry outage never affects
// connection management. All components treat the client as optional and
// skip writes when it is nil or disconnected.
//
// # Configuration
//
//	influxdb:
//	  enabled: true
//	  url: "http://localhost:8086"
//	  org: "camfleet"
//	  bucket: "fleet"
//	  batch_size: 100
//	  flush_interval: 10
//
// The token should be supplied via CAMFLEET_INFLUXDB_TOKEN.
package influxdb
