package mqtt

import "fmt"

// Topic prefixes for the camfleet MQTT namespace.
//
// The core publishes fleet state on camfleet/device and camfleet/job topics
// and exchanges transport requests with bridge processes on camfleet/request
// and camfleet/response topics. Bridges are the processes that actually
// speak BLE or COHN HTTPS to a camera.
const (
	// TopicPrefix is the base for all fleet topics.
	TopicPrefix = "camfleet"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "camfleet/system"
)

// Topics provides builders for camfleet MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("gp-7231")
//	// Returns: "camfleet/device/gp-7231/state"
type Topics struct{}

// DeviceState returns the topic for a device's connectivity state.
// Published retained so new observers see the current state immediately.
//
// Example: camfleet/device/gp-7231/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// AllDeviceStates returns the wildcard pattern matching every device state topic.
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/device/+/state", TopicPrefix)
}

// HealthSummary returns the topic for health monitor tick summaries.
//
// Example: camfleet/health
func (Topics) HealthSummary() string {
	return fmt.Sprintf("%s/health", TopicPrefix)
}

// JobProgress returns the topic for reconnection job progress updates.
//
// Example: camfleet/job/progress
func (Topics) JobProgress() string {
	return fmt.Sprintf("%s/job/progress", TopicPrefix)
}

// JobOutcome returns the topic for reconnection job terminal outcomes.
//
// Example: camfleet/job/outcome
func (Topics) JobOutcome() string {
	return fmt.Sprintf("%s/job/outcome", TopicPrefix)
}

// BridgeRequest returns the topic for a transport request to a bridge.
//
// Example: camfleet/request/provision/req-abc123
func (Topics) BridgeRequest(kind, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, kind, requestID)
}

// BridgeResponse returns the topic a bridge answers a request on.
//
// Example: camfleet/response/req-abc123
func (Topics) BridgeResponse(requestID string) string {
	return fmt.Sprintf("%s/response/%s", TopicPrefix, requestID)
}

// AllBridgeResponses returns the wildcard pattern matching every bridge response.
func (Topics) AllBridgeResponses() string {
	return fmt.Sprintf("%s/response/+", TopicPrefix)
}

// SystemStatus returns the topic for core online/offline status (LWT target).
//
// Example: camfleet/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
