// Package mqtt provides the MQTT messaging layer for the camera fleet core.
//
// This package wraps paho.mqtt.golang with:
//   - Connection management and automatic reconnection
//   - Subscription tracking and restoration after reconnect
//   - Last Will and Testament for offline detection
//   - Panic recovery around message handlers
//   - Consistent topic naming via the Topics builders
//
// # Role
//
// MQTT serves two purposes here. It is the notification channel on which
// the core publishes device state transitions, health summaries, and
// reconnection job progress for observers (status surfaces, dashboards).
// It is also the carrier for the bridge transport adapter: request and
// response topics connect the core to the external processes that speak
// BLE/COHN to the cameras.
//
// # Topic hierarchy
//
//	camfleet/device/{id}/state     retained device connectivity state
//	camfleet/health                health monitor tick summaries
//	camfleet/job/progress          reconnection job progress
//	camfleet/job/outcome           reconnection job terminal outcomes
//	camfleet/request/{kind}/{id}   transport requests to bridges
//	camfleet/response/{id}         bridge responses
//	camfleet/system/status         core online/offline (LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceState("gp-7231")
//	err = client.PublishRetained(topic, payload)
package mqtt
