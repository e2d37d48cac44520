// Package transport defines the boundary between the lifecycle core and
// whatever actually talks to cameras.
//
// The core never opens a BLE session or an HTTPS connection itself. It
// expresses intent through the Transport interface (scan, health check,
// provision, dispatch) and the Bridge adapter carries those calls over
// MQTT to bridge processes that own the radios. Tests substitute a fake
// Transport and never touch a broker.
package transport
