// Package mqtt provides MQTT client connectivity for authcore.
//
// MQTT is optional. When enabled, authcore publishes to a broker so that
// other services can follow session activity without polling the API:
//   - A retained presence snapshot on {prefix}/presence after every change
//   - Auth events (login, refresh, logout...) on {prefix}/events/{action}
//   - A retained online/offline status on {prefix}/system/status, with a
//     Last Will and Testament so crashes are visible too
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Presence and event payloads carry principal ids and names, never tokens
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.PublishRetained(client.Topics().Presence(), payload)
package mqtt
