// Package mqtt provides MQTT client connectivity for the alerting bus.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The service publishes high-risk security events to the broker so
// operational consumers (dashboards, pagers) can react without polling
// the audit log. Delivery is advisory: the audit log in SQLite is the
// durable record, and a broker outage never blocks an authorisation
// decision.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Alert payloads carry event metadata, never credentials or codes
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Alerting)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.Alert("critical")
//	client.Publish(topic, payload, 1, false)
package mqtt
