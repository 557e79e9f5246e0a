// Package metrics writes authorisation telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with the
// connection-management pattern used across the infrastructure
// packages: Connect / HealthCheck / Close plus non-blocking batched
// writes.
//
// # Purpose
//
// Time-series counts for:
//   - Policy decision outcomes (action, resource type, allow/deny)
//   - Access-code validation failures by reason
//   - Login attempt outcomes
//
// Only counts and closed-set tags are written. Code values,
// credentials, principal IDs and resource IDs never leave the process.
//
// # Usage
//
//	client, err := metrics.Connect(cfg.Metrics)
//	if errors.Is(err, metrics.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteDecision("read", "deliberation", true)
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package metrics
