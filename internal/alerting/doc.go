// Package alerting forwards high-risk security events to the MQTT
// alerting bus.
//
// The audit recorder notifies subscribers after high and critical
// events are committed; this package turns those notifications into
// JSON alerts on agora/alert/{risk_level} topics. Alerting is
// best-effort: a broker outage is logged and the event stays in the
// audit log.
package alerting
