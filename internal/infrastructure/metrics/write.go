package metrics

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDecision records one policy decision outcome.
//
// This satisfies the evaluator's metrics sink. Tags stay low
// cardinality: action and resource type are closed sets, the principal
// and resource IDs are deliberately not recorded.
//
// Example:
//
//	client.WriteDecision("read", "deliberation", true)
//	client.WriteDecision("delete", "message", false)
func (c *Client) WriteDecision(action string, resourceType string, allowed bool) {
	if !c.IsConnected() {
		return
	}

	outcome := "deny"
	if allowed {
		outcome = "allow"
	}

	point := write.NewPoint(
		"policy_decisions",
		map[string]string{
			"action":        action,
			"resource_type": resourceType,
			"outcome":       outcome,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteValidation records an access-code validation outcome by reason.
// The code itself is never written.
func (c *Client) WriteValidation(reason string, valid bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"code_validations",
		map[string]string{
			"reason": reason,
		},
		map[string]interface{}{
			"count": 1,
			"valid": valid,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLogin records a login attempt outcome.
func (c *Client) WriteLogin(success bool) {
	if !c.IsConnected() {
		return
	}

	outcome := "failure"
	if success {
		outcome = "success"
	}

	point := write.NewPoint(
		"logins",
		map[string]string{
			"outcome": outcome,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and
// fields. Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
