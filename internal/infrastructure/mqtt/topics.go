package mqtt

import "fmt"

// Topic prefixes for the alerting bus.
//
// Alerts use the flat scheme: agora/alert/{risk_level}
const (
	// TopicPrefix is the base for all agora topics.
	TopicPrefix = "agora"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "agora/system"
)

// Topics provides builders for agora MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// Alert returns the topic for security alerts at a risk level.
//
// Example: agora/alert/critical
func (Topics) Alert(riskLevel string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefix, riskLevel)
}

// AllAlerts returns the wildcard subscription for every alert topic.
func (Topics) AllAlerts() string {
	return TopicPrefix + "/alert/+"
}

// SystemStatus returns the topic carrying the service's online state.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
