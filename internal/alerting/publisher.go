package alerting

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/openagora/agora-core/internal/audit"
	"github.com/openagora/agora-core/internal/infrastructure/mqtt"
)

// Alert is the wire format published to the broker. It carries event
// metadata only; details are included as recorded but credentials and
// code values never reach the audit log in the first place.
type Alert struct {
	EventID      string         `json:"event_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	PrincipalID  string         `json:"principal_id,omitempty"`
	RiskLevel    string         `json:"risk_level"`
	SourceIP     string         `json:"source_ip,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// Broker is the slice of the MQTT client the publisher needs.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	QoS() byte
}

// Publisher forwards high-risk security events to the MQTT alerting
// bus. It is registered as an audit recorder subscriber, which already
// filters to high and critical events and invokes each subscriber on
// its own goroutine, so Publish may block briefly without holding up
// the request path.
type Publisher struct {
	broker Broker
	logger *slog.Logger
}

// NewPublisher creates an alert publisher over a connected broker.
func NewPublisher(broker Broker, logger *slog.Logger) *Publisher {
	return &Publisher{broker: broker, logger: logger}
}

// Register attaches the publisher to the recorder's notification feed.
func (p *Publisher) Register(recorder *audit.Recorder) {
	recorder.Subscribe(p.HandleEvent)
}

// HandleEvent publishes one security event as an alert. Failures are
// logged and dropped: alerting is advisory, the audit log is the
// durable record.
func (p *Publisher) HandleEvent(event audit.SecurityEvent) {
	alert := Alert{
		EventID:      event.ID,
		Action:       event.Action,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		PrincipalID:  event.PrincipalID,
		RiskLevel:    event.RiskLevel,
		SourceIP:     event.SourceIP,
		Details:      event.Details,
		OccurredAt:   event.CreatedAt,
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		p.logger.Error("failed to encode alert", "event_id", event.ID, "error", err)
		return
	}

	topic := mqtt.Topics{}.Alert(event.RiskLevel)
	if err := p.broker.Publish(topic, payload, p.broker.QoS(), false); err != nil {
		p.logger.Warn("failed to publish alert",
			"event_id", event.ID,
			"topic", topic,
			"error", err)
	}
}
