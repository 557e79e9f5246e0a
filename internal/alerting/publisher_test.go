package alerting

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/openagora/agora-core/internal/audit"
)

type fakeBroker struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (f *fakeBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeBroker) QoS() byte { return 1 }

func (f *fakeBroker) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.topics)
}

func TestHandleEventPublishesAlert(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker, slog.Default())

	p.HandleEvent(audit.SecurityEvent{
		ID:           "evt-aaaa1111",
		Action:       "access_code.rate_limited",
		ResourceType: "access_code",
		PrincipalID:  "prn-bbbb2222",
		RiskLevel:    audit.RiskCritical,
		SourceIP:     "10.0.0.9",
		Details:      map[string]any{"failures": float64(6)},
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	if len(broker.topics) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(broker.topics))
	}
	if broker.topics[0] != "agora/alert/critical" {
		t.Errorf("topic = %q, want agora/alert/critical", broker.topics[0])
	}

	var alert Alert
	if err := json.Unmarshal(broker.payloads[0], &alert); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if alert.EventID != "evt-aaaa1111" {
		t.Errorf("event_id = %q", alert.EventID)
	}
	if alert.Action != "access_code.rate_limited" {
		t.Errorf("action = %q", alert.Action)
	}
	if alert.RiskLevel != audit.RiskCritical {
		t.Errorf("risk_level = %q", alert.RiskLevel)
	}
}

func TestHandleEventDropsOnBrokerFailure(t *testing.T) {
	broker := &fakeBroker{err: errors.New("broker unreachable")}
	p := NewPublisher(broker, slog.Default())

	// Must not panic or retry; the audit log already holds the event.
	p.HandleEvent(audit.SecurityEvent{
		ID:        "evt-cccc3333",
		Action:    "principal.role_change",
		RiskLevel: audit.RiskHigh,
	})

	if len(broker.topics) != 0 {
		t.Errorf("expected no recorded publishes, got %d", len(broker.topics))
	}
}

func TestPublisherRegistersWithRecorder(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker, slog.Default())

	recorder := audit.NewRecorder(nil, slog.Default())
	p.Register(recorder)

	recorder.Notify(audit.SecurityEvent{
		ID:        "evt-dddd4444",
		Action:    "principal.archive",
		RiskLevel: audit.RiskHigh,
	})

	// Subscribers run on their own goroutines.
	deadline := time.After(2 * time.Second)
	for broker.published() == 0 {
		select {
		case <-deadline:
			t.Fatal("alert was not published")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}
