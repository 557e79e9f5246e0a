package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
)

// Subscriber receives high-risk security events after they are persisted.
// Implementations must not block: the recorder calls each subscriber on a
// separate goroutine.
type Subscriber func(event SecurityEvent)

// Recorder persists security events and fans out high and critical risk
// events to registered subscribers (live event feed, alerting broker).
type Recorder struct {
	repo   Repository
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewRecorder creates a recorder backed by the given repository.
func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Subscribe registers a subscriber for high and critical risk events.
func (r *Recorder) Subscribe(fn Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// Record persists an event and notifies subscribers if it is high or
// critical risk. A persistence failure is logged but never surfaced to
// the caller: recording must not fail the operation it describes,
// except where the caller explicitly couples them via RecordTx.
func (r *Recorder) Record(ctx context.Context, event *SecurityEvent) {
	if err := r.repo.Create(ctx, event); err != nil {
		r.logger.Error("failed to record security event",
			"action", event.Action,
			"resource_type", event.ResourceType,
			"error", err)
		return
	}
	r.notify(*event)
}

// RecordTx persists an event inside the caller's transaction, so the
// event commits or rolls back with the state change it records. The
// error is returned: a coupled event that cannot be written must abort
// the transaction. Subscribers are not notified here; call Notify after
// the transaction commits.
func (r *Recorder) RecordTx(ctx context.Context, tx *sql.Tx, event *SecurityEvent) error {
	return r.repo.CreateTx(ctx, tx, event)
}

// Notify fans out an already-persisted event to subscribers. Used after
// a RecordTx transaction commits.
func (r *Recorder) Notify(event SecurityEvent) {
	r.notify(event)
}

func (r *Recorder) notify(event SecurityEvent) {
	if event.RiskLevel != RiskHigh && event.RiskLevel != RiskCritical {
		return
	}

	r.mu.RLock()
	subs := make([]Subscriber, len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.RUnlock()

	for _, fn := range subs {
		go fn(event)
	}
}
