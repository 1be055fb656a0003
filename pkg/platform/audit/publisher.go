package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Producer is the subset of the kafka producer the publisher needs.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Publisher stamps events and writes them to a topic, keyed by session id so
// one session's events stay ordered.
type Publisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a publisher writing to topic.
func NewPublisher(producer Producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{producer: producer, topic: topic}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit publishes event synchronously.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	event = stamp(event)
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	headers := map[string]string{
		"category": string(event.Category),
		"action":   string(event.Action),
	}
	if err := p.producer.Produce(ctx, p.topic, []byte(event.SessionID), value, headers); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "failed to publish audit event",
				"action", event.Action,
				"session_id", event.SessionID,
				"error", err,
			)
		}
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

// LogPublisher writes events to a logger. It is used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that logs every event at info level.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Emit logs event.
func (p *LogPublisher) Emit(ctx context.Context, event Event) error {
	event = stamp(event)
	p.logger.InfoContext(ctx, "audit",
		"id", event.ID,
		"category", event.Category,
		"action", event.Action,
		"wallet_id", event.WalletID,
		"session_id", event.SessionID,
		"request_id", event.RequestID,
		"requesting_party", event.RequestingParty,
		"decision", event.Decision,
		"reason", event.Reason,
		"group_count", event.GroupCount,
		"fingerprints", event.Fingerprints,
	)
	return nil
}

// Recorder keeps events in memory. Tests use it to assert on emitted events.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit appends event.
func (r *Recorder) Emit(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, stamp(event))
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Actions returns the recorded actions in order.
func (r *Recorder) Actions() []AuditEvent {
	events := r.Events()
	out := make([]AuditEvent, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func stamp(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	return event
}
