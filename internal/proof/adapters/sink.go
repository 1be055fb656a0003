package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"attest/internal/proof/models"
	"attest/internal/proof/ports"
	"attest/pkg/platform/audit"
)

var (
	_ ports.ResultSink = (*KafkaSink)(nil)
	_ ports.ResultSink = (*LogSink)(nil)
)

// KafkaSink publishes outcomes to the host's result topic keyed by session.
type KafkaSink struct {
	producer audit.Producer
	topic    string
}

func NewKafkaSink(producer audit.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (k *KafkaSink) Deliver(ctx context.Context, outcome models.Outcome) error {
	value, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	kind := "rejected"
	if outcome.Submitted {
		kind = "submitted"
	}
	headers := map[string]string{"outcome": kind, "wallet_id": outcome.WalletID}
	return k.producer.Produce(ctx, k.topic, []byte(outcome.SessionID), value, headers)
}

// LogSink logs outcomes. Used when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Deliver(ctx context.Context, outcome models.Outcome) error {
	l.logger.InfoContext(ctx, "proof session outcome",
		"session_id", outcome.SessionID,
		"wallet_id", outcome.WalletID,
		"submitted", outcome.Submitted,
		"reason", outcome.Reason,
	)
	return nil
}
