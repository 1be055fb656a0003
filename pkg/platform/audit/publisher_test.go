package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
)

type fakeProducer struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
	err     error
}

func (f *fakeProducer) Produce(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	f.topic, f.key, f.value, f.headers = topic, key, value, headers
	return f.err
}

type PublisherSuite struct {
	suite.Suite
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) TestEmitStampsAndKeysBySession() {
	producer := &fakeProducer{}
	pub := NewPublisher(producer, "proof.audit")

	err := pub.Emit(context.Background(), Event{
		Action:       EventProofSubmitted,
		SessionID:    "session-1",
		WalletID:     "wallet-1",
		Fingerprints: []string{"ab"},
	})
	s.Require().NoError(err)
	s.Equal("proof.audit", producer.topic)
	s.Equal([]byte("session-1"), producer.key)
	s.Equal("compliance", producer.headers["category"])

	var got Event
	s.Require().NoError(json.Unmarshal(producer.value, &got))
	s.NotEmpty(got.ID)
	s.False(got.Timestamp.IsZero())
	s.Equal(CategoryCompliance, got.Category)
	s.Equal([]string{"ab"}, got.Fingerprints)
}

func (s *PublisherSuite) TestEmitPropagatesProducerError() {
	var buf bytes.Buffer
	producer := &fakeProducer{err: errors.New("broker down")}
	pub := NewPublisher(producer, "t", WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	err := pub.Emit(context.Background(), Event{Action: EventProofRejected, SessionID: "s"})
	s.ErrorContains(err, "broker down")
	s.Contains(buf.String(), "failed to publish audit event")
}

func (s *PublisherSuite) TestLogPublisher() {
	var buf bytes.Buffer
	pub := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))
	s.Require().NoError(pub.Emit(context.Background(), Event{Action: EventSessionStarted, SessionID: "s"}))
	s.Contains(buf.String(), `"action":"proof_session_started"`)
	s.Contains(buf.String(), `"category":"operations"`)
}

func (s *PublisherSuite) TestRecorder() {
	rec := NewRecorder()
	s.Require().NoError(rec.Emit(context.Background(), Event{Action: EventSessionStarted}))
	s.Require().NoError(rec.Emit(context.Background(), Event{Action: EventAuthFailed}))
	s.Equal([]AuditEvent{EventSessionStarted, EventAuthFailed}, rec.Actions())
	s.Equal(CategorySecurity, rec.Events()[1].Category)
}

func (s *PublisherSuite) TestUnknownActionIsOperations() {
	s.Equal(CategoryOperations, AuditEvent("something_else").Category())
}
