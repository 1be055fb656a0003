// Package tracer is the tracing abstraction of the proof module. Services
// depend on the Tracer interface; production wires the OpenTelemetry adapter
// and tests wire NoopTracer.
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute  { return Attribute{Key: key, Value: value} }
func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }
func Int(key string, value int) Attribute   { return Attribute{Key: key, Value: value} }

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanSessionStart    = "proof.session.start"
	SpanStatusBatch     = "proof.status.batch"
	SpanCommitmentBuild = "proof.commitment.build"
	SpanProve           = "proof.prove"
)

// Attribute keys. Attribute values and identifiers of credentials are never
// attached to spans.
const (
	AttrSessionID = "session.id"
	AttrNetwork   = "network"
	AttrGroups    = "groups"
	AttrGroup     = "group"
	AttrKind      = "kind"
	AttrBatchSize = "batch.size"
	AttrCacheHit  = "cache.hit"
	AttrAttempt   = "attempt"
	AttrState     = "state"
	AttrDiscarded = "discarded"
)
