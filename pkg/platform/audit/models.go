package audit

import "time"

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers disclosures of identity data to third parties.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers events relevant to security monitoring.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity; sinks may sample it.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It never carries
// attribute values: only identifiers, counts and digests.
type Event struct {
	ID        string        `json:"id"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Action    AuditEvent    `json:"action"`
	WalletID  string        `json:"wallet_id"`
	SessionID string        `json:"session_id"`
	RequestID string        `json:"request_id,omitempty"`
	// RequestingParty is the host of the requesting URL, never the full URL.
	RequestingParty string `json:"requesting_party,omitempty"`
	Decision        string `json:"decision,omitempty"`
	Reason          string `json:"reason,omitempty"`
	GroupCount      int    `json:"group_count,omitempty"`
	// Fingerprints are blake2b digests of the commitment inputs, one per group.
	Fingerprints []string `json:"fingerprints,omitempty"`
}

type AuditEvent string

const (
	EventSessionStarted       AuditEvent = "proof_session_started"
	EventSessionUnsatisfiable AuditEvent = "proof_session_unsatisfiable"
	EventProofSubmitted       AuditEvent = "proof_submitted"
	EventProofRejected        AuditEvent = "proof_rejected"
	EventProvingFailed        AuditEvent = "proving_failed"
	EventSessionDisposed      AuditEvent = "proof_session_disposed"
	EventAuthFailed           AuditEvent = "auth_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventProofSubmitted: CategoryCompliance,
	EventProofRejected:  CategoryCompliance,

	EventAuthFailed:    CategorySecurity,
	EventProvingFailed: CategorySecurity,

	EventSessionStarted:       CategoryOperations,
	EventSessionUnsatisfiable: CategoryOperations,
	EventSessionDisposed:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
