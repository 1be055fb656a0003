package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// QualifierKind selects the credential universe a statement group draws from.
type QualifierKind string

const (
	// QualifierCred scopes a group to account credentials issued by identity providers.
	QualifierCred QualifierKind = "cred"
	// QualifierSCI scopes a group to verifiable credentials issued by registry contracts.
	QualifierSCI QualifierKind = "sci"
)

// IDQualifier is the issuer whitelist of a statement group. Exactly one of
// Providers (for QualifierCred) or Issuers (for QualifierSCI) is populated.
type IDQualifier struct {
	Kind      QualifierKind
	Providers []uint32
	Issuers   []ContractAddress
}

// AllowsProvider reports whether an identity provider index is whitelisted.
func (q IDQualifier) AllowsProvider(provider uint32) bool {
	if q.Kind != QualifierCred {
		return false
	}
	for _, p := range q.Providers {
		if p == provider {
			return true
		}
	}
	return false
}

// AllowsIssuer reports whether a registry contract is whitelisted.
func (q IDQualifier) AllowsIssuer(issuer ContractAddress) bool {
	if q.Kind != QualifierSCI {
		return false
	}
	for _, c := range q.Issuers {
		if c == issuer {
			return true
		}
	}
	return false
}

// IssuerCount returns the size of the whitelist regardless of kind.
func (q IDQualifier) IssuerCount() int {
	if q.Kind == QualifierCred {
		return len(q.Providers)
	}
	return len(q.Issuers)
}

func (q IDQualifier) MarshalJSON() ([]byte, error) {
	var issuers any
	switch q.Kind {
	case QualifierCred:
		issuers = nonNilUint32(q.Providers)
	case QualifierSCI:
		if q.Issuers == nil {
			issuers = []ContractAddress{}
		} else {
			issuers = q.Issuers
		}
	default:
		return nil, fmt.Errorf("unknown id qualifier type %q", q.Kind)
	}
	return json.Marshal(struct {
		Type    QualifierKind `json:"type"`
		Issuers any           `json:"issuers"`
	}{q.Kind, issuers})
}

func (q *IDQualifier) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    QualifierKind   `json:"type"`
		Issuers json.RawMessage `json:"issuers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	issuers := raw.Issuers
	if len(bytes.TrimSpace(issuers)) == 0 {
		issuers = []byte("[]")
	}
	switch raw.Type {
	case QualifierCred:
		var providers []uint32
		if err := json.Unmarshal(issuers, &providers); err != nil {
			return fmt.Errorf("cred issuers: %w", err)
		}
		*q = IDQualifier{Kind: QualifierCred, Providers: providers}
	case QualifierSCI:
		var contracts []ContractAddress
		if err := json.Unmarshal(issuers, &contracts); err != nil {
			return fmt.Errorf("sci issuers: %w", err)
		}
		*q = IDQualifier{Kind: QualifierSCI, Issuers: contracts}
	default:
		return fmt.Errorf("unknown id qualifier type %q", raw.Type)
	}
	return nil
}

func nonNilUint32(v []uint32) []uint32 {
	if v == nil {
		return []uint32{}
	}
	return v
}

// CredentialStatement is one statement group: an issuer whitelist and the
// ordered atomic statements a single chosen credential must all satisfy.
type CredentialStatement struct {
	IDQualifier IDQualifier      `json:"idQualifier"`
	Statement   AtomicStatements `json:"statement"`
}

// IsAccount reports whether the group draws from account credentials.
func (c CredentialStatement) IsAccount() bool {
	return c.IDQualifier.Kind == QualifierCred
}

// CredentialStatements is the ordered list of groups in one proof request.
// The request holds when every group is answered by one credential.
type CredentialStatements []CredentialStatement
