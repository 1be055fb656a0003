package models

import (
	"encoding/json"

	"attest/internal/proof/domain/attribute"
)

// RequestStatement is one answered group in the request sent to the prover:
// the group's statements plus the identifier of the chosen credential.
type RequestStatement struct {
	Statement AtomicStatements `json:"statement"`
	ID        string           `json:"id"`
	Type      []string         `json:"type,omitempty"`
}

// ProofRequest is the assembled request handed to the proving routine.
type ProofRequest struct {
	Challenge            string             `json:"challenge"`
	CredentialStatements []RequestStatement `json:"credentialStatements"`
}

// CommitmentInputKind discriminates commitment inputs.
type CommitmentInputKind string

const (
	CommitmentAccount    CommitmentInputKind = "account"
	CommitmentWeb3Issuer CommitmentInputKind = "web3Issuer"
)

// CommitmentInput is produced by the key-derivation service. Payload is opaque.
type CommitmentInput struct {
	Type    CommitmentInputKind `json:"type"`
	Payload json.RawMessage     `json:"payload"`
}

// GlobalContext is the network-scoped cryptographic parameters blob.
type GlobalContext struct {
	Network Network         `json:"network"`
	Value   json.RawMessage `json:"value"`
}

// AccountInputParams are handed to key derivation for an account credential.
type AccountInputParams struct {
	ProviderIndex uint32           `json:"providerIndex"`
	IdentityIndex uint32           `json:"identityIndex"`
	CredNumber    uint32           `json:"credNumber"`
	Attributes    attribute.Map    `json:"attributes"`
	Statements    AtomicStatements `json:"statements"`
}

// Web3InputParams are handed to key derivation for a verifiable credential.
type Web3InputParams struct {
	Issuer     ContractAddress   `json:"issuer"`
	Index      uint64            `json:"index"`
	Subject    CredentialSubject `json:"credentialSubject"`
	Randomness map[string]string `json:"randomness"`
	Signature  string            `json:"signature"`
}

// DerivationParams carries exactly one of Account or Web3, matching Kind.
type DerivationParams struct {
	Kind    CommitmentInputKind `json:"type"`
	Account *AccountInputParams `json:"account,omitempty"`
	Web3    *Web3InputParams    `json:"web3,omitempty"`
}

// Outcome is delivered once per session when it ends.
type Outcome struct {
	SessionID string `json:"sessionId"`
	WalletID  string `json:"walletId"`
	Submitted bool   `json:"submitted"`
	Proof     string `json:"proof,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
