package models

import (
	"cmp"
	"slices"

	"attest/internal/proof/domain/attribute"
)

// IdentityStatus is the lifecycle of an identity object at its provider.
type IdentityStatus string

const (
	IdentityPending   IdentityStatus = "pending"
	IdentityConfirmed IdentityStatus = "confirmed"
	IdentityRejected  IdentityStatus = "rejected"
)

// CredentialStatus is the on-chain status of a verifiable credential.
type CredentialStatus string

const (
	CredentialActive       CredentialStatus = "Active"
	CredentialRevoked      CredentialStatus = "Revoked"
	CredentialExpired      CredentialStatus = "Expired"
	CredentialNotActivated CredentialStatus = "NotActivated"
	CredentialPending      CredentialStatus = "Pending"
)

// IsValid reports whether s is one of the known statuses.
func (s CredentialStatus) IsValid() bool {
	switch s {
	case CredentialActive, CredentialRevoked, CredentialExpired, CredentialNotActivated, CredentialPending:
		return true
	}
	return false
}

// WalletCredential is one on-chain account credential held by the wallet.
type WalletCredential struct {
	Address       string `json:"address"`
	ProviderIndex uint32 `json:"providerIndex"`
	IdentityIndex uint32 `json:"identityIndex"`
	CredID        string `json:"credId"`
	CredNumber    uint32 `json:"credNumber"`
}

// ConfirmedIdentity backs the account credentials sharing its provider and index.
type ConfirmedIdentity struct {
	ProviderIndex uint32         `json:"providerIndex"`
	Index         uint32         `json:"index"`
	Status        IdentityStatus `json:"status"`
	Attributes    attribute.Map  `json:"attributes"`
}

// CredentialSubject is the holder-facing part of a verifiable credential.
type CredentialSubject struct {
	ID         string        `json:"id"`
	Attributes attribute.Map `json:"attributes"`
}

// VerifiableCredential is a Web3 ID credential held by the wallet.
// ID and Issuer are DIDs; Status is the last known value and is never
// trusted for matching, which uses the ledger status fetched per session.
type VerifiableCredential struct {
	ID                string            `json:"id"`
	Issuer            string            `json:"issuer"`
	Index             uint64            `json:"index"`
	Types             []string          `json:"type,omitempty"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
	Randomness        map[string]string `json:"randomness"`
	Signature         string            `json:"signature"`
	Status            CredentialStatus  `json:"status,omitempty"`
}

// Inventory is the wallet content as read from storage.
type Inventory struct {
	Identities            []ConfirmedIdentity    `json:"identities"`
	Credentials           []WalletCredential     `json:"credentials"`
	VerifiableCredentials []VerifiableCredential `json:"verifiableCredentials"`
}

// Snapshot is an immutable, stably ordered copy of an Inventory. Default
// selection picks the first viable credential, so the order is part of the
// contract: account credentials by CredID, verifiable credentials by ID.
type Snapshot struct {
	identities  []ConfirmedIdentity
	credentials []WalletCredential
	vcs         []VerifiableCredential
}

// NewSnapshot copies and sorts inv.
func NewSnapshot(inv Inventory) Snapshot {
	s := Snapshot{
		identities:  slices.Clone(inv.Identities),
		credentials: slices.Clone(inv.Credentials),
		vcs:         slices.Clone(inv.VerifiableCredentials),
	}
	slices.SortStableFunc(s.credentials, func(a, b WalletCredential) int {
		return cmp.Compare(a.CredID, b.CredID)
	})
	slices.SortStableFunc(s.vcs, func(a, b VerifiableCredential) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return s
}

// Credentials returns the account credentials in snapshot order.
func (s Snapshot) Credentials() []WalletCredential { return slices.Clone(s.credentials) }

// VerifiableCredentials returns the verifiable credentials in snapshot order.
func (s Snapshot) VerifiableCredentials() []VerifiableCredential { return slices.Clone(s.vcs) }

// Identity finds the identity owning an account credential.
func (s Snapshot) Identity(provider, index uint32) (ConfirmedIdentity, bool) {
	for _, id := range s.identities {
		if id.ProviderIndex == provider && id.Index == index {
			return id, true
		}
	}
	return ConfirmedIdentity{}, false
}

// Credential finds an account credential by credential id.
func (s Snapshot) Credential(credID string) (WalletCredential, bool) {
	for _, c := range s.credentials {
		if c.CredID == credID {
			return c, true
		}
	}
	return WalletCredential{}, false
}

// VerifiableCredential finds a verifiable credential by its id DID.
func (s Snapshot) VerifiableCredential(id string) (VerifiableCredential, bool) {
	for _, vc := range s.vcs {
		if vc.ID == id {
			return vc, true
		}
	}
	return VerifiableCredential{}, false
}

// Inventory returns a copy of the snapshot contents.
func (s Snapshot) Inventory() Inventory {
	return Inventory{
		Identities:            slices.Clone(s.identities),
		Credentials:           slices.Clone(s.credentials),
		VerifiableCredentials: slices.Clone(s.vcs),
	}
}
