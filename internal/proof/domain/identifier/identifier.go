// Package identifier maps credentials to their canonical DID strings and back.
//
//	account credential     did:ccd:<net>:cred:<credId>
//	verifiable credential  did:ccd:<net>:sci:<index>:<subindex>/credentialEntry/<holder key>
//	credential issuer      did:ccd:<net>:sci:<index>:<subindex>/issuer
//	identity provider      did:ccd:<net>:idp:<index>
//	credential subject     did:ccd:<net>:pkc:<holder key>
//
// Every string built here parses back to the same components, and every
// parser rejects anything it would not have built itself.
package identifier

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/iden3/go-iden3-core/v2/w3c"

	"attest/internal/proof/models"
)

const (
	method = "ccd"
	prefix = "did:" + method + ":"

	kindCred = "cred"
	kindSCI  = "sci"
	kindIDP  = "idp"
	kindPKC  = "pkc"

	pathCredentialEntry = "/credentialEntry/"
	pathIssuer          = "/issuer"
)

// ParseError reports a malformed identifier.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed identifier %q: %s", e.Input, e.Reason)
}

func parseErr(input, format string, args ...any) error {
	return &ParseError{Input: input, Reason: fmt.Sprintf(format, args...)}
}

// Account is the decoded form of an account credential identifier.
type Account struct {
	Network models.Network
	CredID  string
}

// Entry is the decoded form of a verifiable credential identifier.
type Entry struct {
	Network   models.Network
	Contract  models.ContractAddress
	HolderKey string
}

// Issuer is the decoded form of a registry issuer identifier.
type Issuer struct {
	Network  models.Network
	Contract models.ContractAddress
}

// ForAccount builds the identifier of an account credential.
func ForAccount(network models.Network, credID string) string {
	return prefix + network.String() + ":" + kindCred + ":" + credID
}

// ForEntry builds the identifier of a verifiable credential.
func ForEntry(network models.Network, contract models.ContractAddress, holderKey string) string {
	return contractDID(network, contract) + pathCredentialEntry + holderKey
}

// ForIssuer builds the identifier of a registry contract acting as issuer.
func ForIssuer(network models.Network, contract models.ContractAddress) string {
	return contractDID(network, contract) + pathIssuer
}

// ForProvider builds the identifier of an identity provider.
func ForProvider(network models.Network, provider uint32) string {
	return prefix + network.String() + ":" + kindIDP + ":" + strconv.FormatUint(uint64(provider), 10)
}

// ForSubject builds the subject identifier of a credential holder key.
func ForSubject(network models.Network, holderKey string) string {
	return prefix + network.String() + ":" + kindPKC + ":" + holderKey
}

func contractDID(network models.Network, contract models.ContractAddress) string {
	return fmt.Sprintf("%s%s:%s:%d:%d", prefix, network, kindSCI, contract.Index, contract.Subindex)
}

// split validates the generic DID syntax and the ccd method, then returns the
// network, the kind and the remaining method-specific parts (path included).
func split(s string) (models.Network, string, string, error) {
	if _, err := w3c.ParseDID(s); err != nil {
		return "", "", "", parseErr(s, "not a DID: %v", err)
	}
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return "", "", "", parseErr(s, "method is not %s", method)
	}
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return "", "", "", parseErr(s, "missing network or kind")
	}
	network, err := models.ParseNetwork(parts[0])
	if err != nil || network.String() != parts[0] {
		return "", "", "", parseErr(s, "unknown network %q", parts[0])
	}
	return network, parts[1], parts[2], nil
}

// ParseAccount extracts network and credential id from an account identifier.
func ParseAccount(s string) (Account, error) {
	network, kind, rest, err := split(s)
	if err != nil {
		return Account{}, err
	}
	if kind != kindCred {
		return Account{}, parseErr(s, "expected %s identifier, got %s", kindCred, kind)
	}
	if !isHex(rest) {
		return Account{}, parseErr(s, "credential id must be hex")
	}
	return Account{Network: network, CredID: rest}, nil
}

// ParseEntry extracts network, contract and holder key from a verifiable credential identifier.
func ParseEntry(s string) (Entry, error) {
	network, contract, path, err := splitContract(s)
	if err != nil {
		return Entry{}, err
	}
	key, ok := strings.CutPrefix(path, pathCredentialEntry)
	if !ok || !isHex(key) {
		return Entry{}, parseErr(s, "expected %s<hex key>", pathCredentialEntry)
	}
	return Entry{Network: network, Contract: contract, HolderKey: key}, nil
}

// ParseIssuer extracts network and contract from an issuer identifier.
func ParseIssuer(s string) (Issuer, error) {
	network, contract, path, err := splitContract(s)
	if err != nil {
		return Issuer{}, err
	}
	if path != pathIssuer {
		return Issuer{}, parseErr(s, "expected %s path", pathIssuer)
	}
	return Issuer{Network: network, Contract: contract}, nil
}

// ParseProvider extracts network and provider index from an identity provider identifier.
func ParseProvider(s string) (models.Network, uint32, error) {
	network, kind, rest, err := split(s)
	if err != nil {
		return "", 0, err
	}
	if kind != kindIDP {
		return "", 0, parseErr(s, "expected %s identifier, got %s", kindIDP, kind)
	}
	n, err := parseCanonicalUint(rest, 32)
	if err != nil {
		return "", 0, parseErr(s, "provider index: %v", err)
	}
	return network, uint32(n), nil
}

// ParseSubject extracts network and holder key from a subject identifier.
func ParseSubject(s string) (models.Network, string, error) {
	network, kind, rest, err := split(s)
	if err != nil {
		return "", "", err
	}
	if kind != kindPKC {
		return "", "", parseErr(s, "expected %s identifier, got %s", kindPKC, kind)
	}
	if !isHex(rest) {
		return "", "", parseErr(s, "holder key must be hex")
	}
	return network, rest, nil
}

// IsAccount reports whether s has the account credential shape, without
// validating it.
func IsAccount(s string) bool {
	_, kind, _, err := split(s)
	return err == nil && kind == kindCred
}

func splitContract(s string) (models.Network, models.ContractAddress, string, error) {
	network, kind, rest, err := split(s)
	if err != nil {
		return "", models.ContractAddress{}, "", err
	}
	if kind != kindSCI {
		return "", models.ContractAddress{}, "", parseErr(s, "expected %s identifier, got %s", kindSCI, kind)
	}
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return "", models.ContractAddress{}, "", parseErr(s, "missing path")
	}
	indexPart, subPart, ok := strings.Cut(rest[:slash], ":")
	if !ok {
		return "", models.ContractAddress{}, "", parseErr(s, "contract address needs index and subindex")
	}
	index, err := parseCanonicalUint(indexPart, 64)
	if err != nil {
		return "", models.ContractAddress{}, "", parseErr(s, "contract index: %v", err)
	}
	sub, err := parseCanonicalUint(subPart, 64)
	if err != nil {
		return "", models.ContractAddress{}, "", parseErr(s, "contract subindex: %v", err)
	}
	return network, models.ContractAddress{Index: index, Subindex: sub}, rest[slash:], nil
}

// parseCanonicalUint rejects leading zeros and signs so that parse and format
// stay inverse to each other.
func parseCanonicalUint(s string, bits int) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, err
	}
	if strconv.FormatUint(n, 10) != s {
		return 0, fmt.Errorf("%q is not canonical", s)
	}
	return n, nil
}

// NormalizeCredID lowercases an account credential id and rejects anything
// ForAccount could not round-trip through ParseAccount.
func NormalizeCredID(credID string) (string, error) {
	norm := strings.ToLower(strings.TrimSpace(credID))
	if !isHex(norm) {
		return "", fmt.Errorf("credential id %q must be non-empty hex of even length", credID)
	}
	return norm, nil
}

// ValidCredID reports whether credID is already in normalized form.
func ValidCredID(credID string) bool {
	return isHex(credID)
}

// isHex accepts non-empty lowercase hex of even length.
func isHex(s string) bool {
	if s == "" || s != strings.ToLower(s) {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
