// Package matcher finds, per statement group, the wallet credentials that are
// both issuer-eligible and satisfy every statement of the group.
package matcher

import (
	"fmt"
	"slices"

	"attest/internal/proof/domain/attribute"
	"attest/internal/proof/domain/identifier"
	"attest/internal/proof/domain/statement"
	"attest/internal/proof/models"
)

// Statuses maps verifiable credential ids to their ledger status for one session.
type Statuses map[string]models.CredentialStatus

// Candidate is one viable credential for a group.
type Candidate struct {
	ID         string
	Kind       models.QualifierKind
	Issuer     string
	Attributes attribute.Map

	// Exactly one of Account or Web3 is set, matching Kind.
	Account *models.WalletCredential
	Web3    *models.VerifiableCredential
}

// Diagnostics distinguishes the two reasons a group can be unsatisfiable.
type Diagnostics struct {
	// IssuerEligible counts usable credentials from a whitelisted issuer:
	// active verifiable credentials, or account credentials backed by a
	// confirmed identity.
	IssuerEligible int `json:"issuerEligible"`
	Satisfying     int `json:"satisfying"`
}

func (d Diagnostics) HasIssuerEligible() bool { return d.IssuerEligible > 0 }
func (d Diagnostics) HasSatisfying() bool     { return d.Satisfying > 0 }

// Result is the outcome of matching one group.
type Result struct {
	Candidates  []Candidate
	Diagnostics Diagnostics
	// Malformed lists the wallet records skipped because their identifiers
	// do not parse. They never count as eligible.
	Malformed []string
}

// Viable reports whether the group can be answered.
func (r Result) Viable() bool { return len(r.Candidates) > 0 }

// Find returns the candidate with identifier id.
func (r Result) Find(id string) (Candidate, bool) {
	for _, c := range r.Candidates {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

// ViableCredentials matches one group against the snapshot. Candidate order is
// snapshot order, so the first candidate is the default selection. A verifiable
// credential without an Active entry in statuses, or issued on another
// network, is never offered.
func ViableCredentials(network models.Network, group models.CredentialStatement, snap models.Snapshot, statuses Statuses) (Result, error) {
	switch group.IDQualifier.Kind {
	case models.QualifierCred:
		return matchAccounts(network, group, snap)
	case models.QualifierSCI:
		return matchWeb3(network, group, snap, statuses)
	default:
		return Result{}, fmt.Errorf("unknown id qualifier type %q", group.IDQualifier.Kind)
	}
}

// Match runs ViableCredentials for every group.
func Match(network models.Network, groups models.CredentialStatements, snap models.Snapshot, statuses Statuses) ([]Result, error) {
	results := make([]Result, len(groups))
	for i, group := range groups {
		r, err := ViableCredentials(network, group, snap, statuses)
		if err != nil {
			return nil, fmt.Errorf("credential statement %d: %w", i, err)
		}
		results[i] = r
	}
	return results, nil
}

func matchAccounts(network models.Network, group models.CredentialStatement, snap models.Snapshot) (Result, error) {
	var res Result
	for _, cred := range snap.Credentials() {
		if !group.IDQualifier.AllowsProvider(cred.ProviderIndex) {
			continue
		}
		if !identifier.ValidCredID(cred.CredID) {
			res.Malformed = append(res.Malformed, cred.CredID)
			continue
		}
		identity, ok := snap.Identity(cred.ProviderIndex, cred.IdentityIndex)
		if !ok || identity.Status != models.IdentityConfirmed {
			continue
		}
		res.Diagnostics.IssuerEligible++
		ok, err := statement.SatisfiesAll(group.Statement, identity.Attributes)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}
		res.Diagnostics.Satisfying++
		c := cred
		res.Candidates = append(res.Candidates, Candidate{
			ID:         identifier.OfCredential(network, cred),
			Kind:       models.QualifierCred,
			Issuer:     identifier.ForProvider(network, cred.ProviderIndex),
			Attributes: identity.Attributes,
			Account:    &c,
		})
	}
	return res, nil
}

func matchWeb3(network models.Network, group models.CredentialStatement, snap models.Snapshot, statuses Statuses) (Result, error) {
	var res Result
	for _, vc := range snap.VerifiableCredentials() {
		issuer, err := identifier.ParseIssuer(vc.Issuer)
		if err != nil {
			res.Malformed = append(res.Malformed, vc.ID)
			continue
		}
		if issuer.Network != network || !group.IDQualifier.AllowsIssuer(issuer.Contract) {
			continue
		}
		id, err := identifier.OfVerifiableCredential(vc)
		if err != nil {
			res.Malformed = append(res.Malformed, vc.ID)
			continue
		}
		if statuses[vc.ID] != models.CredentialActive {
			continue
		}
		res.Diagnostics.IssuerEligible++
		ok, err := statement.SatisfiesAll(group.Statement, vc.CredentialSubject.Attributes)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}
		res.Diagnostics.Satisfying++
		c := vc
		res.Candidates = append(res.Candidates, Candidate{
			ID:         id,
			Kind:       models.QualifierSCI,
			Issuer:     vc.Issuer,
			Attributes: vc.CredentialSubject.Attributes,
			Web3:       &c,
		})
	}
	return res, nil
}

// ReferencedCredentials returns the ids of every verifiable credential on
// network whose issuer is whitelisted by at least one group, each id once, in
// snapshot order. It is the batch for the single per-session status fetch.
// Credentials with unparseable identifiers are left out; the matcher reports
// them.
func ReferencedCredentials(network models.Network, groups models.CredentialStatements, snap models.Snapshot) []string {
	var ids []string
	if !slices.ContainsFunc(groups, func(g models.CredentialStatement) bool { return !g.IsAccount() }) {
		return nil
	}
	for _, vc := range snap.VerifiableCredentials() {
		issuer, err := identifier.ParseIssuer(vc.Issuer)
		if err != nil || issuer.Network != network {
			continue
		}
		if _, err := identifier.OfVerifiableCredential(vc); err != nil {
			continue
		}
		for _, group := range groups {
			if group.IDQualifier.AllowsIssuer(issuer.Contract) {
				ids = append(ids, vc.ID)
				break
			}
		}
	}
	return ids
}
