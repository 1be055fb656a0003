package identifier

import "attest/internal/proof/models"

// OfCredential resolves an account credential on network.
func OfCredential(network models.Network, cred models.WalletCredential) string {
	return ForAccount(network, cred.CredID)
}

// OfVerifiableCredential resolves a verifiable credential from its issuer and
// subject identifiers. Network and contract come from the issuer, the holder
// key from the subject.
func OfVerifiableCredential(vc models.VerifiableCredential) (string, error) {
	issuer, err := ParseIssuer(vc.Issuer)
	if err != nil {
		return "", err
	}
	network, key, err := ParseSubject(vc.CredentialSubject.ID)
	if err != nil {
		return "", err
	}
	if network != issuer.Network {
		return "", parseErr(vc.CredentialSubject.ID, "subject network %s differs from issuer network %s", network, issuer.Network)
	}
	return ForEntry(network, issuer.Contract, key), nil
}
