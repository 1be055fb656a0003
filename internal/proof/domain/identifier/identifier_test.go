package identifier

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"attest/internal/proof/models"
)

const holderKey = "8d1ad3e4b7f1b3a1e8f2b7e0c1d2a3f4b5c6d7e8f9a0b1c2d3e4f5a6b7c8d9e0"

type IdentifierSuite struct {
	suite.Suite
}

func TestIdentifierSuite(t *testing.T) {
	suite.Run(t, new(IdentifierSuite))
}

func (s *IdentifierSuite) TestAccountRoundTrip() {
	for _, network := range []models.Network{models.NetworkMainnet, models.NetworkTestnet} {
		credID := "a5bedc6d92d6cc8333684aa69091095c425d0b5971f554964a6ac8e297a3074748d25268f1d217234c400f3103669f90"
		id := OfCredential(network, models.WalletCredential{CredID: credID})
		s.Equal("did:ccd:"+string(network)+":cred:"+credID, id)

		got, err := ParseAccount(id)
		s.Require().NoError(err)
		s.Equal(Account{Network: network, CredID: credID}, got)
		s.Equal(id, ForAccount(got.Network, got.CredID))
		s.True(IsAccount(id))
	}
}

func (s *IdentifierSuite) TestEntryRoundTrip() {
	contract := models.ContractAddress{Index: 5463, Subindex: 7}
	vc := models.VerifiableCredential{
		Issuer:            ForIssuer(models.NetworkTestnet, contract),
		CredentialSubject: models.CredentialSubject{ID: ForSubject(models.NetworkTestnet, holderKey)},
	}
	id, err := OfVerifiableCredential(vc)
	s.Require().NoError(err)
	s.Equal("did:ccd:testnet:sci:5463:7/credentialEntry/"+holderKey, id)
	s.False(IsAccount(id))

	entry, err := ParseEntry(id)
	s.Require().NoError(err)
	s.Equal(Entry{Network: models.NetworkTestnet, Contract: contract, HolderKey: holderKey}, entry)
	s.Equal(id, ForEntry(entry.Network, entry.Contract, entry.HolderKey))

	issuer, err := ParseIssuer(vc.Issuer)
	s.Require().NoError(err)
	s.Equal(contract, issuer.Contract)
}

func (s *IdentifierSuite) TestIssuerAndProviderRoundTrip() {
	issuer := ForIssuer(models.NetworkMainnet, models.ContractAddress{Index: 1})
	s.Equal("did:ccd:mainnet:sci:1:0/issuer", issuer)
	parsed, err := ParseIssuer(issuer)
	s.Require().NoError(err)
	s.Equal(uint64(1), parsed.Contract.Index)

	idp := ForProvider(models.NetworkTestnet, 17)
	s.Equal("did:ccd:testnet:idp:17", idp)
	network, provider, err := ParseProvider(idp)
	s.Require().NoError(err)
	s.Equal(models.NetworkTestnet, network)
	s.Equal(uint32(17), provider)
}

func (s *IdentifierSuite) TestMalformed() {
	cases := map[string]func(string) error{
		"":                                 func(v string) error { _, err := ParseAccount(v); return err },
		"not-a-did":                        func(v string) error { _, err := ParseAccount(v); return err },
		"did:web:example.com":              func(v string) error { _, err := ParseAccount(v); return err },
		"did:ccd:devnet:cred:aa":           func(v string) error { _, err := ParseAccount(v); return err },
		"did:ccd:Testnet:cred:aa":          func(v string) error { _, err := ParseAccount(v); return err },
		"did:ccd:testnet:cred:xyz":         func(v string) error { _, err := ParseAccount(v); return err },
		"did:ccd:testnet:sci:1:0/issuer":   func(v string) error { _, err := ParseAccount(v); return err },
		"did:ccd:testnet:sci:01:0/issuer":  func(v string) error { _, err := ParseIssuer(v); return err },
		"did:ccd:testnet:sci:1/issuer":     func(v string) error { _, err := ParseIssuer(v); return err },
		"did:ccd:testnet:sci:1:0/issuers":  func(v string) error { _, err := ParseIssuer(v); return err },
		"did:ccd:testnet:sci:1:0":          func(v string) error { _, err := ParseEntry(v); return err },
		"did:ccd:testnet:sci:1:0/credentialEntry/": func(v string) error {
			_, err := ParseEntry(v)
			return err
		},
		"did:ccd:testnet:idp:-1": func(v string) error { _, _, err := ParseProvider(v); return err },
		"did:ccd:testnet:pkc:zz": func(v string) error { _, _, err := ParseSubject(v); return err },
	}
	for input, parse := range cases {
		s.Run(input, func() {
			err := parse(input)
			var pe *ParseError
			s.Require().ErrorAs(err, &pe)
			s.Equal(input, pe.Input)
		})
	}
}

func (s *IdentifierSuite) TestMismatchedSubjectNetwork() {
	_, err := OfVerifiableCredential(models.VerifiableCredential{
		Issuer:            ForIssuer(models.NetworkMainnet, models.ContractAddress{Index: 2}),
		CredentialSubject: models.CredentialSubject{ID: ForSubject(models.NetworkTestnet, holderKey)},
	})
	s.Error(err)
}

func (s *IdentifierSuite) TestNormalizeCredID() {
	got, err := NormalizeCredID(" D00D ")
	s.Require().NoError(err)
	s.Equal("d00d", got)
	s.True(ValidCredID(got))

	account, err := ParseAccount(ForAccount(models.NetworkTestnet, got))
	s.Require().NoError(err)
	s.Equal(got, account.CredID)

	for _, bad := range []string{"", "abc", "zz", "d00d:1"} {
		_, err := NormalizeCredID(bad)
		s.Error(err, bad)
	}
	s.False(ValidCredID("D00D"))
}
