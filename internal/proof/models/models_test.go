package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	"attest/internal/proof/domain/attribute"
)

type ModelsSuite struct {
	suite.Suite
}

func TestModelsSuite(t *testing.T) {
	suite.Run(t, new(ModelsSuite))
}

func (s *ModelsSuite) TestDecodeCredentialStatements() {
	s.Run("account group", func() {
		var stmts CredentialStatements
		err := json.Unmarshal([]byte(`[{
			"idQualifier": {"type": "cred", "issuers": [0, 1]},
			"statement": [
				{"type": "RevealAttribute", "attributeTag": "firstName"},
				{"type": "AttributeInRange", "attributeTag": "dob", "lower": "19800101", "upper": "20061231"}
			]
		}]`), &stmts)
		s.Require().NoError(err)
		s.Require().Len(stmts, 1)
		s.True(stmts[0].IsAccount())
		s.Equal([]uint32{0, 1}, stmts[0].IDQualifier.Providers)
		s.Require().Len(stmts[0].Statement, 2)
		s.Equal(RevealAttribute{AttributeTag: "firstName"}, stmts[0].Statement[0])
		rng, ok := stmts[0].Statement[1].(AttributeInRange)
		s.Require().True(ok)
		s.Equal("19800101", rng.Lower.String())
	})

	s.Run("web3 group", func() {
		var stmts CredentialStatements
		err := json.Unmarshal([]byte(`[{
			"idQualifier": {"type": "sci", "issuers": [{"index": 5463, "subindex": 0}]},
			"statement": [{"type": "AttributeInSet", "attributeTag": "degree", "set": [1, "2", 3]}]
		}]`), &stmts)
		s.Require().NoError(err)
		s.False(stmts[0].IsAccount())
		s.True(stmts[0].IDQualifier.AllowsIssuer(ContractAddress{Index: 5463}))
		s.False(stmts[0].IDQualifier.AllowsIssuer(ContractAddress{Index: 5463, Subindex: 1}))
		set := stmts[0].Statement[0].(AttributeInSet).Set
		s.Equal(attribute.KindInteger, set[0].Kind())
		s.Equal(attribute.KindString, set[1].Kind())
	})

	s.Run("unknown statement type", func() {
		var stmts CredentialStatements
		err := json.Unmarshal([]byte(`[{"idQualifier":{"type":"cred","issuers":[0]},"statement":[{"type":"AttributeLike","attributeTag":"x"}]}]`), &stmts)
		var unknown *UnknownStatementTypeError
		s.ErrorAs(err, &unknown)
		s.Equal(StatementType("AttributeLike"), unknown.Type)
	})

	s.Run("range without bounds", func() {
		_, err := DecodeAtomicStatement([]byte(`{"type":"AttributeInRange","attributeTag":"dob","lower":"1"}`))
		s.Error(err)
	})

	s.Run("unknown qualifier", func() {
		var q IDQualifier
		s.Error(json.Unmarshal([]byte(`{"type":"idp","issuers":[0]}`), &q))
	})
}

func (s *ModelsSuite) TestEncodeStatements() {
	stmts := CredentialStatements{{
		IDQualifier: IDQualifier{Kind: QualifierCred, Providers: []uint32{3}},
		Statement: AtomicStatements{
			AttributeNotInSet{AttributeTag: "nationality"},
			AttributeInRange{AttributeTag: "age", Lower: attribute.Int64(18), Upper: attribute.Int64(65)},
		},
	}}
	out, err := json.Marshal(stmts)
	s.Require().NoError(err)
	s.JSONEq(`[{
		"idQualifier": {"type": "cred", "issuers": [3]},
		"statement": [
			{"type": "AttributeNotInSet", "attributeTag": "nationality", "set": []},
			{"type": "AttributeInRange", "attributeTag": "age", "lower": 18, "upper": 65}
		]
	}]`, string(out))
}

func (s *ModelsSuite) TestSnapshotOrdering() {
	inv := Inventory{
		Credentials: []WalletCredential{{CredID: "bb"}, {CredID: "aa"}},
		VerifiableCredentials: []VerifiableCredential{
			{ID: "did:ccd:testnet:sci:1:0/credentialEntry/02"},
			{ID: "did:ccd:testnet:sci:1:0/credentialEntry/01"},
		},
	}
	snap := NewSnapshot(inv)
	s.Equal("aa", snap.Credentials()[0].CredID)
	s.Equal("did:ccd:testnet:sci:1:0/credentialEntry/01", snap.VerifiableCredentials()[0].ID)

	inv.Credentials[0].CredID = "mutated"
	_, ok := snap.Credential("bb")
	s.True(ok, "snapshot must not alias the source inventory")
}

func (s *ModelsSuite) TestParseNetwork() {
	n, err := ParseNetwork(" Testnet ")
	s.Require().NoError(err)
	s.Equal(NetworkTestnet, n)
	_, err = ParseNetwork("devnet")
	s.Error(err)
}
