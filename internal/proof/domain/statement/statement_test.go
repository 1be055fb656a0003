package statement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/proof/domain/attribute"
	"attest/internal/proof/models"
)

type EvaluatorSuite struct {
	suite.Suite
}

func TestEvaluatorSuite(t *testing.T) {
	suite.Run(t, new(EvaluatorSuite))
}

func (s *EvaluatorSuite) satisfied(stmt models.AtomicStatement, attrs attribute.Map) bool {
	ok, err := Satisfies(stmt, attrs)
	s.Require().NoError(err)
	return ok
}

func ints(values ...int64) []attribute.Value {
	out := make([]attribute.Value, 0, len(values))
	for _, v := range values {
		out = append(out, attribute.Int64(v))
	}
	return out
}

func (s *EvaluatorSuite) TestReveal() {
	stmt := models.RevealAttribute{AttributeTag: "firstName"}
	s.True(s.satisfied(stmt, attribute.Strings(map[string]string{"firstName": "John"})))
	s.False(s.satisfied(stmt, attribute.Strings(map[string]string{"lastName": "Doe"})))
	s.False(s.satisfied(stmt, nil))
}

func (s *EvaluatorSuite) TestRangeIsHalfOpen() {
	stmt := models.AttributeInRange{AttributeTag: "age", Lower: attribute.Int64(10), Upper: attribute.Int64(20)}
	for v, want := range map[int64]bool{9: false, 10: true, 15: true, 19: true, 20: false} {
		s.Equal(want, s.satisfied(stmt, attribute.Map{"age": attribute.Int64(v)}), "value %d", v)
	}
	s.False(s.satisfied(stmt, attribute.Map{}), "missing attribute")
	s.False(s.satisfied(stmt, attribute.Map{"age": attribute.String("ten")}), "incomparable attribute")
}

func (s *EvaluatorSuite) TestDateOfBirthRange() {
	stmt := models.AttributeInRange{
		AttributeTag: "dob",
		Lower:        attribute.String("19800101"),
		Upper:        attribute.String("20061231"),
	}
	s.True(s.satisfied(stmt, attribute.Strings(map[string]string{"dob": "19990101"})))
	s.False(s.satisfied(stmt, attribute.Strings(map[string]string{"dob": "20100101"})))
}

func (s *EvaluatorSuite) TestSetMembership() {
	in := models.AttributeInSet{AttributeTag: "n", Set: ints(1, 2, 3)}
	notIn := models.AttributeNotInSet{AttributeTag: "n", Set: ints(1, 2, 3)}

	s.True(s.satisfied(in, attribute.Map{"n": attribute.Int64(2)}))
	s.False(s.satisfied(in, attribute.Map{"n": attribute.Int64(4)}))

	for _, v := range []int64{0, 1, 2, 3, 4} {
		attrs := attribute.Map{"n": attribute.Int64(v)}
		s.NotEqual(s.satisfied(in, attrs), s.satisfied(notIn, attrs), "complement for %d", v)
	}

	s.Run("numeric attribute matches string member", func() {
		set := models.AttributeInSet{AttributeTag: "n", Set: []attribute.Value{attribute.String("2")}}
		s.True(s.satisfied(set, attribute.Map{"n": attribute.Int64(2)}))
	})

	s.Run("empty not-in set holds for any present value", func() {
		empty := models.AttributeNotInSet{AttributeTag: "n"}
		s.True(s.satisfied(empty, attribute.Map{"n": attribute.String("anything")}))
		s.False(s.satisfied(empty, attribute.Map{}))
	})

	s.Run("absent attribute satisfies neither", func() {
		s.False(s.satisfied(in, attribute.Map{}))
		s.False(s.satisfied(notIn, attribute.Map{}))
	})
}

func (s *EvaluatorSuite) TestDeterministic() {
	stmt := models.AttributeInSet{AttributeTag: "nationality", Set: []attribute.Value{attribute.String("DK")}}
	attrs := attribute.Strings(map[string]string{"nationality": "DK"})
	first := s.satisfied(stmt, attrs)
	for range 10 {
		s.Equal(first, s.satisfied(stmt, attrs))
	}
	s.Equal("DK", attrs["nationality"].String())
}

func (s *EvaluatorSuite) TestNilStatement() {
	_, err := Satisfies(nil, attribute.Map{})
	var unknown *models.UnknownStatementTypeError
	s.ErrorAs(err, &unknown)
}

func (s *EvaluatorSuite) TestSatisfiesAll() {
	stmts := []models.AtomicStatement{
		models.RevealAttribute{AttributeTag: "firstName"},
		models.AttributeInSet{AttributeTag: "nationality", Set: []attribute.Value{attribute.String("DK")}},
	}
	ok, err := SatisfiesAll(stmts, attribute.Strings(map[string]string{"firstName": "A", "nationality": "DK"}))
	s.Require().NoError(err)
	s.True(ok)

	ok, err = SatisfiesAll(stmts, attribute.Strings(map[string]string{"firstName": "A", "nationality": "DE"}))
	s.Require().NoError(err)
	s.False(ok)
}

type ValidateSuite struct {
	suite.Suite
}

func TestValidateSuite(t *testing.T) {
	suite.Run(t, new(ValidateSuite))
}

func accountGroup(stmts ...models.AtomicStatement) models.CredentialStatement {
	return models.CredentialStatement{
		IDQualifier: models.IDQualifier{Kind: models.QualifierCred, Providers: []uint32{0}},
		Statement:   stmts,
	}
}

func (s *ValidateSuite) TestValid() {
	err := Validate(models.CredentialStatements{
		accountGroup(models.RevealAttribute{AttributeTag: "firstName"}, AgeAtLeast(18, time.Now())),
		{
			IDQualifier: models.IDQualifier{Kind: models.QualifierSCI, Issuers: []models.ContractAddress{{Index: 1}}},
			Statement:   models.AtomicStatements{models.AttributeInSet{AttributeTag: "degree", Set: []attribute.Value{attribute.String("BSc")}}},
		},
	})
	s.NoError(err)
}

func (s *ValidateSuite) TestRejects() {
	cases := []struct {
		name   string
		groups models.CredentialStatements
		msg    string
	}{
		{"no groups", nil, "at least one"},
		{"no issuers", models.CredentialStatements{{
			IDQualifier: models.IDQualifier{Kind: models.QualifierCred},
			Statement:   models.AtomicStatements{models.RevealAttribute{AttributeTag: "firstName"}},
		}}, "issuer list is empty"},
		{"no statements", models.CredentialStatements{accountGroup()}, "statement list is empty"},
		{"duplicate tag", models.CredentialStatements{accountGroup(
			models.RevealAttribute{AttributeTag: "firstName"},
			models.RevealAttribute{AttributeTag: "firstName"},
		)}, "used more than once"},
		{"unknown identity tag", models.CredentialStatements{accountGroup(models.RevealAttribute{AttributeTag: "shoeSize"})}, "not an identity attribute"},
		{"inverted range", models.CredentialStatements{accountGroup(models.AttributeInRange{
			AttributeTag: "dob", Lower: attribute.String("20000101"), Upper: attribute.String("19900101"),
		})}, "lower must be below upper"},
		{"empty in-set", models.CredentialStatements{accountGroup(models.AttributeInSet{AttributeTag: "nationality"})}, "is empty"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			err := Validate(tc.groups)
			s.Require().Error(err)
			s.Contains(err.Error(), tc.msg)
		})
	}
}

func (s *ValidateSuite) TestAgeHelpers() {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	dob := func(v string) attribute.Map { return attribute.Strings(map[string]string{"dob": v}) }
	check := func(stmt models.AttributeInRange, v string) bool {
		ok, err := Satisfies(stmt, dob(v))
		s.Require().NoError(err)
		return ok
	}

	adult := AgeAtLeast(18, now)
	s.True(check(adult, "20060615"), "eighteenth birthday today")
	s.False(check(adult, "20060616"), "eighteenth birthday tomorrow")

	minor := AgeBelow(18, now)
	s.False(check(minor, "20060615"))
	s.True(check(minor, "20060616"))

	between := AgeBetween(18, 30, now)
	s.True(check(between, "19930616"), "thirty")
	s.False(check(between, "19930615"), "thirty-one today")
	s.True(check(between, "20060615"))
	s.False(check(between, "20060616"))
}

func (s *ValidateSuite) TestSplit() {
	stmts := []models.AtomicStatement{
		models.RevealAttribute{AttributeTag: "firstName"},
		AgeAtLeast(18, time.Now()),
		models.RevealAttribute{AttributeTag: "lastName"},
	}
	revealed, secret := Split(stmts)
	s.Len(revealed, 2)
	s.Len(secret, 1)
	s.Equal([]string{"firstName", "lastName"}, RevealedTags(stmts))
}
