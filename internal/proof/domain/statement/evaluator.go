// Package statement evaluates atomic statements against attribute maps and
// validates statement groups before a proof session is created.
package statement

import (
	"fmt"

	"attest/internal/proof/domain/attribute"
	"attest/internal/proof/models"
)

// Satisfies decides whether attrs satisfy stmt. A missing or incomparable
// attribute is simply not satisfied. The only error is an unrecognized
// statement type, which means the request and this build disagree on the schema.
func Satisfies(stmt models.AtomicStatement, attrs attribute.Map) (bool, error) {
	switch s := stmt.(type) {
	case models.RevealAttribute:
		return attrs.Has(s.AttributeTag), nil
	case models.AttributeInRange:
		v, ok := attrs.Get(s.AttributeTag)
		if !ok {
			return false, nil
		}
		return inRange(v, s.Lower, s.Upper), nil
	case models.AttributeInSet:
		v, ok := attrs.Get(s.AttributeTag)
		if !ok {
			return false, nil
		}
		return member(v, s.Set), nil
	case models.AttributeNotInSet:
		v, ok := attrs.Get(s.AttributeTag)
		if !ok {
			return false, nil
		}
		return !member(v, s.Set), nil
	default:
		return false, unknownType(stmt)
	}
}

// SatisfiesAll reports whether attrs satisfy every statement in stmts.
func SatisfiesAll(stmts []models.AtomicStatement, attrs attribute.Map) (bool, error) {
	for _, stmt := range stmts {
		ok, err := Satisfies(stmt, attrs)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// inRange is the half-open interval lower <= v < upper.
func inRange(v, lower, upper attribute.Value) bool {
	lo, ok := attribute.Compare(lower, v)
	if !ok || lo > 0 {
		return false
	}
	hi, ok := attribute.Compare(v, upper)
	return ok && hi < 0
}

func member(v attribute.Value, set []attribute.Value) bool {
	for _, candidate := range set {
		if attribute.Equal(v, candidate) {
			return true
		}
	}
	return false
}

func unknownType(stmt models.AtomicStatement) error {
	if stmt == nil {
		return &models.UnknownStatementTypeError{}
	}
	return fmt.Errorf("evaluate %q: %w", stmt.Tag(), &models.UnknownStatementTypeError{Type: stmt.Type()})
}
