package statement

import (
	"errors"
	"fmt"

	"attest/internal/proof/domain/attribute"
	"attest/internal/proof/models"
)

// Validate checks a request's statement groups before any session is created.
// It reports every problem found, joined, with the group and statement position.
func Validate(groups models.CredentialStatements) error {
	if len(groups) == 0 {
		return errors.New("at least one credential statement is required")
	}
	var errs []error
	for i, group := range groups {
		if err := validateGroup(group); err != nil {
			errs = append(errs, fmt.Errorf("credential statement %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func validateGroup(group models.CredentialStatement) error {
	var errs []error
	if group.IDQualifier.IssuerCount() == 0 {
		errs = append(errs, errors.New("issuer list is empty"))
	}
	if len(group.Statement) == 0 {
		errs = append(errs, errors.New("statement list is empty"))
	}
	seen := make(map[string]struct{}, len(group.Statement))
	for j, stmt := range group.Statement {
		if stmt == nil {
			errs = append(errs, fmt.Errorf("statement %d is empty", j))
			continue
		}
		tag := stmt.Tag()
		if tag == "" {
			errs = append(errs, fmt.Errorf("statement %d: attribute tag is required", j))
			continue
		}
		if _, dup := seen[tag]; dup {
			errs = append(errs, fmt.Errorf("statement %d: attribute %q used more than once", j, tag))
		}
		seen[tag] = struct{}{}
		if group.IsAccount() && !models.IsIdentityTag(tag) {
			errs = append(errs, fmt.Errorf("statement %d: %q is not an identity attribute", j, tag))
		}
		if err := validateStatement(stmt); err != nil {
			errs = append(errs, fmt.Errorf("statement %d: %w", j, err))
		}
	}
	return errors.Join(errs...)
}

func validateStatement(stmt models.AtomicStatement) error {
	switch s := stmt.(type) {
	case models.RevealAttribute:
		return nil
	case models.AttributeInRange:
		c, ok := attribute.Compare(s.Lower, s.Upper)
		if !ok {
			return fmt.Errorf("range bounds on %q are not comparable", s.AttributeTag)
		}
		if c >= 0 {
			return fmt.Errorf("range on %q: lower must be below upper", s.AttributeTag)
		}
		return nil
	case models.AttributeInSet:
		if len(s.Set) == 0 {
			return fmt.Errorf("set on %q is empty", s.AttributeTag)
		}
		return nil
	case models.AttributeNotInSet:
		return nil
	default:
		return unknownType(stmt)
	}
}
