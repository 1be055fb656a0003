package models

import (
	"encoding/json"
	"fmt"

	"attest/internal/proof/domain/attribute"
)

// StatementType discriminates atomic statements on the wire.
type StatementType string

const (
	StatementRevealAttribute   StatementType = "RevealAttribute"
	StatementAttributeInRange  StatementType = "AttributeInRange"
	StatementAttributeInSet    StatementType = "AttributeInSet"
	StatementAttributeNotInSet StatementType = "AttributeNotInSet"
)

// AtomicStatement is one predicate over a single credential attribute.
// The set of implementations is closed: RevealAttribute, AttributeInRange,
// AttributeInSet and AttributeNotInSet.
type AtomicStatement interface {
	Type() StatementType
	Tag() string
	atomicStatement()
}

// RevealAttribute discloses the attribute value itself.
type RevealAttribute struct {
	AttributeTag string
}

// AttributeInRange holds when Lower <= value < Upper.
type AttributeInRange struct {
	AttributeTag string
	Lower        attribute.Value
	Upper        attribute.Value
}

// AttributeInSet holds when the value is a member of Set.
type AttributeInSet struct {
	AttributeTag string
	Set          []attribute.Value
}

// AttributeNotInSet holds when the value is present and not a member of Set.
type AttributeNotInSet struct {
	AttributeTag string
	Set          []attribute.Value
}

func (RevealAttribute) Type() StatementType   { return StatementRevealAttribute }
func (AttributeInRange) Type() StatementType  { return StatementAttributeInRange }
func (AttributeInSet) Type() StatementType    { return StatementAttributeInSet }
func (AttributeNotInSet) Type() StatementType { return StatementAttributeNotInSet }

func (s RevealAttribute) Tag() string   { return s.AttributeTag }
func (s AttributeInRange) Tag() string  { return s.AttributeTag }
func (s AttributeInSet) Tag() string    { return s.AttributeTag }
func (s AttributeNotInSet) Tag() string { return s.AttributeTag }

func (RevealAttribute) atomicStatement()   {}
func (AttributeInRange) atomicStatement()  {}
func (AttributeInSet) atomicStatement()    {}
func (AttributeNotInSet) atomicStatement() {}

// statementJSON is the union of all wire fields.
type statementJSON struct {
	Type         StatementType     `json:"type"`
	AttributeTag string            `json:"attributeTag"`
	Lower        *attribute.Value  `json:"lower,omitempty"`
	Upper        *attribute.Value  `json:"upper,omitempty"`
	Set          []attribute.Value `json:"set,omitempty"`
}

func (s RevealAttribute) MarshalJSON() ([]byte, error) {
	return json.Marshal(statementJSON{Type: s.Type(), AttributeTag: s.AttributeTag})
}

func (s AttributeInRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(statementJSON{Type: s.Type(), AttributeTag: s.AttributeTag, Lower: &s.Lower, Upper: &s.Upper})
}

func (s AttributeInSet) MarshalJSON() ([]byte, error) {
	return marshalSet(s.Type(), s.AttributeTag, s.Set)
}

func (s AttributeNotInSet) MarshalJSON() ([]byte, error) {
	return marshalSet(s.Type(), s.AttributeTag, s.Set)
}

// marshalSet always emits "set", including when it is empty.
func marshalSet(t StatementType, tag string, set []attribute.Value) ([]byte, error) {
	if set == nil {
		set = []attribute.Value{}
	}
	return json.Marshal(struct {
		Type         StatementType     `json:"type"`
		AttributeTag string            `json:"attributeTag"`
		Set          []attribute.Value `json:"set"`
	}{t, tag, set})
}

// UnknownStatementTypeError reports a statement type this build does not know.
type UnknownStatementTypeError struct {
	Type StatementType
}

func (e *UnknownStatementTypeError) Error() string {
	return fmt.Sprintf("unknown statement type %q", e.Type)
}

// DecodeAtomicStatement decodes a statement by its "type" discriminator.
func DecodeAtomicStatement(data []byte) (AtomicStatement, error) {
	var raw statementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	switch raw.Type {
	case StatementRevealAttribute:
		return RevealAttribute{AttributeTag: raw.AttributeTag}, nil
	case StatementAttributeInRange:
		if raw.Lower == nil || raw.Upper == nil {
			return nil, fmt.Errorf("statement on %q: range requires lower and upper", raw.AttributeTag)
		}
		return AttributeInRange{AttributeTag: raw.AttributeTag, Lower: *raw.Lower, Upper: *raw.Upper}, nil
	case StatementAttributeInSet:
		return AttributeInSet{AttributeTag: raw.AttributeTag, Set: raw.Set}, nil
	case StatementAttributeNotInSet:
		return AttributeNotInSet{AttributeTag: raw.AttributeTag, Set: raw.Set}, nil
	default:
		return nil, &UnknownStatementTypeError{Type: raw.Type}
	}
}

// AtomicStatements is an ordered list of atomic statements with JSON support.
type AtomicStatements []AtomicStatement

func (l *AtomicStatements) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(AtomicStatements, 0, len(raws))
	for i, raw := range raws {
		stmt, err := DecodeAtomicStatement(raw)
		if err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
		out = append(out, stmt)
	}
	*l = out
	return nil
}
