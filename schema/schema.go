// Package schema defines the fixed two-field document shape of a lexgo index
// and validates it against persisted metadata on reopen.
package schema

import (
	"fmt"
)

// Canonical field names. The schema is fixed at index creation time and is
// not user-configurable.
const (
	FieldID   = "id"
	FieldText = "text"
)

// Field describes the indexing traits of a single field.
type Field struct {
	Name string `json:"name"`

	// Tokenized fields are split into terms for full-text matching.
	Tokenized bool `json:"tokenized"`

	// Stored fields are retrievable verbatim from the segment.
	Stored bool `json:"stored"`

	// Exact fields are indexed for exact-match lookup (point lookup,
	// delete-by-identifier).
	Exact bool `json:"exact"`
}

// Schema is the ordered set of fields an index carries.
type Schema struct {
	Fields []Field `json:"fields"`
}

// Default returns the fixed two-field schema: an exact-match, stored
// identifier field and a tokenized, stored text field.
func Default() *Schema {
	return &Schema{
		Fields: []Field{
			{Name: FieldID, Tokenized: false, Stored: true, Exact: true},
			{Name: FieldText, Tokenized: true, Stored: true, Exact: false},
		},
	}
}

// MismatchError reports a persisted schema that does not carry the expected
// field set. Indexing and search must fail fast rather than operate against
// an incompatible index.
type MismatchError struct {
	Field  string
	Reason string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: field %q %s", e.Field, e.Reason)
}

// Validate checks that s contains both expected fields with the expected
// traits. Extra fields are rejected: this engine only understands the fixed
// two-field shape.
func (s *Schema) Validate() error {
	if s == nil || len(s.Fields) == 0 {
		return &MismatchError{Field: FieldID, Reason: "is missing"}
	}

	want := Default()
	byName := make(map[string]Field, len(s.Fields))
	for _, f := range s.Fields {
		byName[f.Name] = f
	}

	for _, exp := range want.Fields {
		got, ok := byName[exp.Name]
		if !ok {
			return &MismatchError{Field: exp.Name, Reason: "is missing"}
		}
		if got != exp {
			return &MismatchError{
				Field: exp.Name,
				Reason: fmt.Sprintf("has traits tokenized=%t stored=%t exact=%t, expected tokenized=%t stored=%t exact=%t",
					got.Tokenized, got.Stored, got.Exact, exp.Tokenized, exp.Stored, exp.Exact),
			}
		}
		delete(byName, exp.Name)
	}

	for name := range byName {
		return &MismatchError{Field: name, Reason: "is not part of the fixed schema"}
	}

	return nil
}

// Field returns the field definition with the given name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
