package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidIdentifier is returned when a table, schema or column name
	// does not match the identifier grammar.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidTableName is returned when a qualified table name is not of
	// the form schema.table or [schema].[table].
	ErrInvalidTableName = errors.New("invalid table name")
)

// MaxIdentifierLength matches the SQL Server sysname limit.
const MaxIdentifierLength = 128

var (
	identifierRegex   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	bracketTableRegex = regexp.MustCompile(`^\[([^\[\]]*)\]\.\[([^\[\]]*)\]$`)
	plainTableRegex   = regexp.MustCompile(`^([^.\[\]"` + "`" + `]*)\.([^.\[\]"` + "`" + `]*)$`)
)

// Identifier is a validated table, schema or column name that is safe to
// interpolate into generated SQL once delimited. The zero value is not a
// valid identifier.
type Identifier struct {
	name string
}

// String returns the normalized name.
func (id Identifier) String() string { return id.name }

// IsZero reports whether id was never validated.
func (id Identifier) IsZero() bool { return id.name == "" }

// Key returns the case-insensitive identity of the name.
func (id Identifier) Key() string { return strings.ToLower(id.name) }

// EqualFold reports whether two identifiers name the same object.
func (id Identifier) EqualFold(other Identifier) bool {
	return strings.EqualFold(id.name, other.name)
}

// QualifiedName is a schema-qualified table name.
type QualifiedName struct {
	Schema Identifier
	Table  Identifier
}

// String renders the name as schema.table.
func (q QualifiedName) String() string {
	return q.Schema.name + "." + q.Table.name
}

// IsZero reports whether q was never validated.
func (q QualifiedName) IsZero() bool {
	return q.Schema.IsZero() || q.Table.IsZero()
}

// NormalizeIdentifier trims whitespace and strips one pair of enclosing
// [..], ".." or `..` delimiters.
func NormalizeIdentifier(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '[' && last == ']') || (first == '"' && last == '"') || (first == '`' && last == '`') {
			s = s[1 : len(s)-1]
		}
	}
	return strings.TrimSpace(s)
}

// ValidateIdentifier normalizes raw and checks it against the identifier
// grammar.
func ValidateIdentifier(raw string) (Identifier, error) {
	name := NormalizeIdentifier(raw)
	if !identifierRegex.MatchString(name) {
		return Identifier{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}
	if len(name) > MaxIdentifierLength {
		return Identifier{}, fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidIdentifier, raw, MaxIdentifierLength)
	}
	return Identifier{name: name}, nil
}

// ValidateQualifiedTable accepts schema.table or [schema].[table].
// Each part is validated as an identifier.
func ValidateQualifiedTable(raw string) (QualifiedName, error) {
	s := strings.TrimSpace(raw)

	var parts []string
	if m := bracketTableRegex.FindStringSubmatch(s); m != nil {
		parts = m[1:]
	} else if m := plainTableRegex.FindStringSubmatch(s); m != nil {
		parts = m[1:]
	} else {
		return QualifiedName{}, fmt.Errorf("%w: %q must be schema.table or [schema].[table]", ErrInvalidTableName, raw)
	}

	schema, err := ValidateIdentifier(parts[0])
	if err != nil {
		return QualifiedName{}, fmt.Errorf("%w: %q has an invalid schema part", ErrInvalidTableName, raw)
	}
	table, err := ValidateIdentifier(parts[1])
	if err != nil {
		return QualifiedName{}, fmt.Errorf("%w: %q has an invalid table part", ErrInvalidTableName, raw)
	}
	return QualifiedName{Schema: schema, Table: table}, nil
}

// MustIdentifier is like ValidateIdentifier but panics on error.
// Intended for constants and tests.
func MustIdentifier(raw string) Identifier {
	id, err := ValidateIdentifier(raw)
	if err != nil {
		panic(err)
	}
	return id
}
