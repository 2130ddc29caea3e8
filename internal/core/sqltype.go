package core

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedType is returned for type text outside the supported set.
var ErrUnsupportedType = errors.New("unsupported type")

// BaseType is the canonical name of a supported SQL type.
type BaseType string

const (
	TypeInt       BaseType = "INT"
	TypeBigInt    BaseType = "BIGINT"
	TypeFloat     BaseType = "FLOAT"
	TypeReal      BaseType = "REAL"
	TypeBit       BaseType = "BIT"
	TypeDate      BaseType = "DATE"
	TypeDateTime  BaseType = "DATETIME"
	TypeDateTime2 BaseType = "DATETIME2"
	TypeDecimal   BaseType = "DECIMAL"
	TypeNumeric   BaseType = "NUMERIC"
	TypeNVarChar  BaseType = "NVARCHAR"
	TypeVarChar   BaseType = "VARCHAR"
	TypeChar      BaseType = "CHAR"
)

// typeArity is the number of parameters each base requires.
var typeArity = map[BaseType]int{
	TypeInt:       0,
	TypeBigInt:    0,
	TypeFloat:     0,
	TypeReal:      0,
	TypeBit:       0,
	TypeDate:      0,
	TypeDateTime:  0,
	TypeDateTime2: 0,
	TypeDecimal:   2,
	TypeNumeric:   2,
	TypeNVarChar:  1,
	TypeVarChar:   1,
	TypeChar:      1,
}

// typeRegex splits "NAME" or "NAME(args)". Argument content is checked
// separately so the error can say what was wrong.
var typeRegex = regexp.MustCompile(`^([A-Z][A-Z0-9]*)\s*(?:\(([^()]*)\))?$`)

// TypeDescriptor is a parsed SQL type.
type TypeDescriptor struct {
	base   BaseType
	params []int
}

// Base returns the canonical base type.
func (t TypeDescriptor) Base() BaseType { return t.base }

// IsZero reports whether t was never parsed.
func (t TypeDescriptor) IsZero() bool { return t.base == "" }

// Length returns the declared length of a character type.
func (t TypeDescriptor) Length() (int, bool) {
	if len(t.params) == 1 {
		return t.params[0], true
	}
	return 0, false
}

// PrecisionScale returns the precision and scale of a DECIMAL/NUMERIC type.
func (t TypeDescriptor) PrecisionScale() (precision, scale int, ok bool) {
	if len(t.params) == 2 {
		return t.params[0], t.params[1], true
	}
	return 0, 0, false
}

// IsText reports whether values of this type pass through as strings.
func (t TypeDescriptor) IsText() bool {
	switch t.base {
	case TypeNVarChar, TypeVarChar, TypeChar:
		return true
	}
	return false
}

// String returns the canonical type text, e.g. DECIMAL(10,2).
func (t TypeDescriptor) String() string {
	if len(t.params) == 0 {
		return string(t.base)
	}
	ps := make([]string, len(t.params))
	for i, p := range t.params {
		ps[i] = strconv.Itoa(p)
	}
	return string(t.base) + "(" + strings.Join(ps, ",") + ")"
}

// ParseType parses type text such as "INT", "varchar(50)" or
// "DECIMAL(10, 2)".
func ParseType(text string) (TypeDescriptor, error) {
	s := strings.TrimSpace(text)
	// ToUpper folds some non-ASCII letters onto ASCII ones.
	if !isASCII(s) {
		return TypeDescriptor{}, fmt.Errorf("%w: %q", ErrUnsupportedType, text)
	}
	s = strings.ToUpper(s)
	m := typeRegex.FindStringSubmatch(s)
	if m == nil {
		return TypeDescriptor{}, fmt.Errorf("%w: %q", ErrUnsupportedType, text)
	}

	base := BaseType(m[1])
	arity, ok := typeArity[base]
	if !ok {
		return TypeDescriptor{}, fmt.Errorf("%w: %q", ErrUnsupportedType, text)
	}

	hasParens := strings.Contains(s, "(")
	if arity == 0 {
		if hasParens {
			return TypeDescriptor{}, fmt.Errorf("%w: %s takes no parameters", ErrUnsupportedType, base)
		}
		return TypeDescriptor{base: base}, nil
	}
	if !hasParens {
		return TypeDescriptor{}, fmt.Errorf("%w: %s requires %d parameter(s)", ErrUnsupportedType, base, arity)
	}

	fields := strings.Split(m[2], ",")
	if len(fields) != arity {
		return TypeDescriptor{}, fmt.Errorf("%w: %s requires %d parameter(s)", ErrUnsupportedType, base, arity)
	}
	params := make([]int, arity)
	for i, f := range fields {
		n, err := parseTypeParam(f)
		if err != nil {
			return TypeDescriptor{}, fmt.Errorf("%w: %q: %v", ErrUnsupportedType, text, err)
		}
		params[i] = n
	}

	if arity == 2 {
		precision, scale := params[0], params[1]
		if precision < 1 {
			return TypeDescriptor{}, fmt.Errorf("%w: %s precision must be at least 1", ErrUnsupportedType, base)
		}
		if scale > precision {
			return TypeDescriptor{}, fmt.Errorf("%w: %s scale %d exceeds precision %d", ErrUnsupportedType, base, scale, precision)
		}
	}

	return TypeDescriptor{base: base, params: params}, nil
}

// parseTypeParam accepts only ASCII digits, surrounded by optional spaces.
func parseTypeParam(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty parameter")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("parameter %q is not a non-negative integer", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parameter %q is out of range", s)
	}
	return n, nil
}

// IsSupportedType reports whether text parses as a supported type.
func IsSupportedType(text string) bool {
	_, err := ParseType(text)
	return err == nil
}

// MustParseType is like ParseType but panics on error.
func MustParseType(text string) TypeDescriptor {
	t, err := ParseType(text)
	if err != nil {
		panic(err)
	}
	return t
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
