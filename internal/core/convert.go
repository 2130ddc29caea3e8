package core

// convert.go casts raw CSV cells into native Go values for a target column.
//
// Cast returns one of:
//   - nil for a null cell
//   - int64 for INT and BIGINT
//   - float64 for FLOAT and REAL
//   - Decimal for DECIMAL and NUMERIC
//   - bool for BIT
//   - time.Time for DATE (UTC midnight), DATETIME and DATETIME2
//   - string for NVARCHAR, VARCHAR and CHAR
//
// Cast is pure: the same inputs always give the same value or error kind.

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Cast failure kinds. Errors returned by Cast wrap exactly one of these.
var (
	ErrNonNullableEmpty = errors.New("empty value for non-nullable column")
	ErrInvalidInt       = errors.New("invalid integer")
	ErrInvalidFloat     = errors.New("invalid float")
	ErrInvalidDecimal   = errors.New("invalid decimal")
	ErrInvalidBit       = errors.New("invalid bit")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidDateTime  = errors.New("invalid datetime")
)

// numericRegex validates plain decimal notation with an optional exponent.
// It rejects NaN, Infinity, hex floats and digit separators.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

const dateLayout = "2006-01-02"

// dateTimeLayouts are the accepted ISO-8601 forms. A fractional second is
// accepted after the seconds field by time.Parse even though the layouts
// do not spell it out.
var dateTimeLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// decimalContext rounds half-up. Precision is far above the largest
// DECIMAL(38,x) so quantizing never loses integer digits silently.
var decimalContext = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(100)
	c.Rounding = apd.RoundHalfUp
	return c
}()

// Decimal is an exact fixed-point value for DECIMAL and NUMERIC columns.
type Decimal struct {
	d *apd.Decimal
}

// String returns the value in plain notation, e.g. "1234.50".
func (d Decimal) String() string {
	if d.d == nil {
		return "0"
	}
	return d.d.Text('f')
}

// Value implements driver.Valuer. Drivers receive the exact text.
func (d Decimal) Value() (driver.Value, error) {
	return d.String(), nil
}

// Cast converts raw into the native value for t. Empty or whitespace-only
// input is null.
func Cast(raw string, t TypeDescriptor, nullable bool) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		if !nullable {
			return nil, ErrNonNullableEmpty
		}
		return nil, nil
	}

	switch t.base {
	case TypeInt:
		return castInt(s, 32, t)
	case TypeBigInt:
		return castInt(s, 64, t)
	case TypeFloat:
		return castFloat(s, 64, t)
	case TypeReal:
		return castFloat(s, 32, t)
	case TypeDecimal, TypeNumeric:
		return castDecimal(s, t)
	case TypeBit:
		return castBit(s)
	case TypeDate:
		return castDate(s)
	case TypeDateTime, TypeDateTime2:
		return castDateTime(s)
	case TypeNVarChar, TypeVarChar, TypeChar:
		// Text is passed through untrimmed.
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, t.String())
	}
}

func castInt(s string, bits int, t TypeDescriptor) (any, error) {
	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return nil, fmt.Errorf("%w: %q is out of range for %s", ErrInvalidInt, s, t)
		}
		return nil, fmt.Errorf("%w: %q", ErrInvalidInt, s)
	}
	return n, nil
}

func castFloat(s string, bits int, t TypeDescriptor) (any, error) {
	if !numericRegex.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFloat, s)
	}
	f, err := strconv.ParseFloat(s, bits)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("%w: %q is out of range for %s", ErrInvalidFloat, s, t)
	}
	return f, nil
}

// castDecimal rounds half-up to the declared scale and rejects values whose
// integer part does not fit in precision-scale digits.
func castDecimal(s string, t TypeDescriptor) (any, error) {
	if !numericRegex.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}
	d, _, err := apd.NewFromString(s)
	if err != nil || d.Form != apd.Finite {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}

	precision, scale, ok := t.PrecisionScale()
	if !ok {
		return Decimal{d: d}, nil
	}

	var q apd.Decimal
	if _, err := decimalContext.Quantize(&q, d, -int32(scale)); err != nil {
		return nil, fmt.Errorf("%w: %q exceeds %s", ErrInvalidDecimal, s, t)
	}
	if q.NumDigits() > int64(precision) && !q.IsZero() {
		return nil, fmt.Errorf("%w: %q exceeds %s", ErrInvalidDecimal, s, t)
	}
	return Decimal{d: &q}, nil
}

func castBit(s string) (any, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	}
	return nil, fmt.Errorf("%w: %q (want 1/0, true/false or yes/no)", ErrInvalidBit, s)
}

// castDate accepts YYYY-MM-DD and truncates date-time text to its date.
func castDate(s string) (any, error) {
	if d, err := time.Parse(dateLayout, s); err == nil {
		return d, nil
	}
	if ts, ok := parseDateTime(s); ok {
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return nil, fmt.Errorf("%w: %q (want YYYY-MM-DD)", ErrInvalidDate, s)
}

// castDateTime accepts ISO-8601 date-time text. A bare date is midnight UTC.
func castDateTime(s string) (any, error) {
	if ts, ok := parseDateTime(s); ok {
		return ts, nil
	}
	if d, err := time.Parse(dateLayout, s); err == nil {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q (want ISO-8601, e.g. 2006-01-02T15:04:05)", ErrInvalidDateTime, s)
}

func parseDateTime(s string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
