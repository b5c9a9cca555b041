package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidNumber is returned when a field has no parseable leading number.
var ErrInvalidNumber = errors.New("invalid numeric field")

// leadingToken returns the first whitespace separated token of s with all
// thousands separators removed.
//
// Grammar: [space] number [space unit-text...]
// where number may contain ',' separators ("12,345", "1,024.5").
func leadingToken(s string) (string, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty value", ErrInvalidNumber)
	}

	return strings.ReplaceAll(fields[0], ",", ""), nil
}

// ParseLeadingInt parses the leading integer token of a formatted telemetry
// value such as "12,345 seconds". Trailing unit text is ignored.
func ParseLeadingInt(s string) (int64, error) {
	token, err := leadingToken(s)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}

	return v, nil
}

// ParseLeadingFloat parses the leading decimal token of a formatted telemetry
// value such as "1,024.500 GB". Trailing unit text is ignored.
func ParseLeadingFloat(s string) (float64, error) {
	token, err := leadingToken(s)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}

	return v, nil
}

// Value is a JSON scalar that the reader tool may emit either as a number or
// as a formatted string. The original text is preserved for table output.
type Value string

// UnmarshalJSON accepts strings, numbers and null.
func (v *Value) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))

	if raw == "null" {
		*v = ""

		return nil
	}

	if strings.HasPrefix(raw, `"`) {
		s, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("decoding value %s: %w", raw, err)
		}

		*v = Value(s)

		return nil
	}

	*v = Value(raw)

	return nil
}

// String returns the text as captured.
func (v Value) String() string {
	return string(v)
}

// Int parses the value with ParseLeadingInt.
func (v Value) Int() (int64, error) {
	return ParseLeadingInt(string(v))
}

// Float parses the value with ParseLeadingFloat.
func (v Value) Float() (float64, error) {
	return ParseLeadingFloat(string(v))
}
