package telemetry

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// ErrMissingParameter is wrapped by MissingParameterError.
var ErrMissingParameter = errors.New("missing expected parameter")

// MissingParameterError names the parameter a capture file did not contain.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("%s %q", ErrMissingParameter, e.Name)
}

// Unwrap allows errors.Is(err, ErrMissingParameter).
func (e *MissingParameterError) Unwrap() error {
	return ErrMissingParameter
}

// DecodeParameters decodes a flat parameter map (parameter name to formatted
// value) into out, a pointer to a struct whose fields carry mapstructure tags
// with the parameter names. Integer and float fields are filled from the
// leading numeric token of the value. Every name in required must be present.
func DecodeParameters(params map[string]any, out any, required ...string) error {
	for _, name := range required {
		if _, ok := params[name]; !ok {
			return &MissingParameterError{Name: name}
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: numericHook,
		Result:     out,
		TagName:    "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("creating parameter decoder: %w", err)
	}

	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("decoding parameters: %w", err)
	}

	return nil
}

// numericHook converts formatted strings into the numeric kind of the
// destination field.
func numericHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}

	s, _ := data.(string)

	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return ParseLeadingInt(s)
	case reflect.Float32, reflect.Float64:
		return ParseLeadingFloat(s)
	default:
		return data, nil
	}
}
