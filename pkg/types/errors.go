package types

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is wrapped by every error caused by a caller supplying an
// out-of-range or malformed value. Use errors.Is to detect it.
var ErrInvalidInput = errors.New("invalid input")

// InputError describes which field was rejected and why.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidInput) match any InputError.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// InvalidInput returns an InputError for the given field.
func InvalidInput(field, format string, args ...any) error {
	return &InputError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}
