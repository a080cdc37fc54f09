package htmlform

import "errors"

var (
	// ErrNoForm is returned when a document holds no matching form.
	ErrNoForm = errors.New("htmlform: form not found")
	// ErrUnknownField is returned when a mutation names no control.
	ErrUnknownField = errors.New("htmlform: unknown field")
	// ErrUnsupportedField is returned when a mutation does not apply to the
	// control type, for example typing into a checkbox.
	ErrUnsupportedField = errors.New("htmlform: operation not supported for field type")
	// ErrUnknownOption is returned when a select has no option with the
	// requested value.
	ErrUnknownOption = errors.New("htmlform: unknown option")
)
