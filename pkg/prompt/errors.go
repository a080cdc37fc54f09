package prompt

import "errors"

var (
	// ErrAborted signals the operator aborted input (e.g., Ctrl+C).
	ErrAborted = errors.New("prompt: aborted")
	// ErrNothingToEdit is returned when the form has no editable controls.
	ErrNothingToEdit = errors.New("prompt: form has no editable fields")
)
