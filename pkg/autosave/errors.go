package autosave

import (
	"errors"
	"fmt"
)

var (
	// ErrHTTPStatus marks a save whose response carried a non-2xx status.
	ErrHTTPStatus = errors.New("autosave: unexpected http status")
	// ErrRejected marks a 2xx response whose body shows the request was
	// refused by an authorization layer.
	ErrRejected = errors.New("autosave: request rejected")
	// ErrNotStarted is returned when a save is requested before Start.
	ErrNotStarted = errors.New("autosave: controller not started")
	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("autosave: controller closed")
	// ErrNoEndpoint is returned when neither the form nor the options
	// provide a submission endpoint.
	ErrNoEndpoint = errors.New("autosave: submission endpoint is empty")
)

// StatusError describes a non-2xx response.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("autosave: unexpected http status %d", e.Status)
}

func (e *StatusError) Unwrap() error { return ErrHTTPStatus }

// RejectionError describes a soft rejection detected in a 2xx response.
type RejectionError struct {
	Status int
	Phrase string
}

func (e *RejectionError) Error() string {
	if e.Phrase == "" {
		return fmt.Sprintf("autosave: request rejected (http %d)", e.Status)
	}
	return fmt.Sprintf("autosave: request rejected (http %d): response contains %q", e.Status, e.Phrase)
}

func (e *RejectionError) Unwrap() error { return ErrRejected }
