package autosave

import (
	"context"
	"time"
)

// Response is the subset of an HTTP response the controller inspects.
type Response struct {
	Status     int
	Redirected bool
	URL        string
	Body       []byte
}

// Transport sends a form-encoded body to endpoint. Implementations follow
// redirects and carry the session credentials of the page.
type Transport interface {
	Post(ctx context.Context, endpoint, body string) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, endpoint, body string) (*Response, error)

func (f TransportFunc) Post(ctx context.Context, endpoint, body string) (*Response, error) {
	return f(ctx, endpoint, body)
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks and reports the current time.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
	Now() time.Time
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }

func (systemClock) Now() time.Time { return time.Now() }

// FormView exposes the savable state of a form.
type FormView interface {
	// Snapshot serializes all named, savable fields in declaration order.
	Snapshot() (Snapshot, error)
	// Action returns the submission endpoint of the form.
	Action() string
}

// EventSource is implemented by forms that publish edit events. Start
// subscribes the controller automatically.
type EventSource interface {
	Subscribe(fn func(Event)) (cancel func())
}

// StatusView renders the controller state. Update is called with the
// controller lock held and must not call back into the controller.
type StatusView interface {
	Update(state State, message string, diag *Diagnostics)
}

// StatusFunc adapts a function to StatusView.
type StatusFunc func(state State, message string, diag *Diagnostics)

func (f StatusFunc) Update(state State, message string, diag *Diagnostics) {
	f(state, message, diag)
}

type nopStatus struct{}

func (nopStatus) Update(State, string, *Diagnostics) {}
