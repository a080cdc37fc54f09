// Package autosave keeps a server-side settings store eventually consistent
// with an on-screen form. A Controller observes form events, coalesces bursts
// of edits behind a trailing-edge debounce, serializes the form into an
// application/x-www-form-urlencoded body, and POSTs it to the form's
// submission endpoint.
//
// At most one request is in flight at a time. Edits that arrive while a save
// is running raise a single "save again" flag, so any number of edits during a
// request produce exactly one follow-up save. A save whose snapshot encodes
// identically to the last successful one is skipped without touching the
// network.
//
// The browser collaborators are expressed as small interfaces: FormView for
// the form, Transport for the network, Clock for timers, and StatusView for
// the visible status surface. pkg/htmlform, pkg/transport and pkg/status
// provide production implementations; pkg/testsupport provides deterministic
// fakes.
package autosave
