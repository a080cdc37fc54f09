// Package status renders autosave state changes: to a structured log, to a
// terminal, and to an HTML status panel whose data-state attribute carries
// the state tag. Multi fans one update out to several views.
package status
