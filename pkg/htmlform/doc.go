// Package htmlform parses HTML pages into editable forms that satisfy
// autosave.FormView. Field order, eligibility and values follow the browser's
// FormData construction: unnamed, disabled, button-like and file controls are
// skipped, checkboxes and radios contribute only when checked, and selects
// contribute their selected options.
//
// Mutations (Type, Set, SetChecked, Select, AppendField, RemoveField) update
// the in-memory form and publish the matching autosave.Event to subscribers.
package htmlform
