package autosave

import "strings"

// EventKind identifies what triggered an event.
type EventKind int

const (
	// EventChange is a committed change on a field (checkbox toggled, select
	// changed, text field blurred).
	EventChange EventKind = iota
	// EventInput fires on every keystroke in a free-text field.
	EventInput
	// EventSettingsChanged is the application-level signal raised by other
	// page components, for example a dynamic list builder adding a row.
	EventSettingsChanged
)

func (k EventKind) String() string {
	switch k {
	case EventChange:
		return "change"
	case EventInput:
		return "input"
	case EventSettingsChanged:
		return "settings-changed"
	default:
		return "unknown"
	}
}

// Event describes an edit on the form.
type Event struct {
	Kind EventKind
	// Field is the name of the edited field. Empty for EventSettingsChanged.
	Field string
	// FieldType is the control type: an input type attribute, "select",
	// "select-multiple" or "textarea".
	FieldType string
	Disabled  bool
}

// qualifies reports whether the event should schedule a save.
func (e Event) qualifies() bool {
	if e.Kind == EventSettingsChanged {
		return true
	}
	if strings.TrimSpace(e.Field) == "" || e.Disabled {
		return false
	}
	kind := strings.ToLower(strings.TrimSpace(e.FieldType))
	if isButtonType(kind) {
		return false
	}
	switch e.Kind {
	case EventChange:
		return true
	case EventInput:
		return isFreeText(kind)
	default:
		return false
	}
}

func isButtonType(kind string) bool {
	switch kind {
	case "button", "submit", "reset", "image":
		return true
	}
	return false
}

func isFreeText(kind string) bool {
	switch kind {
	case "checkbox", "radio", "hidden", "file", "select", "select-one", "select-multiple", "range", "color":
		return false
	}
	return true
}
