package autosave

// State is the visible save status of a Controller.
type State int

const (
	StateIdle State = iota
	StateSaving
	StateSaved
	StateError
)

// String returns the tag used for the status surface's data-state attribute.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSaving:
		return "saving"
	case StateSaved:
		return "saved"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Messages holds the status text shown for each state.
type Messages struct {
	Idle   string `yaml:"idle"`
	Saving string `yaml:"saving"`
	Saved  string `yaml:"saved"`
	Error  string `yaml:"error"`
}

// DefaultMessages returns the stock status texts.
func DefaultMessages() Messages {
	return Messages{
		Idle:   "",
		Saving: "Saving…",
		Saved:  "Saved",
		Error:  "Could not save. Change a setting to retry.",
	}
}

// For returns the message configured for state.
func (m Messages) For(state State) string {
	switch state {
	case StateSaving:
		return m.Saving
	case StateSaved:
		return m.Saved
	case StateError:
		return m.Error
	default:
		return m.Idle
	}
}

// merge fills empty entries from fallback. Idle is allowed to stay empty.
func (m Messages) merge(fallback Messages) Messages {
	if m.Saving == "" {
		m.Saving = fallback.Saving
	}
	if m.Saved == "" {
		m.Saved = fallback.Saved
	}
	if m.Error == "" {
		m.Error = fallback.Error
	}
	return m
}
