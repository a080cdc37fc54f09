package config

// SecretStringValue replaces secrets whenever a SecretString is rendered.
const SecretStringValue = "<secret>"

// SecretString holds values that must not show up in logs or dumps.
type SecretString string

// String masks the value for fmt and zap.Stringer.
func (s SecretString) String() string {
	if len(s) == 0 {
		return ""
	}
	return SecretStringValue
}

// Reveal returns the raw value.
func (s SecretString) Reveal() string { return string(s) }

// MarshalYAML hides the value when the configuration is dumped.
func (s SecretString) MarshalYAML() (any, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return SecretStringValue, nil
}
