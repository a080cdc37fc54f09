package autosave

import (
	"net/url"
	"strings"
)

// Field is a single named form value.
type Field struct {
	Name  string
	Value string
}

// Snapshot is the ordered list of savable field values at a point in time.
// Order follows the field declaration order of the form.
type Snapshot []Field

// Encode returns the canonical application/x-www-form-urlencoded form of the
// snapshot. Unlike url.Values.Encode the field order is preserved, so two
// snapshots encode identically only when they list the same values in the
// same order.
func (s Snapshot) Encode() string {
	if len(s) == 0 {
		return ""
	}
	var b strings.Builder
	for i, field := range s {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(field.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(field.Value))
	}
	return b.String()
}

// Equal reports whether both snapshots share the same encoding.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.Encode() == other.Encode()
}

// Get returns the first value recorded for name.
func (s Snapshot) Get(name string) (string, bool) {
	for _, field := range s {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}

// Values converts the snapshot into url.Values. Ordering is lost.
func (s Snapshot) Values() url.Values {
	out := make(url.Values, len(s))
	for _, field := range s {
		out[field.Name] = append(out[field.Name], field.Value)
	}
	return out
}
