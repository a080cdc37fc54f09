package bridge

import (
	"fmt"
	"strings"

	"github.com/elodin/bridge/pkg/htmlform"
)

// EditOp is the kind of change an Edit makes.
type EditOp int

const (
	// EditSet assigns a value, or checks the matching checkbox or radio.
	EditSet EditOp = iota
	// EditUnset unchecks a checkbox or removes a list row.
	EditUnset
	// EditAppend adds a list row.
	EditAppend
)

// Edit is one command-line field change.
type Edit struct {
	Op    EditOp
	Name  string
	Value string
}

// ParseEdit reads "name=value", "+name=value" (append a row) or
// "-name=value" (uncheck or remove a row).
func ParseEdit(expr string) (Edit, error) {
	expr = strings.TrimSpace(expr)
	e := Edit{Op: EditSet}
	switch {
	case strings.HasPrefix(expr, "+"):
		e.Op, expr = EditAppend, expr[1:]
	case strings.HasPrefix(expr, "-"):
		e.Op, expr = EditUnset, expr[1:]
	}
	name, value, ok := strings.Cut(expr, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Edit{}, fmt.Errorf("bridge: edit %q is not name=value", expr)
	}
	e.Name, e.Value = name, value
	return e, nil
}

// Apply performs the edit through the form's mutation methods, so the
// matching event reaches the controller.
func (e Edit) Apply(form *htmlform.Form) error {
	switch e.Op {
	case EditAppend:
		form.AppendField(e.Name, e.Value)
		return nil
	case EditUnset:
		if c, ok := form.Control(e.Name); ok && (c.Type == "checkbox" || c.Type == "radio") {
			return form.SetChecked(e.Name, e.Value, false)
		}
		if !form.RemoveField(e.Name, e.Value) {
			return fmt.Errorf("%w: %s=%s", htmlform.ErrUnknownField, e.Name, e.Value)
		}
		return nil
	}

	c, ok := form.Control(e.Name)
	if !ok {
		return fmt.Errorf("%w: %s", htmlform.ErrUnknownField, e.Name)
	}
	switch c.Type {
	case "checkbox", "radio":
		return form.SetChecked(e.Name, e.Value, true)
	case "select-multiple":
		return form.Select(e.Name, strings.Split(e.Value, ",")...)
	}
	if c.IsFreeText() && c.Type != "hidden" {
		return form.Type(e.Name, e.Value)
	}
	return form.Set(e.Name, e.Value)
}
