package htmlform

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/elodin/bridge/pkg/autosave"
)

// Option is a select option.
type Option struct {
	Value    string
	Label    string
	Selected bool
	Disabled bool
}

// Control is a form-associated element.
type Control struct {
	Name string
	// Type is the input type attribute, "select-one", "select-multiple",
	// "textarea", or the button type.
	Type     string
	Value    string
	Label    string
	Checked  bool
	Disabled bool
	Options  []Option
}

// IsButton reports whether the control only submits or resets the form.
func (c Control) IsButton() bool {
	switch c.Type {
	case "submit", "button", "reset", "image":
		return true
	}
	return false
}

// IsFreeText reports whether the control accepts typed text and therefore
// publishes input events.
func (c Control) IsFreeText() bool {
	switch c.Type {
	case "checkbox", "radio", "hidden", "file", "range", "color", "select-one", "select-multiple":
		return false
	}
	return !c.IsButton()
}

// Savable reports whether the control can contribute to a snapshot.
func (c Control) Savable() bool {
	return c.Name != "" && !c.Disabled && !c.IsButton() && c.Type != "file"
}

// Form is an editable HTML form. It implements autosave.FormView and
// autosave.EventSource and is safe for concurrent use. Subscribers run
// without the form lock held, so they may read the form.
type Form struct {
	id     string
	name   string
	method string
	action string
	node   *html.Node

	mu          sync.Mutex
	controls    []*Control
	subscribers map[int]func(autosave.Event)
	nextID      int
}

var (
	_ autosave.FormView    = (*Form)(nil)
	_ autosave.EventSource = (*Form)(nil)
)

func newForm(id, name, method, action string) *Form {
	return &Form{
		id:     strings.TrimSpace(id),
		name:   strings.TrimSpace(name),
		method: method,
		action: action,
	}
}

// ID returns the id attribute.
func (f *Form) ID() string { return f.id }

// Name returns the name attribute.
func (f *Form) Name() string { return f.name }

// Method returns the lowercased method, "get" when absent.
func (f *Form) Method() string { return f.method }

// Action returns the resolved submission endpoint.
func (f *Form) Action() string { return f.action }

// Controls returns copies of all controls in document order, including the
// ones that never serialize.
func (f *Form) Controls() []Control {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Control, 0, len(f.controls))
	for _, c := range f.controls {
		out = append(out, cloneControl(c))
	}
	return out
}

// Control returns the first control named name.
func (f *Form) Control(name string) (Control, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.controls {
		if c.Name == name {
			return cloneControl(c), true
		}
	}
	return Control{}, false
}

// Snapshot serializes the form the way a urlencoded submission does: line
// breaks in names and values are normalized to CRLF.
func (f *Form) Snapshot() (autosave.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var snap autosave.Snapshot
	for _, c := range f.controls {
		if !c.Savable() {
			continue
		}
		switch c.Type {
		case "checkbox", "radio":
			if c.Checked {
				snap = append(snap, entry(c.Name, c.Value))
			}
		case "select-one":
			if value, ok := selectedSingle(c.Options); ok {
				snap = append(snap, entry(c.Name, value))
			}
		case "select-multiple":
			for _, opt := range c.Options {
				if opt.Selected && !opt.Disabled {
					snap = append(snap, entry(c.Name, opt.Value))
				}
			}
		default:
			snap = append(snap, entry(c.Name, c.Value))
		}
	}
	return snap, nil
}

var lineBreaks = strings.NewReplacer("\r\n", "\r\n", "\r", "\r\n", "\n", "\r\n")

func entry(name, value string) autosave.Field {
	return autosave.Field{Name: lineBreaks.Replace(name), Value: lineBreaks.Replace(value)}
}

// Type replaces the value of a free-text control and publishes an input
// event, as a keystroke would.
func (f *Form) Type(name, value string) error {
	f.mu.Lock()
	c := f.findLocked(name)
	if c == nil {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if !c.IsFreeText() {
		f.mu.Unlock()
		return fmt.Errorf("%w: type into %s (%s)", ErrUnsupportedField, name, c.Type)
	}
	c.Value = value
	ev := eventFor(autosave.EventInput, c)
	f.mu.Unlock()

	f.emit(ev)
	return nil
}

// Set assigns a value to a text-like control or a single select and
// publishes a change event.
func (f *Form) Set(name, value string) error {
	f.mu.Lock()
	c := f.findLocked(name)
	if c == nil {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	switch {
	case c.Type == "select-one":
		if !selectValues(c, []string{value}) {
			f.mu.Unlock()
			return fmt.Errorf("%w: %s=%s", ErrUnknownOption, name, value)
		}
	case c.Type == "select-multiple", c.Type == "checkbox", c.Type == "radio", c.Type == "file", c.IsButton():
		f.mu.Unlock()
		return fmt.Errorf("%w: set %s (%s)", ErrUnsupportedField, name, c.Type)
	default:
		c.Value = value
	}
	ev := eventFor(autosave.EventChange, c)
	f.mu.Unlock()

	f.emit(ev)
	return nil
}

// SetChecked toggles the checkbox or radio named name with the given value.
// Checking a radio unchecks the rest of its group.
func (f *Form) SetChecked(name, value string, checked bool) error {
	f.mu.Lock()
	var target *Control
	for _, c := range f.controls {
		if c.Name != name || (c.Type != "checkbox" && c.Type != "radio") {
			continue
		}
		if value == "" || c.Value == value {
			target = c
			break
		}
	}
	if target == nil {
		f.mu.Unlock()
		if _, ok := f.Control(name); ok {
			return fmt.Errorf("%w: check %s=%s", ErrUnsupportedField, name, value)
		}
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if target.Type == "radio" && checked {
		for _, c := range f.controls {
			if c.Type == "radio" && c.Name == name {
				c.Checked = false
			}
		}
	}
	target.Checked = checked
	ev := eventFor(autosave.EventChange, target)
	f.mu.Unlock()

	f.emit(ev)
	return nil
}

// Select replaces the selection of a select control with values.
func (f *Form) Select(name string, values ...string) error {
	f.mu.Lock()
	c := f.findLocked(name)
	if c == nil {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if c.Type != "select-one" && c.Type != "select-multiple" {
		f.mu.Unlock()
		return fmt.Errorf("%w: select %s (%s)", ErrUnsupportedField, name, c.Type)
	}
	if c.Type == "select-one" && len(values) != 1 {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s takes exactly one value", ErrUnsupportedField, name)
	}
	if !selectValues(c, values) {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s=%s", ErrUnknownOption, name, strings.Join(values, ","))
	}
	ev := eventFor(autosave.EventChange, c)
	f.mu.Unlock()

	f.emit(ev)
	return nil
}

// AppendField adds a hidden control at the end of the form and raises the
// settings-changed signal. Dynamic list builders use it to add rows.
func (f *Form) AppendField(name, value string) {
	f.mu.Lock()
	f.controls = append(f.controls, &Control{Name: name, Type: "hidden", Value: value})
	f.mu.Unlock()

	f.emit(autosave.Event{Kind: autosave.EventSettingsChanged})
}

// RemoveField drops the first control with the given name and value and
// raises the settings-changed signal. It reports whether a control was
// removed.
func (f *Form) RemoveField(name, value string) bool {
	f.mu.Lock()
	index := -1
	for i, c := range f.controls {
		if c.Name == name && c.Value == value {
			index = i
			break
		}
	}
	if index < 0 {
		f.mu.Unlock()
		return false
	}
	f.controls = append(f.controls[:index], f.controls[index+1:]...)
	f.mu.Unlock()

	f.emit(autosave.Event{Kind: autosave.EventSettingsChanged})
	return true
}

// Subscribe registers fn for every event the form publishes.
func (f *Form) Subscribe(fn func(autosave.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribers == nil {
		f.subscribers = make(map[int]func(autosave.Event))
	}
	id := f.nextID
	f.nextID++
	f.subscribers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subscribers, id)
	}
}

func (f *Form) emit(ev autosave.Event) {
	f.mu.Lock()
	listeners := make([]func(autosave.Event), 0, len(f.subscribers))
	for id := 0; id < f.nextID; id++ {
		if fn, ok := f.subscribers[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func (f *Form) findLocked(name string) *Control {
	for _, c := range f.controls {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func eventFor(kind autosave.EventKind, c *Control) autosave.Event {
	return autosave.Event{
		Kind:      kind,
		Field:     c.Name,
		FieldType: c.Type,
		Disabled:  c.Disabled,
	}
}

// selectedSingle picks the value a single select submits: the last selected
// enabled option, else the first enabled option.
func selectedSingle(options []Option) (string, bool) {
	value, found := "", false
	for _, opt := range options {
		if opt.Selected && !opt.Disabled {
			value, found = opt.Value, true
		}
	}
	if found {
		return value, true
	}
	for _, opt := range options {
		if !opt.Disabled {
			return opt.Value, true
		}
	}
	return "", false
}

func selectValues(c *Control, values []string) bool {
	wanted := make(map[string]struct{}, len(values))
	for _, v := range values {
		wanted[v] = struct{}{}
	}
	matched := 0
	for _, opt := range c.Options {
		if _, ok := wanted[opt.Value]; ok && !opt.Disabled {
			matched++
		}
	}
	if matched == 0 && len(values) > 0 {
		return false
	}
	for i := range c.Options {
		_, ok := wanted[c.Options[i].Value]
		c.Options[i].Selected = ok && !c.Options[i].Disabled
	}
	return true
}

func cloneControl(c *Control) Control {
	out := *c
	out.Options = append([]Option(nil), c.Options...)
	return out
}
