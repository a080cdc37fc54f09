// Package prompt walks an operator through editing a settings form in the
// terminal. Every edit goes through the form's mutation methods, so the
// autosave controller observes it like a browser edit.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"

	"github.com/elodin/bridge/pkg/htmlform"
)

const (
	choiceAddRow = "+ Add list row"
	choiceDone   = "Done"
)

// DefaultPageSize is how many menu lines the editor shows at once.
const DefaultPageSize = 15

// Option configures an Editor.
type Option func(*Editor)

// WithPromptDriver swaps the terminal driver, mainly for tests.
func WithPromptDriver(driver Driver) Option {
	return func(e *Editor) {
		if driver != nil {
			e.driver = driver
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Editor) {
		if logger != nil {
			e.log = logger
		}
	}
}

// WithFlush runs fn when the operator picks Done, typically the controller's
// SaveNow so pending edits are not lost on exit.
func WithFlush(fn func(context.Context) error) Option {
	return func(e *Editor) {
		e.flush = fn
	}
}

// Editor is the interactive field editor.
type Editor struct {
	form   *htmlform.Form
	driver Driver
	log    *zap.Logger
	flush  func(context.Context) error
}

// NewEditor binds an editor to form.
func NewEditor(form *htmlform.Form, options ...Option) (*Editor, error) {
	if form == nil {
		return nil, errors.New("prompt: form is required")
	}
	e := &Editor{
		form: form,
		log:  zap.NewNop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(e)
	}
	if e.driver == nil {
		e.driver = NewSurveyDriver(nil, DefaultPageSize)
	}
	return e, nil
}

type entryKind int

const (
	entryText entryKind = iota
	entryTextArea
	entryToggle
	entryCheckGroup
	entryRadio
	entrySelect
	entryMultiSelect
)

// entry is one menu line. Checkbox and radio groups sharing a name collapse
// into one entry.
type entry struct {
	name     string
	label    string
	kind     entryKind
	controls []htmlform.Control
}

// Run loops until the operator picks Done or aborts. Validation problems of
// a single edit are reported and the loop continues.
func (e *Editor) Run(ctx context.Context) error {
	for {
		entries := e.entries()
		if len(entries) == 0 {
			return ErrNothingToEdit
		}

		menu := make([]Choice, 0, len(entries)+2)
		for _, en := range entries {
			menu = append(menu, Choice{Label: en.describe()})
		}
		menu = append(menu, Choice{Label: choiceAddRow}, Choice{Label: choiceDone, Checked: true})

		idx, err := e.driver.Pick(ctx, Question{Title: "Field to edit"}, menu)
		if err != nil {
			return err
		}

		switch {
		case idx < 0 || idx >= len(menu):
			continue
		case idx == len(menu)-1:
			return e.done(ctx)
		case idx == len(menu)-2:
			err = e.addRow(ctx)
		default:
			err = e.edit(ctx, entries[idx])
		}
		if err == nil {
			continue
		}
		if errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		e.log.Debug("prompt: edit rejected", zap.Error(err))
		if notifyErr := e.driver.Notify(ctx, err.Error()); notifyErr != nil {
			return notifyErr
		}
	}
}

func (e *Editor) done(ctx context.Context) error {
	if e.flush == nil {
		return nil
	}
	return e.flush(ctx)
}

func (e *Editor) entries() []entry {
	var out []entry
	index := make(map[string]int)
	for _, c := range e.form.Controls() {
		if c.Name == "" || c.Disabled || c.IsButton() || c.Type == "file" || c.Type == "hidden" {
			continue
		}
		if c.Type == "checkbox" || c.Type == "radio" {
			if i, ok := index[c.Name]; ok {
				out[i].controls = append(out[i].controls, c)
				if c.Type == "checkbox" {
					out[i].kind = entryCheckGroup
				}
				continue
			}
			index[c.Name] = len(out)
		}
		out = append(out, entry{name: c.Name, label: c.Label, kind: kindOf(c), controls: []htmlform.Control{c}})
	}
	return out
}

func kindOf(c htmlform.Control) entryKind {
	switch c.Type {
	case "textarea":
		return entryTextArea
	case "checkbox":
		return entryToggle
	case "radio":
		return entryRadio
	case "select-one":
		return entrySelect
	case "select-multiple":
		return entryMultiSelect
	}
	return entryText
}

func (en entry) describe() string {
	title := en.label
	if title == "" || en.kind == entryCheckGroup || en.kind == entryRadio {
		title = en.name
	}
	return fmt.Sprintf("%s = %s", title, en.current())
}

func (en entry) current() string {
	var values []string
	switch en.kind {
	case entryToggle, entryCheckGroup, entryRadio:
		for _, c := range en.controls {
			if c.Checked {
				values = append(values, c.Value)
			}
		}
	case entrySelect, entryMultiSelect:
		for _, opt := range en.controls[0].Options {
			if opt.Selected {
				values = append(values, opt.Label)
			}
		}
	default:
		value := en.controls[0].Value
		if en.kind == entryTextArea {
			value = strings.ReplaceAll(value, "\n", " ")
		}
		value = runewidth.Truncate(value, 40, "...")
		return fmt.Sprintf("%q", value)
	}
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}

func (e *Editor) edit(ctx context.Context, en entry) error {
	c := en.controls[0]
	q := Question{Title: en.name, Field: en.name, Current: c.Value}
	if c.Label != "" && en.kind != entryCheckGroup && en.kind != entryRadio {
		q.Title = c.Label
	}

	switch en.kind {
	case entryText, entryTextArea:
		ask := e.driver.Text
		if en.kind == entryTextArea {
			ask = e.driver.Multiline
		}
		value, err := ask(ctx, q)
		if err != nil {
			return err
		}
		return e.form.Type(en.name, value)

	case entryToggle:
		checked, err := e.driver.Toggle(ctx, q, c.Checked)
		if err != nil {
			return err
		}
		if checked == c.Checked {
			return nil
		}
		return e.form.SetChecked(en.name, c.Value, checked)

	case entryCheckGroup:
		picked, err := e.driver.PickMany(ctx, q, controlChoices(en.controls))
		if err != nil {
			return err
		}
		want := make(map[int]bool, len(picked))
		for _, i := range picked {
			want[i] = true
		}
		for i, box := range en.controls {
			if box.Checked == want[i] {
				continue
			}
			if err := e.form.SetChecked(en.name, box.Value, want[i]); err != nil {
				return err
			}
		}
		return nil

	case entryRadio:
		idx, err := e.driver.Pick(ctx, q, controlChoices(en.controls))
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(en.controls) || en.controls[idx].Checked {
			return nil
		}
		return e.form.SetChecked(en.name, en.controls[idx].Value, true)

	case entrySelect:
		choices, values := optionChoices(c.Options)
		idx, err := e.driver.Pick(ctx, q, choices)
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(values) || idx == lastChecked(choices) {
			return nil
		}
		return e.form.Select(en.name, values[idx])

	case entryMultiSelect:
		choices, values := optionChoices(c.Options)
		picked, err := e.driver.PickMany(ctx, q, choices)
		if err != nil {
			return err
		}
		chosen := make([]string, 0, len(picked))
		for _, i := range picked {
			if i >= 0 && i < len(values) {
				chosen = append(chosen, values[i])
			}
		}
		return e.form.Select(en.name, chosen...)
	}
	return nil
}

func (e *Editor) addRow(ctx context.Context) error {
	name, err := e.driver.Text(ctx, Question{
		Title: "Field name",
		Field: "List fields usually end with [] (e.g. my_option[items][])",
		Check: requireValue,
	})
	if err != nil {
		return err
	}
	if err := requireValue(name); err != nil {
		return fmt.Errorf("prompt: field name: %w", err)
	}
	value, err := e.driver.Text(ctx, Question{Title: "Value", Field: strings.TrimSpace(name)})
	if err != nil {
		return err
	}
	e.form.AppendField(strings.TrimSpace(name), value)
	return nil
}

func requireValue(value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("a value is required")
	}
	return nil
}

// controlChoices lists a checkbox or radio group by label.
func controlChoices(controls []htmlform.Control) []Choice {
	choices := make([]Choice, 0, len(controls))
	for _, c := range controls {
		label := c.Label
		if label == "" {
			label = c.Value
		}
		choices = append(choices, Choice{Label: label, Checked: c.Checked})
	}
	return choices
}

func lastChecked(choices []Choice) int {
	for i := len(choices) - 1; i >= 0; i-- {
		if choices[i].Checked {
			return i
		}
	}
	return -1
}

// optionChoices lists the enabled options of a select.
func optionChoices(options []htmlform.Option) ([]Choice, []string) {
	var (
		choices []Choice
		values  []string
	)
	for _, opt := range options {
		if opt.Disabled {
			continue
		}
		label := opt.Label
		if label == "" {
			label = opt.Value
		}
		choices = append(choices, Choice{Label: label, Checked: opt.Selected})
		values = append(values, opt.Value)
	}
	return choices, values
}
