package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// Question is one prompt about a form field.
type Question struct {
	// Title is what the operator reads: the field label, or its name.
	Title string
	// Field is the form field name. It is offered as help when it differs
	// from Title.
	Field string
	// Current prefills free-text answers.
	Current string
	// Check rejects a free-text answer before it reaches the form.
	Check func(string) error
}

// Choice is one answer of a pick question. Checked choices are preselected.
type Choice struct {
	Label   string
	Checked bool
}

// Driver talks to the operator. Pick and PickMany return indices into the
// choices they were given.
type Driver interface {
	Text(ctx context.Context, q Question) (string, error)
	Multiline(ctx context.Context, q Question) (string, error)
	Secret(ctx context.Context, q Question) (string, error)
	Toggle(ctx context.Context, q Question, on bool) (bool, error)
	Pick(ctx context.Context, q Question, choices []Choice) (int, error)
	PickMany(ctx context.Context, q Question, choices []Choice) ([]int, error)
	Notify(ctx context.Context, msg string) error
}

type surveyDriver struct {
	out      io.Writer
	pageSize int
}

// NewSurveyDriver returns a Driver backed by survey. Notices go to out, or
// stdout when out is nil. pageSize caps how many choices are listed at once;
// zero keeps survey's default.
func NewSurveyDriver(out io.Writer, pageSize int) Driver {
	if out == nil {
		out = os.Stdout
	}
	return &surveyDriver{out: out, pageSize: pageSize}
}

func (d *surveyDriver) Text(ctx context.Context, q Question) (string, error) {
	var answer string
	err := d.ask(ctx, q, &survey.Input{Message: q.Title, Help: help(q), Default: q.Current}, &answer)
	return answer, err
}

func (d *surveyDriver) Multiline(ctx context.Context, q Question) (string, error) {
	var answer string
	err := d.ask(ctx, q, &survey.Multiline{Message: q.Title, Help: help(q), Default: q.Current}, &answer)
	return answer, err
}

func (d *surveyDriver) Secret(ctx context.Context, q Question) (string, error) {
	var answer string
	err := d.ask(ctx, q, &survey.Password{Message: q.Title, Help: help(q)}, &answer)
	return answer, err
}

func (d *surveyDriver) Toggle(ctx context.Context, q Question, on bool) (bool, error) {
	answer := on
	err := d.ask(ctx, q, &survey.Confirm{Message: q.Title, Help: help(q), Default: on}, &answer)
	return answer, err
}

func (d *surveyDriver) Pick(ctx context.Context, q Question, choices []Choice) (int, error) {
	labels, checked := split(choices)
	sel := &survey.Select{Message: q.Title, Help: help(q), Options: labels, PageSize: d.pageSize}
	if len(checked) > 0 {
		sel.Default = checked[len(checked)-1]
	}
	answer := -1
	err := d.ask(ctx, q, sel, &answer)
	return answer, err
}

func (d *surveyDriver) PickMany(ctx context.Context, q Question, choices []Choice) ([]int, error) {
	labels, checked := split(choices)
	sel := &survey.MultiSelect{Message: q.Title, Help: help(q), Options: labels, PageSize: d.pageSize}
	if len(checked) > 0 {
		sel.Default = checked
	}
	var answer []int
	err := d.ask(ctx, q, sel, &answer)
	return answer, err
}

func (d *surveyDriver) Notify(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(d.out, msg)
	return err
}

// ask runs one survey prompt. Ctrl-C surfaces as ErrAborted.
func (d *surveyDriver) ask(ctx context.Context, q Question, p survey.Prompt, answer any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var opts []survey.AskOpt
	if q.Check != nil {
		opts = append(opts, survey.WithValidator(func(ans interface{}) error {
			text, _ := ans.(string)
			return q.Check(text)
		}))
	}
	err := survey.AskOne(p, answer, opts...)
	if errors.Is(err, terminal.InterruptErr) {
		return ErrAborted
	}
	return err
}

func help(q Question) string {
	if q.Field == q.Title {
		return ""
	}
	return q.Field
}

func split(choices []Choice) (labels []string, checked []int) {
	labels = make([]string, 0, len(choices))
	for i, c := range choices {
		labels = append(labels, c.Label)
		if c.Checked {
			checked = append(checked, i)
		}
	}
	return labels, checked
}
