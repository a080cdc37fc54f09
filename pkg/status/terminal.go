package status

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/elodin/bridge/pkg/autosave"
)

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithColor forces colored output on or off. By default fatih/color decides
// from the environment.
func WithColor(enabled bool) TerminalOption {
	return func(t *Terminal) {
		t.forceColor = &enabled
	}
}

// WithIdle prints Idle transitions even when their message is empty.
func WithIdle() TerminalOption {
	return func(t *Terminal) {
		t.showIdle = true
	}
}

// Terminal writes one status line per transition and the diagnostics block
// after a failure.
type Terminal struct {
	mu         sync.Mutex
	w          io.Writer
	forceColor *bool
	showIdle   bool

	saving *color.Color
	saved  *color.Color
	failed *color.Color
	muted  *color.Color
}

var _ autosave.StatusView = (*Terminal)(nil)

// NewTerminal builds a terminal view writing to w.
func NewTerminal(w io.Writer, options ...TerminalOption) *Terminal {
	t := &Terminal{
		w:      w,
		saving: color.New(color.FgYellow),
		saved:  color.New(color.FgGreen, color.Bold),
		failed: color.New(color.FgRed, color.Bold),
		muted:  color.New(color.Faint),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(t)
	}
	if t.forceColor != nil {
		for _, c := range []*color.Color{t.saving, t.saved, t.failed, t.muted} {
			if *t.forceColor {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
	return t
}

// Update implements autosave.StatusView.
func (t *Terminal) Update(state autosave.State, message string, diag *autosave.Diagnostics) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.w == nil {
		return
	}
	if state == autosave.StateIdle && message == "" && !t.showIdle {
		return
	}

	tag := fmt.Sprintf("[%s]", state)
	switch state {
	case autosave.StateSaving:
		tag = t.saving.Sprint(tag)
	case autosave.StateSaved:
		tag = t.saved.Sprint(tag)
	case autosave.StateError:
		tag = t.failed.Sprint(tag)
	default:
		tag = t.muted.Sprint(tag)
	}
	line := tag
	if message != "" {
		line += " " + message
	}
	fmt.Fprintln(t.w, line)

	if diag == nil {
		return
	}
	for _, row := range strings.Split(strings.TrimRight(diag.String(), "\n"), "\n") {
		fmt.Fprintln(t.w, t.muted.Sprint("    "+row))
	}
}
