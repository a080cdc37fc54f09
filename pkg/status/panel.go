package status

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/elodin/bridge/pkg/autosave"
)

//go:embed templates/*.tpl
var templateFS embed.FS

// PanelOption configures a Panel.
type PanelOption func(*panelConfig)

type panelConfig struct {
	output       string
	title        string
	detailsLabel string
	refresh      int
	log          *zap.Logger
}

// WithOutputFile rewrites path with a standalone HTML page on every update.
func WithOutputFile(path string) PanelOption {
	return func(cfg *panelConfig) {
		cfg.output = strings.TrimSpace(path)
	}
}

// WithTitle sets the page title of the standalone page.
func WithTitle(title string) PanelOption {
	return func(cfg *panelConfig) {
		if trimmed := strings.TrimSpace(title); trimmed != "" {
			cfg.title = trimmed
		}
	}
}

// WithRefresh sets the meta refresh interval of the standalone page in
// seconds.
func WithRefresh(seconds int) PanelOption {
	return func(cfg *panelConfig) {
		if seconds > 0 {
			cfg.refresh = seconds
		}
	}
}

// WithPanelLogger reports rendering and write failures.
func WithPanelLogger(logger *zap.Logger) PanelOption {
	return func(cfg *panelConfig) {
		if logger != nil {
			cfg.log = logger
		}
	}
}

// Panel renders the status element: a message span tagged with the state
// and a diagnostics block that stays hidden until a failure fills it.
type Panel struct {
	cfg   panelConfig
	panel *pongo2.Template
	page  *pongo2.Template

	mu      sync.Mutex
	current Current
	html    string
	doc     string
	err     error
}

// Current is the state last shown by a Panel.
type Current struct {
	State       string                `json:"state"`
	Message     string                `json:"message"`
	Diagnostics *autosave.Diagnostics `json:"diagnostics,omitempty"`
}

var _ autosave.StatusView = (*Panel)(nil)

// NewPanel loads the embedded templates and renders the initial idle state.
func NewPanel(options ...PanelOption) (*Panel, error) {
	cfg := panelConfig{
		title:        "Autosave status",
		detailsLabel: "Details",
		refresh:      2,
		log:          zap.NewNop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	templates, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("status: templates: %w", err)
	}
	set := pongo2.NewSet("status", pongo2.NewFSLoader(templates))
	panelTpl, err := set.FromFile("panel.tpl")
	if err != nil {
		return nil, fmt.Errorf("status: load panel template: %w", err)
	}
	pageTpl, err := set.FromFile("page.tpl")
	if err != nil {
		return nil, fmt.Errorf("status: load page template: %w", err)
	}

	p := &Panel{cfg: cfg, panel: panelTpl, page: pageTpl}
	if err := p.render(autosave.StateIdle, "", nil); err != nil {
		return nil, err
	}
	return p, nil
}

// Update implements autosave.StatusView.
func (p *Panel) Update(state autosave.State, message string, diag *autosave.Diagnostics) {
	if err := p.render(state, message, diag); err != nil {
		p.cfg.log.Warn("status: render panel", zap.Error(err))
	}
}

// HTML returns the most recent panel markup.
func (p *Panel) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html
}

// Page returns the most recent standalone page.
func (p *Panel) Page() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

// Current returns the state last rendered.
func (p *Panel) Current() Current {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.current
	if out.Diagnostics != nil {
		clone := *out.Diagnostics
		out.Diagnostics = &clone
	}
	return out
}

// Err returns the last rendering or write failure.
func (p *Panel) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Panel) render(state autosave.State, message string, diag *autosave.Diagnostics) error {
	ctx := pongo2.Context{
		"state":         state.String(),
		"message":       message,
		"diagnostics":   strings.TrimRight(diag.String(), "\n"),
		"details_label": p.cfg.detailsLabel,
		"title":         p.cfg.title,
		"refresh":       p.cfg.refresh,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out, err := p.panel.Execute(ctx)
	if err != nil {
		p.err = fmt.Errorf("status: execute panel: %w", err)
		return p.err
	}
	page, err := p.page.Execute(ctx)
	if err != nil {
		p.err = fmt.Errorf("status: execute page: %w", err)
		return p.err
	}
	p.html, p.doc, p.err = out, page, nil
	p.current = Current{State: state.String(), Message: message, Diagnostics: diag}

	if p.cfg.output == "" {
		return nil
	}
	if err := writeFileAtomic(p.cfg.output, []byte(page)); err != nil {
		p.err = err
		return err
	}
	return nil
}

// writeFileAtomic replaces path so a browser refresh never sees a partial
// page.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".status-*.html")
	if err != nil {
		return fmt.Errorf("status: create temp file: %w", err)
	}
	name := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := multierr.Append(writeErr, closeErr); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("status: write %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("status: replace %s: %w", path, err)
	}
	return nil
}
