// Package bridge wires the autosave controller to a WordPress settings
// screen: it signs in, loads the settings form, and keeps the site in sync
// while the form is edited.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/elodin/bridge/internal/config"
	"github.com/elodin/bridge/pkg/autosave"
	"github.com/elodin/bridge/pkg/htmlform"
	"github.com/elodin/bridge/pkg/status"
	"github.com/elodin/bridge/pkg/transport"
	"github.com/elodin/bridge/pkg/wpadmin"
)

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	log        *zap.Logger
	views      []autosave.StatusView
	controller []autosave.Option
	transport  []transport.Option
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *openOptions) {
		if logger != nil {
			o.log = logger
		}
	}
}

// WithStatusViews adds views next to the structured log view.
func WithStatusViews(views ...autosave.StatusView) Option {
	return func(o *openOptions) {
		o.views = append(o.views, views...)
	}
}

// WithControllerOptions appends controller options after the configured
// ones, so they win.
func WithControllerOptions(options ...autosave.Option) Option {
	return func(o *openOptions) {
		o.controller = append(o.controller, options...)
	}
}

// WithTransportOptions appends transport options.
func WithTransportOptions(options ...transport.Option) Option {
	return func(o *openOptions) {
		o.transport = append(o.transport, options...)
	}
}

// Session is an open settings screen under autosave.
type Session struct {
	wp     *wpadmin.Session
	form   *htmlform.Form
	ctrl   *autosave.Controller
	panel  *status.Panel
	server *http.Server
	addr   net.Addr
	log    *zap.Logger
}

// Open signs in when credentials are configured, loads the settings form and
// starts the controller with the form's current values as the baseline.
func Open(ctx context.Context, cfg *config.Config, options ...Option) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("bridge: config is required")
	}
	o := &openOptions{log: zap.NewNop()}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(o)
	}
	log := o.log

	client, err := transport.NewClient(0)
	if err != nil {
		return nil, err
	}
	page, err := wpadmin.AdminPageURL(cfg.Site, cfg.Form.Page)
	if err != nil {
		return nil, err
	}
	trOptions := []transport.Option{
		transport.WithClient(client),
		transport.WithMaxBody(cfg.HTTP.MaxBody),
		transport.WithReferer(page),
		transport.WithLogger(log.Named("transport")),
	}
	if cfg.HTTP.UserAgent != "" {
		trOptions = append(trOptions, transport.WithUserAgent(cfg.HTTP.UserAgent))
	}
	tr, err := transport.New(append(trOptions, o.transport...)...)
	if err != nil {
		return nil, err
	}

	wp, err := wpadmin.NewSession(cfg.Site,
		wpadmin.WithTransport(tr),
		wpadmin.WithLogger(log.Named("wpadmin")))
	if err != nil {
		return nil, err
	}
	if cfg.User != "" {
		if err := wp.Login(ctx, cfg.User, cfg.Password.Reveal()); err != nil {
			return nil, err
		}
	}

	form, err := wp.LoadForm(ctx, cfg.Form.Page, cfg.Form.Selector)
	if err != nil {
		return nil, err
	}

	s := &Session{wp: wp, form: form, log: log}
	views := append([]autosave.StatusView{status.Log(log)}, o.views...)
	if cfg.Status.HTMLPath != "" || cfg.Status.Addr != "" {
		panel, err := status.NewPanel(
			status.WithOutputFile(cfg.Status.HTMLPath),
			status.WithRefresh(cfg.Status.Refresh),
			status.WithTitle(form.Action()),
			status.WithPanelLogger(log.Named("panel")))
		if err != nil {
			return nil, err
		}
		s.panel = panel
		views = append(views, panel)
	}
	if cfg.Status.Addr != "" {
		if err := s.serve(cfg.Status.Addr); err != nil {
			return nil, err
		}
	}

	ctrlOptions := append(cfg.Autosave.Options(),
		autosave.WithLogger(log.Named("autosave")),
		autosave.WithStatusView(status.Multi(views...)),
		autosave.WithEndpoint(cfg.Form.Endpoint),
	)
	ctrl, err := autosave.New(form, tr, append(ctrlOptions, o.controller...)...)
	if err != nil {
		return nil, multierr.Append(err, s.Close())
	}
	if err := ctrl.Start(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("bridge: %w", err), s.Close())
	}
	s.ctrl = ctrl

	log.Info("bridge: session open",
		zap.String("page", page),
		zap.String("endpoint", form.Action()),
		zap.Int("controls", len(form.Controls())))
	return s, nil
}

// Form returns the live settings form.
func (s *Session) Form() *htmlform.Form { return s.form }

// Controller returns the autosave controller.
func (s *Session) Controller() *autosave.Controller { return s.ctrl }

// WordPress returns the dashboard session.
func (s *Session) WordPress() *wpadmin.Session { return s.wp }

// Panel returns the HTML status panel, or nil when none is configured.
func (s *Session) Panel() *status.Panel { return s.panel }

// Flush saves any pending edit immediately.
func (s *Session) Flush(ctx context.Context) error {
	return s.ctrl.SaveNow(ctx)
}

// StatusAddr returns the address of the status server, or nil.
func (s *Session) StatusAddr() net.Addr { return s.addr }

// Close stops the controller and the status server and reports any panel
// write failure.
func (s *Session) Close() error {
	var err error
	if s.ctrl != nil {
		err = multierr.Append(err, s.ctrl.Close())
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, s.server.Shutdown(ctx))
		s.server = nil
	}
	if s.panel != nil {
		err = multierr.Append(err, s.panel.Err())
	}
	return err
}

func (s *Session) serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: status server: %w", err)
	}
	s.addr = ln.Addr()
	s.server = &http.Server{
		Handler:           status.Handler(s.panel),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("bridge: status server stopped", zap.Error(err))
		}
	}()
	s.log.Info("bridge: status server listening", zap.String("addr", s.addr.String()))
	return nil
}
