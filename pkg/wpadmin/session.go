// Package wpadmin signs into a WordPress dashboard and loads settings forms
// from its admin screens.
package wpadmin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/elodin/bridge/pkg/autosave"
	"github.com/elodin/bridge/pkg/htmlform"
	"github.com/elodin/bridge/pkg/transport"
)

var (
	// ErrLoginFailed reports rejected credentials or a missing auth cookie.
	ErrLoginFailed = errors.New("wpadmin: login failed")
	// ErrNotLoggedIn reports an admin request bounced to the login screen.
	ErrNotLoggedIn = errors.New("wpadmin: not logged in")
)

const loggedInCookiePrefix = "wordpress_logged_in_"

// Session is an authenticated dashboard session. Its transport carries the
// cookies and is the one the autosave controller posts through.
type Session struct {
	site      *url.URL
	transport *transport.Transport
	log       *zap.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithTransport supplies the transport. It must keep cookies.
func WithTransport(t *transport.Transport) Option {
	return func(s *Session) {
		if t != nil {
			s.transport = t
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.log = logger
		}
	}
}

// NewSession prepares a session for the site rooted at site, for example
// "https://example.com" or "https://example.com/blog".
func NewSession(site string, options ...Option) (*Session, error) {
	root, err := siteRoot(site)
	if err != nil {
		return nil, err
	}

	s := &Session{site: root, log: zap.NewNop()}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}
	if s.transport == nil {
		t, err := transport.New(transport.WithLogger(s.log))
		if err != nil {
			return nil, err
		}
		s.transport = t
	}
	return s, nil
}

// Transport returns the cookie-carrying transport.
func (s *Session) Transport() *transport.Transport { return s.transport }

// Site returns the site root with a trailing slash.
func (s *Session) Site() string { return s.site.String() }

// LoginURL returns the wp-login.php address.
func (s *Session) LoginURL() string { return resolve(s.site, "wp-login.php") }

// AdminURL resolves page against /wp-admin/. Absolute URLs pass through.
func (s *Session) AdminURL(page string) string {
	return adminURL(s.site, page)
}

// AdminPageURL resolves page against the dashboard of site without opening
// a session.
func AdminPageURL(site, page string) (string, error) {
	root, err := siteRoot(site)
	if err != nil {
		return "", err
	}
	return adminURL(root, page), nil
}

func siteRoot(site string) (*url.URL, error) {
	origin, err := transport.Origin(site)
	if err != nil {
		return nil, fmt.Errorf("wpadmin: %w", err)
	}
	parsed, err := url.Parse(strings.TrimSpace(site))
	if err != nil {
		return nil, fmt.Errorf("wpadmin: parse site: %w", err)
	}
	return url.Parse(origin + strings.TrimSuffix(parsed.Path, "/") + "/")
}

func adminURL(root *url.URL, page string) string {
	page = strings.TrimSpace(page)
	if u, err := url.Parse(page); err == nil && u.IsAbs() {
		return page
	}
	return resolve(root, "wp-admin/"+strings.TrimPrefix(page, "/"))
}

// Login signs in with a username or email and password.
func (s *Session) Login(ctx context.Context, user, password string) error {
	if strings.TrimSpace(user) == "" {
		return fmt.Errorf("%w: username is required", ErrLoginFailed)
	}
	loginURL := s.LoginURL()

	// The first request plants wordpress_test_cookie, which the login
	// handler insists on.
	if _, err := s.transport.Get(ctx, loginURL); err != nil {
		return fmt.Errorf("wpadmin: load login page: %w", err)
	}

	form := url.Values{}
	form.Set("log", user)
	form.Set("pwd", password)
	form.Set("rememberme", "forever")
	form.Set("redirect_to", s.AdminURL(""))
	form.Set("wp-submit", "Log In")
	form.Set("testcookie", "1")

	resp, err := s.transport.Post(ctx, loginURL, form.Encode())
	if err != nil {
		return fmt.Errorf("wpadmin: submit login: %w", err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return fmt.Errorf("%w: %w", ErrLoginFailed, &autosave.StatusError{Status: resp.Status})
	}
	if !s.hasAuthCookie() {
		if reason := loginError(resp.Body); reason != "" {
			return fmt.Errorf("%w: %s", ErrLoginFailed, reason)
		}
		return fmt.Errorf("%w: no auth cookie issued", ErrLoginFailed)
	}

	s.log.Info("wpadmin: logged in", zap.String("user", user), zap.String("site", s.Site()))
	return nil
}

// LoadForm fetches an admin page and returns the form matched by selector,
// using the htmlform.Document.Find rules.
func (s *Session) LoadForm(ctx context.Context, page, selector string) (*htmlform.Form, error) {
	doc, err := s.LoadPage(ctx, page)
	if err != nil {
		return nil, err
	}
	form, err := doc.Find(selector)
	if err != nil {
		return nil, fmt.Errorf("wpadmin: %s: %w", s.AdminURL(page), err)
	}
	s.log.Debug("wpadmin: form loaded",
		zap.String("page", doc.URL()),
		zap.String("action", form.Action()),
		zap.Int("controls", len(form.Controls())))
	return form, nil
}

// LoadPage fetches and parses an admin page.
func (s *Session) LoadPage(ctx context.Context, page string) (*htmlform.Document, error) {
	target := s.AdminURL(page)
	resp, err := s.transport.Get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("wpadmin: load %s: %w", target, err)
	}
	if strings.Contains(resp.URL, "wp-login.php") {
		return nil, fmt.Errorf("%w: %s redirected to %s", ErrNotLoggedIn, target, resp.URL)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fmt.Errorf("wpadmin: load %s: %w", target, &autosave.StatusError{Status: resp.Status})
	}
	doc, err := htmlform.Parse(bytes.NewReader(resp.Body), resp.URL)
	if err != nil {
		return nil, fmt.Errorf("wpadmin: %w", err)
	}
	return doc, nil
}

func resolve(root *url.URL, path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return root.String() + path
	}
	return root.ResolveReference(ref).String()
}

func (s *Session) hasAuthCookie() bool {
	jar := s.transport.Client().Jar
	if jar == nil {
		return false
	}
	admin, err := url.Parse(s.AdminURL(""))
	if err != nil {
		return false
	}
	for _, cookie := range jar.Cookies(admin) {
		if strings.HasPrefix(cookie.Name, loggedInCookiePrefix) {
			return true
		}
	}
	return false
}

// loginError extracts the #login_error notice from a login screen.
func loginError(body []byte) string {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var found *html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "id" && a.Val == "login_error" {
					found = n
					return
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(root)
	if found == nil {
		return ""
	}
	var b bytes.Buffer
	if err := html.Render(&b, found); err != nil {
		return ""
	}
	return autosave.Snippet(b.Bytes(), autosave.DefaultSnippetLimit)
}
