// Package transport posts autosave snapshots over HTTP with the session
// cookies of the signed-in operator.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/elodin/bridge/pkg/autosave"
)

// DefaultMaxBody bounds how much of a response body is kept.
const DefaultMaxBody int64 = 1 << 20

const formContentType = "application/x-www-form-urlencoded; charset=UTF-8"

// Transport implements autosave.Transport on top of an *http.Client.
type Transport struct {
	client    *http.Client
	maxBody   int64
	referer   string
	userAgent string
	log       *zap.Logger
}

// Option configures a Transport.
type Option func(*Transport)

var _ autosave.Transport = (*Transport)(nil)

// WithClient replaces the HTTP client. The client should carry a cookie jar
// so the session survives between requests.
func WithClient(client *http.Client) Option {
	return func(t *Transport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithMaxBody bounds the number of response bytes kept for classification
// and diagnostics.
func WithMaxBody(limit int64) Option {
	return func(t *Transport) {
		if limit > 0 {
			t.maxBody = limit
		}
	}
}

// WithReferer sets the Referer header sent with every request.
func WithReferer(referer string) Option {
	return func(t *Transport) {
		t.referer = strings.TrimSpace(referer)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(agent string) Option {
	return func(t *Transport) {
		t.userAgent = strings.TrimSpace(agent)
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.log = logger
		}
	}
}

// New constructs a Transport. Without WithClient it uses NewClient.
func New(options ...Option) (*Transport, error) {
	t := &Transport{
		maxBody:   DefaultMaxBody,
		userAgent: "bridge-autosave/1.0",
		log:       zap.NewNop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(t)
	}
	if t.client == nil {
		client, err := NewClient(0)
		if err != nil {
			return nil, err
		}
		t.client = client
	}
	return t, nil
}

// NewClient returns an HTTP client with a cookie jar scoped by the public
// suffix list. A zero timeout leaves deadlines to the request context.
func NewClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("transport: cookie jar: %w", err)
	}
	return &http.Client{Jar: jar, Timeout: timeout}, nil
}

// Client exposes the underlying HTTP client.
func (t *Transport) Client() *http.Client { return t.client }

// Post sends body as a form-urlencoded POST and follows redirects. Any status
// is returned as a response; only network failures and context cancellation
// are errors.
func (t *Transport) Post(ctx context.Context, endpoint, body string) (*autosave.Response, error) {
	return t.do(ctx, http.MethodPost, endpoint, strings.NewReader(body))
}

// Get fetches a page with the session cookies.
func (t *Transport) Get(ctx context.Context, pageURL string) (*autosave.Response, error) {
	return t.do(ctx, http.MethodGet, pageURL, nil)
}

func (t *Transport) do(ctx context.Context, method, target string, body io.Reader) (*autosave.Response, error) {
	if ctx == nil {
		return nil, errors.New("transport: context is required")
	}
	if strings.TrimSpace(target) == "" {
		return nil, errors.New("transport: url is required")
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", formContentType)
	}
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if t.referer != "" {
		req.Header.Set("Referer", t.referer)
	}

	started := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody))
	if err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}

	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	out := &autosave.Response{
		Status:     resp.StatusCode,
		Redirected: final.String() != req.URL.String(),
		URL:        final.String(),
		Body:       data,
	}

	t.log.Debug("transport: response",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", out.Status),
		zap.Bool("redirected", out.Redirected),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(started)))
	return out, nil
}

// Origin returns the scheme and host of rawURL.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("transport: parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("transport: %q is not an absolute url", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
