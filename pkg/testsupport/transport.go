package testsupport

import (
	"context"
	"sync"

	"github.com/elodin/bridge/pkg/autosave"
)

// Request is a POST recorded by Transport.
type Request struct {
	Endpoint string
	Body     string
}

// Transport records every POST and answers through Respond. During runs
// while the request is "in flight", before the response is produced, which
// lets tests fire edits or advance the clock mid-request.
type Transport struct {
	Respond func(req Request) (*autosave.Response, error)
	During  func(req Request)

	mu       sync.Mutex
	requests []Request
}

var _ autosave.Transport = (*Transport)(nil)

// Post implements autosave.Transport.
func (t *Transport) Post(ctx context.Context, endpoint, body string) (*autosave.Response, error) {
	req := Request{Endpoint: endpoint, Body: body}
	t.mu.Lock()
	t.requests = append(t.requests, req)
	during := t.During
	respond := t.Respond
	t.mu.Unlock()

	if during != nil {
		during(req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if respond == nil {
		return OK(endpoint, "<html><body><p>Settings saved.</p></body></html>"), nil
	}
	return respond(req)
}

// Requests returns a copy of the recorded requests.
func (t *Transport) Requests() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Request(nil), t.requests...)
}

// Bodies returns the recorded request bodies.
func (t *Transport) Bodies() []string {
	reqs := t.Requests()
	out := make([]string, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, req.Body)
	}
	return out
}

// OK builds a 200 response served from url.
func OK(url, body string) *autosave.Response {
	return Reply(200, url, body)
}

// Reply builds a response with the given status.
func Reply(status int, url, body string) *autosave.Response {
	return &autosave.Response{Status: status, URL: url, Body: []byte(body)}
}
