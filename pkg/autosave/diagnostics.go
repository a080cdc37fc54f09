package autosave

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// DefaultSnippetLimit caps the response excerpt kept in Diagnostics.
const DefaultSnippetLimit = 700

// Diagnostics is the technical record captured when a save fails.
type Diagnostics struct {
	Time        time.Time `json:"time"`
	Message     string    `json:"message"`
	Endpoint    string    `json:"endpoint"`
	Status      int       `json:"status,omitempty"`
	Redirected  bool      `json:"redirected"`
	ResponseURL string    `json:"response_url,omitempty"`
	Snippet     string    `json:"snippet,omitempty"`
}

// String renders the block shown in the diagnostics panel.
func (d *Diagnostics) String() string {
	if d == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Time: %s\n", d.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Error: %s\n", d.Message)
	fmt.Fprintf(&b, "Request URL: %s\n", d.Endpoint)
	if d.Status > 0 {
		fmt.Fprintf(&b, "HTTP status: %d\n", d.Status)
	} else {
		b.WriteString("HTTP status: n/a\n")
	}
	fmt.Fprintf(&b, "Redirected: %t\n", d.Redirected)
	if d.ResponseURL != "" {
		fmt.Fprintf(&b, "Response URL: %s\n", d.ResponseURL)
	}
	if d.Snippet != "" {
		fmt.Fprintf(&b, "Response snippet: %s\n", d.Snippet)
	}
	return b.String()
}

var (
	snippetPolicyOnce sync.Once
	snippetPolicy     *bluemonday.Policy
)

// Snippet reduces an HTML response body to a short plain-text excerpt for
// humans: tags are removed together with script and style content,
// whitespace runs collapse to one space, and the result is cut to limit
// characters. A non-positive limit uses DefaultSnippetLimit.
func Snippet(body []byte, limit int) string {
	if limit <= 0 {
		limit = DefaultSnippetLimit
	}
	if len(body) == 0 {
		return ""
	}
	text := snippetSanitizer().SanitizeBytes(body)
	plain := html.UnescapeString(string(text))
	collapsed := strings.Join(strings.Fields(plain), " ")

	runes := []rune(collapsed)
	if len(runes) > limit {
		return strings.TrimSpace(string(runes[:limit]))
	}
	return collapsed
}

func snippetSanitizer() *bluemonday.Policy {
	snippetPolicyOnce.Do(func() {
		// StrictPolicy drops every element and skips the content of
		// script, style, noscript and friends.
		policy := bluemonday.StrictPolicy()
		policy.AddSpaceWhenStrippingTag(true)
		policy.SkipElementsContent("template", "svg")
		snippetPolicy = policy
	})
	return snippetPolicy
}
