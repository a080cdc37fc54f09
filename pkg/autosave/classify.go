package autosave

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DefaultRejectionPhrases are the texts WordPress prints on nonce and
// capability failures while still answering with HTTP 200.
var DefaultRejectionPhrases = []string{
	"Are you sure you want to do this?",
	"not allowed to manage options",
	"Sorry, you are not allowed to access this page",
	"You need a higher level of permission",
	"The link you followed has expired",
}

// Classifier decides whether a response means the save succeeded. A nil
// error is success.
type Classifier interface {
	Classify(resp *Response) error
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(resp *Response) error

func (f ClassifierFunc) Classify(resp *Response) error { return f(resp) }

// PhraseClassifier accepts 2xx responses whose body contains none of the
// configured rejection phrases. Matching is case-insensitive. It is a
// heuristic over arbitrary HTML, not a protocol.
type PhraseClassifier struct {
	phrases []string
	lowered [][]byte
}

// NewPhraseClassifier builds a classifier from DefaultRejectionPhrases plus
// extra. Blank and duplicate phrases are dropped.
func NewPhraseClassifier(extra ...string) *PhraseClassifier {
	all := make([]string, 0, len(DefaultRejectionPhrases)+len(extra))
	all = append(all, DefaultRejectionPhrases...)
	all = append(all, extra...)

	c := &PhraseClassifier{}
	seen := make(map[string]struct{}, len(all))
	for _, phrase := range all {
		trimmed := strings.TrimSpace(phrase)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		c.phrases = append(c.phrases, trimmed)
		c.lowered = append(c.lowered, []byte(key))
	}
	return c
}

// Phrases returns the active phrase list.
func (c *PhraseClassifier) Phrases() []string {
	return append([]string(nil), c.phrases...)
}

func (c *PhraseClassifier) Classify(resp *Response) error {
	if err := checkStatus(resp); err != nil {
		return err
	}
	body := bytes.ToLower(resp.Body)
	for i, phrase := range c.lowered {
		if bytes.Contains(body, phrase) {
			return &RejectionError{Status: resp.Status, Phrase: c.phrases[i]}
		}
	}
	return nil
}

// JSONClassifier expects the endpoint to answer with a JSON envelope such as
// the one produced by wp_send_json_success: {"success": true, "data": ...}.
type JSONClassifier struct{}

type jsonEnvelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (JSONClassifier) Classify(resp *Response) error {
	if err := checkStatus(resp); err != nil {
		return err
	}
	var envelope jsonEnvelope
	if err := json.Unmarshal(bytes.TrimSpace(resp.Body), &envelope); err != nil {
		return &RejectionError{Status: resp.Status, Phrase: "invalid json envelope"}
	}
	if envelope.Success == nil || !*envelope.Success {
		return &RejectionError{Status: resp.Status, Phrase: `"success": false`}
	}
	return nil
}

func checkStatus(resp *Response) error {
	if resp == nil {
		return &StatusError{}
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return &StatusError{Status: resp.Status}
	}
	return nil
}
