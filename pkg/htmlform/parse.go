package htmlform

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed HTML page.
type Document struct {
	url   *url.URL
	title string
	forms []*Form
}

// Parse reads an HTML page served from pageURL. The URL resolves relative
// form actions and may be empty for documents without a known origin.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	base, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return nil, fmt.Errorf("htmlform: parse page url: %w", err)
	}

	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmlform: parse html: %w", err)
	}

	doc := &Document{url: base}
	p := &parser{
		doc:      doc,
		byID:     make(map[string]*Form),
		labelFor: make(map[string]string),
	}

	if href := findBaseHref(root); href != "" {
		if ref, err := url.Parse(href); err == nil {
			doc.url = base.ResolveReference(ref)
		}
	}

	p.collectForms(root)
	p.walk(root, nil, false, "")
	p.applyLabels()
	doc.title = collapse(textOf(findFirst(root, atom.Title)))
	return doc, nil
}

// URL returns the page URL after <base href> resolution.
func (d *Document) URL() string {
	if d.url == nil {
		return ""
	}
	return d.url.String()
}

// Title returns the document title.
func (d *Document) Title() string { return d.title }

// Forms returns the forms in document order.
func (d *Document) Forms() []*Form {
	return append([]*Form(nil), d.forms...)
}

// Find locates a form. "#id" matches the id attribute; any other non-empty
// selector matches the name attribute first and then an action substring. An
// empty selector picks the first form posting to options.php, falling back to
// the first form of the page.
func (d *Document) Find(selector string) (*Form, error) {
	if len(d.forms) == 0 {
		return nil, ErrNoForm
	}
	selector = strings.TrimSpace(selector)

	if selector == "" {
		for _, form := range d.forms {
			if strings.Contains(form.action, "options.php") {
				return form, nil
			}
		}
		return d.forms[0], nil
	}

	if id, ok := strings.CutPrefix(selector, "#"); ok {
		for _, form := range d.forms {
			if form.id == id {
				return form, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNoForm, selector)
	}

	for _, form := range d.forms {
		if form.name == selector {
			return form, nil
		}
	}
	for _, form := range d.forms {
		if strings.Contains(form.action, selector) {
			return form, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoForm, selector)
}

type parser struct {
	doc      *Document
	byID     map[string]*Form
	labelFor map[string]string
	// pending keeps the element id of each control so labels can be
	// attached after the walk.
	pending []labelTarget
}

type labelTarget struct {
	control *Control
	id      string
}

func (p *parser) collectForms(n *html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Form {
		form := newForm(
			attr(n, "id"),
			attr(n, "name"),
			strings.ToLower(strings.TrimSpace(attr(n, "method"))),
			p.resolve(attr(n, "action")),
		)
		if form.method == "" {
			form.method = "get"
		}
		form.node = n
		p.doc.forms = append(p.doc.forms, form)
		if form.id != "" {
			if _, exists := p.byID[form.id]; !exists {
				p.byID[form.id] = form
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		p.collectForms(child)
	}
}

// walk visits the tree in document order. owner is the nearest ancestor form,
// disabled reports a disabled fieldset ancestor, and label is the text of an
// enclosing <label> without a for attribute.
func (p *parser) walk(n *html.Node, owner *Form, disabled bool, label string) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Form:
			owner = p.formForNode(n)
		case atom.Fieldset:
			if hasAttr(n, "disabled") {
				disabled = true
			}
		case atom.Label:
			if id := strings.TrimSpace(attr(n, "for")); id != "" {
				if _, exists := p.labelFor[id]; !exists {
					p.labelFor[id] = labelText(n)
				}
			} else {
				label = labelText(n)
			}
		case atom.Input, atom.Select, atom.Textarea, atom.Button:
			p.addControl(n, owner, disabled, label)
			if n.DataAtom != atom.Button {
				return
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		p.walk(child, owner, disabled, label)
	}
}

func (p *parser) formForNode(n *html.Node) *Form {
	for _, form := range p.doc.forms {
		if form.node == n {
			return form
		}
	}
	return nil
}

func (p *parser) addControl(n *html.Node, owner *Form, fieldsetDisabled bool, label string) {
	if id := strings.TrimSpace(attr(n, "form")); id != "" {
		owner = p.byID[id]
	}
	if owner == nil {
		return
	}

	control := &Control{
		Name:     attr(n, "name"),
		Disabled: fieldsetDisabled || hasAttr(n, "disabled"),
		Label:    label,
	}

	switch n.DataAtom {
	case atom.Input:
		control.Type = strings.ToLower(strings.TrimSpace(attr(n, "type")))
		if control.Type == "" {
			control.Type = "text"
		}
		control.Value = attr(n, "value")
		if control.Type == "checkbox" || control.Type == "radio" {
			control.Checked = hasAttr(n, "checked")
			if !hasAttr(n, "value") {
				control.Value = "on"
			}
		}
	case atom.Button:
		control.Type = strings.ToLower(strings.TrimSpace(attr(n, "type")))
		if control.Type == "" {
			control.Type = "submit"
		}
		control.Value = attr(n, "value")
	case atom.Textarea:
		control.Type = "textarea"
		// The tokenizer already drops the newline that directly follows
		// the start tag.
		control.Value = textOf(n)
	case atom.Select:
		control.Type = "select-one"
		if hasAttr(n, "multiple") {
			control.Type = "select-multiple"
		}
		control.Options = collectOptions(n, false)
	}

	if id := strings.TrimSpace(attr(n, "id")); id != "" {
		p.pending = append(p.pending, labelTarget{control: control, id: id})
	}
	owner.controls = append(owner.controls, control)
}

func (p *parser) applyLabels() {
	for _, target := range p.pending {
		if text, ok := p.labelFor[target.id]; ok && text != "" {
			target.control.Label = text
		}
	}
}

func (p *parser) resolve(action string) string {
	action = strings.TrimSpace(action)
	if p.doc.url == nil {
		return action
	}
	if action == "" {
		return p.doc.url.String()
	}
	ref, err := url.Parse(action)
	if err != nil {
		return action
	}
	return p.doc.url.ResolveReference(ref).String()
}

func collectOptions(n *html.Node, groupDisabled bool) []Option {
	var out []Option
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		switch child.DataAtom {
		case atom.Optgroup:
			out = append(out, collectOptions(child, groupDisabled || hasAttr(child, "disabled"))...)
		case atom.Option:
			text := collapse(textOf(child))
			value := text
			if hasAttr(child, "value") {
				value = attr(child, "value")
			}
			out = append(out, Option{
				Value:    value,
				Label:    text,
				Selected: hasAttr(child, "selected"),
				Disabled: groupDisabled || hasAttr(child, "disabled"),
			})
		}
	}
	return out
}

func findBaseHref(n *html.Node) string {
	if base := findFirst(n, atom.Base); base != nil {
		return strings.TrimSpace(attr(base, "href"))
	}
	return ""
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, a); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	return textSkipping(n, atom.Script, atom.Style)
}

// labelText returns the visible label text without the values of controls
// nested in the label.
func labelText(n *html.Node) string {
	return collapse(textSkipping(n, atom.Script, atom.Style, atom.Textarea, atom.Select, atom.Button))
}

func textSkipping(n *html.Node, skip ...atom.Atom) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			return
		}
		if node.Type == html.ElementNode {
			for _, a := range skip {
				if node.DataAtom == a {
					return
				}
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
