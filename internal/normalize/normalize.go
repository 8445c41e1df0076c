// Package normalize turns raw page bodies into canonical text.
//
// Canonical text is what gets fingerprinted and compared between checks, so
// everything here must be deterministic: no clock, no network, no map
// iteration in the output path.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"pagewatch/internal/filter"
)

// ErrInvalidSelector is returned when a CSS selector cannot be compiled.
var ErrInvalidSelector = errors.New("invalid selector")

// skipElements never contribute text to the canonical output.
const skipElements = "script, style, noscript, template, iframe"

// Options configures a Normalizer.
type Options struct {
	// Selectors scope extraction for every site without its own selector.
	Selectors []string
	// IgnorePatterns mark elements as noise by class or id.
	IgnorePatterns []string
}

// Normalizer extracts canonical text from HTML and feed documents.
type Normalizer struct {
	noise     *filter.Noise
	selectors []cascadia.Selector
}

// New compiles the global selectors and ignore patterns.
func New(opts Options) (*Normalizer, error) {
	noise, err := filter.Compile(opts.IgnorePatterns)
	if err != nil {
		return nil, fmt.Errorf("ignore patterns: %w", err)
	}

	n := &Normalizer{noise: noise}
	for _, s := range opts.Selectors {
		sel, err := compileSelector(s)
		if err != nil {
			return nil, err
		}
		n.selectors = append(n.selectors, sel)
	}
	return n, nil
}

// ValidateSelector checks whether s is a usable CSS selector.
func ValidateSelector(s string) error {
	_, err := compileSelector(s)
	return err
}

// Normalize returns the canonical text of raw. A non-empty selector scopes
// extraction to the matching elements; no match yields empty text.
// Entities are decoded, so Normalize is idempotent only on output that has
// no markup-like text: "&lt;b&gt;x" becomes "<b>x", which a second pass
// parses as an element.
func (n *Normalizer) Normalize(raw, selector string) (string, error) {
	var scoped cascadia.Selector
	if selector != "" {
		sel, err := compileSelector(selector)
		if err != nil {
			return "", err
		}
		scoped = sel
	} else if text, ok := feedText(raw); ok {
		return text, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find(skipElements).Remove()
	if !n.noise.Empty() {
		doc.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
			if n.noise.Match(s.AttrOr("class", ""), s.AttrOr("id", "")) {
				s.Remove()
			}
		})
	}

	var parts []string
	switch {
	case scoped != nil:
		parts = matchText(doc, scoped)
	case len(n.selectors) > 0:
		for _, sel := range n.selectors {
			parts = append(parts, matchText(doc, sel)...)
		}
	default:
		parts = []string{nodeText(doc.Nodes...)}
	}

	return CleanLines(strings.Join(parts, "\n")), nil
}

// CleanLines trims every line and drops blank ones.
func CleanLines(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func compileSelector(s string) (cascadia.Selector, error) {
	sel, err := cascadia.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSelector, s, err)
	}
	return sel, nil
}

func matchText(doc *goquery.Document, sel cascadia.Selector) []string {
	var parts []string
	doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, nodeText(s.Nodes...))
	})
	return parts
}

// feedText renders RSS and Atom documents as one line per title and link.
// JSON feeds are left to the HTML path since arbitrary JSON would otherwise
// parse as an empty feed.
func feedText(raw string) (string, bool) {
	switch gofeed.DetectFeedType(strings.NewReader(raw)) {
	case gofeed.FeedTypeRSS, gofeed.FeedTypeAtom:
	default:
		return "", false
	}

	feed, err := gofeed.NewParser().ParseString(raw)
	if err != nil || (feed.Title == "" && len(feed.Items) == 0) {
		return "", false
	}

	lines := []string{feed.Title}
	for _, item := range feed.Items {
		lines = append(lines, item.Title, item.Link)
	}
	return CleanLines(strings.Join(lines, "\n")), true
}

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Body: true, atom.Caption: true, atom.Dd: true, atom.Details: true,
	atom.Dialog: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Head: true,
	atom.Header: true, atom.Hr: true, atom.Html: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Ol: true, atom.Option: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Summary: true,
	atom.Table: true, atom.Tbody: true, atom.Td: true, atom.Tfoot: true,
	atom.Th: true, atom.Thead: true, atom.Title: true, atom.Tr: true,
	atom.Ul: true,
}

// nodeText collects visible text, putting block elements on their own lines.
func nodeText(nodes ...*html.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		writeText(&b, n)
	}
	return b.String()
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if n.DataAtom == atom.Br {
			b.WriteByte('\n')
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}
