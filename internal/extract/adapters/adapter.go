// Package adapters turns fetched HTML into the readable text evidence is
// extracted from, with site-specific handling for known page layouts.
package adapters

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Page is the readable content of a fetched document
type Page struct {
	Title   string
	Text    string
	Adapter string
}

// Adapter defines the interface for domain-specific extractors
type Adapter interface {
	// Name returns the adapter name
	Name() string

	// CanHandle checks if this adapter can handle the given URL/content
	CanHandle(url string, contentType string) bool

	// Extract returns the readable content of the HTML document
	Extract(doc *html.Node, url string) Page
}

// Registry manages domain adapters
type Registry struct {
	adapters []Adapter
	generic  Adapter
}

// NewRegistry creates a new adapter registry
func NewRegistry() *Registry {
	registry := &Registry{
		adapters: make([]Adapter, 0),
	}

	// Register built-in adapters
	registry.Register(NewWikipediaAdapter())
	registry.Register(NewLegalAdapter())

	// Set generic adapter as fallback
	registry.generic = NewGenericAdapter()

	return registry
}

// Register registers a new adapter
func (r *Registry) Register(adapter Adapter) {
	r.adapters = append(r.adapters, adapter)
}

// FindAdapter finds the best adapter for the given URL and content type
func (r *Registry) FindAdapter(url string, contentType string) Adapter {
	// Try specific adapters first
	for _, adapter := range r.adapters {
		if adapter.CanHandle(url, contentType) {
			return adapter
		}
	}

	// Fall back to generic adapter
	return r.generic
}

// ExtractHTML parses an HTML body and runs the matching adapter on it
func (r *Registry) ExtractHTML(body io.Reader, url string, contentType string) (Page, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return Page{}, err
	}
	adapter := r.FindAdapter(url, contentType)
	page := adapter.Extract(doc, url)
	page.Adapter = adapter.Name()
	return page, nil
}

// BaseAdapter provides common functionality for adapters
type BaseAdapter struct{}

// ParseHTML parses HTML string into a node tree
func (b *BaseAdapter) ParseHTML(htmlContent string) (*html.Node, error) {
	return html.Parse(strings.NewReader(htmlContent))
}

// ExtractText extracts text content from a node, skipping invisible elements
func (b *BaseAdapter) ExtractText(n *html.Node) string {
	var buf strings.Builder
	b.writeText(&buf, n, nil)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func (b *BaseAdapter) writeText(buf *strings.Builder, n *html.Node, skip func(*html.Node) bool) {
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
		buf.WriteString(" ")
		return
	}
	if n.Type == html.ElementNode && (invisible[n.Data] || (skip != nil && skip(n))) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.writeText(buf, c, skip)
	}
}

// HasClass checks if a node has a specific CSS class
func (b *BaseAdapter) HasClass(n *html.Node, className string) bool {
	if n.Type != html.ElementNode {
		return false
	}

	for _, attr := range n.Attr {
		if attr.Key == "class" {
			classes := strings.Fields(attr.Val)
			for _, class := range classes {
				if class == className {
					return true
				}
			}
		}
	}
	return false
}

// GetAttribute gets an attribute value from a node
func (b *BaseAdapter) GetAttribute(n *html.Node, attrKey string) string {
	for _, attr := range n.Attr {
		if attr.Key == attrKey {
			return attr.Val
		}
	}
	return ""
}

// FindAll finds all nodes matching a predicate
func (b *BaseAdapter) FindAll(n *html.Node, predicate func(*html.Node) bool) []*html.Node {
	var results []*html.Node

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if predicate(node) {
			results = append(results, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return results
}

// FindFirst finds the first node matching a predicate
func (b *BaseAdapter) FindFirst(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	var result *html.Node

	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if predicate(node) {
			result = node
			return true
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}

	walk(n)
	return result
}

// Title returns the document <title>
func (b *BaseAdapter) Title(doc *html.Node) string {
	t := b.FindFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "title"
	})
	if t == nil {
		return ""
	}
	return b.ExtractText(t)
}

// Block is the text of one paragraph, heading or list item
type Block struct {
	Tag  string
	Text string
}

// Blocks returns the text of every block element under root in document
// order. Subtrees for which skip returns true are left out.
func (b *BaseAdapter) Blocks(root *html.Node, skip func(*html.Node) bool) []Block {
	var blocks []Block
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if invisible[n.Data] || (skip != nil && skip(n)) {
				return
			}
			if blockElements[n.Data] {
				var buf strings.Builder
				b.writeText(&buf, n, skip)
				if text := strings.Join(strings.Fields(buf.String()), " "); text != "" {
					blocks = append(blocks, Block{Tag: n.Data, Text: text})
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return blocks
}

var invisible = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
	"svg": true, "template": true, "head": true,
}

var blockElements = map[string]bool{
	"p": true, "li": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "blockquote": true, "pre": true, "dt": true,
	"dd": true, "figcaption": true, "td": true, "th": true, "caption": true,
}

// joinBlocks removes repeated blocks and joins the rest into paragraphs
func joinBlocks(blocks []Block) string {
	seen := make(map[string]bool, len(blocks))
	var unique []string
	for _, block := range blocks {
		if seen[block.Text] {
			continue
		}
		seen[block.Text] = true
		unique = append(unique, block.Text)
	}
	return strings.Join(unique, "\n\n")
}
