package adapters

import (
	"golang.org/x/net/html"
)

// GenericAdapter is the fallback adapter for unknown domains
type GenericAdapter struct {
	BaseAdapter
	boilerplate map[string]bool
}

// NewGenericAdapter creates a new generic adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{
		boilerplate: map[string]bool{
			"nav": true, "header": true, "footer": true, "aside": true,
			"form": true, "button": true, "menu": true, "dialog": true,
		},
	}
}

// Name returns the adapter name
func (a *GenericAdapter) Name() string {
	return "generic"
}

// CanHandle always returns true (fallback adapter)
func (a *GenericAdapter) CanHandle(url string, contentType string) bool {
	return true
}

// Extract prefers the article or main region and drops page chrome. Pages
// without block markup fall back to all visible text.
func (a *GenericAdapter) Extract(doc *html.Node, url string) Page {
	root := a.FindFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode &&
			(n.Data == "article" || n.Data == "main" || a.GetAttribute(n, "role") == "main")
	})
	if root == nil {
		root = doc
	}

	skip := func(n *html.Node) bool {
		return a.boilerplate[n.Data] || a.GetAttribute(n, "aria-hidden") == "true"
	}
	text := joinBlocks(a.Blocks(root, skip))
	if text == "" {
		body := a.FindFirst(doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.Data == "body"
		})
		if body == nil {
			body = doc
		}
		text = a.ExtractText(body)
	}
	return Page{Title: a.Title(doc), Text: text}
}
