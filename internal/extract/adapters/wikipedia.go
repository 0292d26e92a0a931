package adapters

import (
	"strings"

	"golang.org/x/net/html"
)

// WikipediaAdapter extracts article prose from Wikipedia pages, dropping
// infoboxes, navigation boxes, citation markers and the reference sections
type WikipediaAdapter struct {
	BaseAdapter
	stopSections []string
	skipClasses  []string
}

// NewWikipediaAdapter creates a new Wikipedia adapter
func NewWikipediaAdapter() *WikipediaAdapter {
	return &WikipediaAdapter{
		stopSections: []string{"references", "notes", "external links", "further reading", "see also", "bibliography"},
		skipClasses: []string{
			"infobox", "navbox", "reflist", "references", "reference", "mw-editsection",
			"hatnote", "metadata", "ambox", "toc", "thumbcaption", "noprint", "mw-empty-elt",
		},
	}
}

// Name returns the adapter name
func (a *WikipediaAdapter) Name() string {
	return "wikipedia"
}

// CanHandle checks if this is a Wikipedia URL
func (a *WikipediaAdapter) CanHandle(rawURL string, contentType string) bool {
	return strings.Contains(rawURL, "wikipedia.org")
}

// Extract returns the lead section followed by the body sections up to the
// first reference-style section
func (a *WikipediaAdapter) Extract(doc *html.Node, rawURL string) Page {
	// Find the main content area
	content := a.FindFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div" &&
			(a.HasClass(n, "mw-parser-output") || a.GetAttribute(n, "id") == "mw-content-text")
	})

	if content == nil {
		content = doc
	}

	var kept []Block
	for _, block := range a.Blocks(content, a.skip) {
		if (block.Tag == "h2" || block.Tag == "h3") && a.isStopSection(block.Text) {
			break
		}
		kept = append(kept, block)
	}

	return Page{Title: a.title(doc), Text: joinBlocks(kept)}
}

func (a *WikipediaAdapter) skip(n *html.Node) bool {
	if n.Data == "table" || n.Data == "sup" || n.Data == "style" {
		return true
	}
	for _, class := range a.skipClasses {
		if a.HasClass(n, class) {
			return true
		}
	}
	return a.GetAttribute(n, "role") == "navigation"
}

func (a *WikipediaAdapter) isStopSection(heading string) bool {
	heading = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(heading, "[edit]")))
	for _, s := range a.stopSections {
		if heading == s {
			return true
		}
	}
	return false
}

// title prefers the rendered page heading over the <title> suffix
func (a *WikipediaAdapter) title(doc *html.Node) string {
	h := a.FindFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && a.GetAttribute(n, "id") == "firstHeading"
	})
	if h != nil {
		if t := a.ExtractText(h); t != "" {
			return t
		}
	}
	t := a.Title(doc)
	if i := strings.LastIndex(t, " - Wikipedia"); i > 0 {
		t = t[:i]
	}
	return t
}
