package adapters

import (
	"strings"

	"golang.org/x/net/html"
)

// LegalAdapter extracts statute and judgment text, keeping section headings
// and numbered provisions together
type LegalAdapter struct {
	BaseAdapter
	legalDomains map[string]bool
	legalPaths   []string
}

// NewLegalAdapter creates a new legal document adapter
func NewLegalAdapter() *LegalAdapter {
	return &LegalAdapter{
		legalDomains: map[string]bool{
			"legislation.gov.uk": true,
			"law.cornell.edu":    true,
			"eur-lex.europa.eu":  true,
			"courtlistener.com":  true,
			"justice.gov":        true,
		},
		legalPaths: []string{"/statute", "/legal", "/law/", "/regulation", "/judgment", "/ruling"},
	}
}

// Name returns the adapter name
func (a *LegalAdapter) Name() string {
	return "legal"
}

// CanHandle checks if this is a legal document URL
func (a *LegalAdapter) CanHandle(rawURL string, contentType string) bool {
	lowerURL := strings.ToLower(rawURL)

	// Check for legal domains
	for domain := range a.legalDomains {
		if strings.Contains(lowerURL, domain) {
			return true
		}
	}

	// Check for legal path patterns
	for _, p := range a.legalPaths {
		if strings.Contains(lowerURL, p) {
			return true
		}
	}

	return false
}

// Extract returns the provisions of the main content area. Headings are
// prefixed with "§ " so section boundaries survive as plain text.
func (a *LegalAdapter) Extract(doc *html.Node, rawURL string) Page {
	// Focus on main content areas
	mainContent := a.FindFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "main"
	})

	if mainContent == nil {
		// Fallback to article or body
		mainContent = a.FindFirst(doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode &&
				(n.Data == "article" || a.GetAttribute(n, "role") == "main")
		})
	}

	if mainContent == nil {
		mainContent = doc
	}

	skip := func(n *html.Node) bool {
		return n.Data == "nav" || n.Data == "footer" || n.Data == "header"
	}

	blocks := a.Blocks(mainContent, skip)
	for i := range blocks {
		if isHeading(blocks[i].Tag) && !strings.HasPrefix(blocks[i].Text, "§") {
			blocks[i].Text = "§ " + blocks[i].Text
		}
	}

	return Page{Title: a.Title(doc), Text: joinBlocks(blocks)}
}

func isHeading(tag string) bool {
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}
