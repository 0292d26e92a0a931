package validate

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/ppiankov/factlens/internal/model"
)

// SourceClassifier assigns a source type to a URL from configured domain
// lists, path patterns and well-known TLDs
type SourceClassifier struct {
	domains      map[string]model.SourceType
	pathPatterns []compiledPattern
}

type compiledPattern struct {
	pattern *regexp.Regexp
	kind    model.SourceType
}

var defaultPathPatterns = []struct {
	pattern string
	kind    model.SourceType
}{
	{`(?i)/(fact-?check|factcheck|verify)(/|$)`, model.SourceFactCheck},
	{`(?i)^/(doi|abs|pmc|article)/`, model.SourcePeerReviewed},
	{`(?i)/(opinion|blog|blogs|column|commentary)(/|$)`, model.SourceBlog},
	{`(?i)/(press-?release|press|statement)s?(/|$)`, model.SourceOrganization},
	{`(?i)/(judgment|judgement|ruling|opinions|decisions?)(/|$)`, model.SourceLegal},
}

// NewSourceClassifier creates a classifier. A nil config uses the defaults.
func NewSourceClassifier(config *model.AuthorityConfig) *SourceClassifier {
	if config == nil {
		def := model.DefaultConfig().Authority
		config = &def
	}

	c := &SourceClassifier{domains: make(map[string]model.SourceType)}

	// Later lists win, so order from least to most specific
	add := func(list []string, kind model.SourceType) {
		for _, d := range list {
			d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
			if d != "" {
				c.domains[d] = kind
			}
		}
	}
	add(config.Blog, model.SourceBlog)
	add(config.Organization, model.SourceOrganization)
	add(config.NewsSecondary, model.SourceNewsSecondary)
	add(config.NewsPrimary, model.SourceNewsPrimary)
	add(config.Government, model.SourceGovernment)
	add(config.Legal, model.SourceLegal)
	add(config.FactCheck, model.SourceFactCheck)
	add(config.PeerReviewed, model.SourcePeerReviewed)

	for _, p := range defaultPathPatterns {
		c.pathPatterns = append(c.pathPatterns, compiledPattern{
			pattern: regexp.MustCompile(p.pattern),
			kind:    p.kind,
		})
	}
	return c
}

// Classify returns the source type for a URL, defaulting to other
func (c *SourceClassifier) Classify(rawURL string) model.SourceType {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return model.SourceOther
	}
	host := NormalizeHost(parsed.Host)
	if host == "" {
		return model.SourceOther
	}

	// Exact match, then walk up parent domains (news.bbc.co.uk -> bbc.co.uk)
	for h := host; h != ""; h = parentDomain(h) {
		if kind, ok := c.domains[h]; ok {
			return kind
		}
	}

	for _, cp := range c.pathPatterns {
		if cp.pattern.MatchString(parsed.Path) {
			return cp.kind
		}
	}

	switch {
	case strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".mil") ||
		strings.Contains(host, ".gov.") || strings.HasSuffix(host, ".europa.eu"):
		return model.SourceGovernment
	case strings.HasSuffix(host, ".edu") || strings.Contains(host, ".ac."):
		return model.SourceOrganization
	case host == "doi.org" || strings.HasSuffix(host, ".doi.org"):
		return model.SourcePeerReviewed
	}

	return model.SourceOther
}

// NormalizeHost lowercases a host, strips the port, a trailing dot and a www. prefix
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}

func parentDomain(host string) string {
	idx := strings.Index(host, ".")
	if idx < 0 {
		return ""
	}
	parent := host[idx+1:]
	if !strings.Contains(parent, ".") {
		return ""
	}
	return parent
}

// DomainOf returns the normalized host of a URL, or "" when it has none
func DomainOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return NormalizeHost(parsed.Host)
}
