package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/validate"
)

// DefaultMaxItemsPerSource bounds how many items one source can contribute
const DefaultMaxItemsPerSource = 12

const evidenceSystemPrompt = `You extract evidence from a source document for a fact-check.
Return only statements the source itself makes that bear on the claims listed, whether they
support or contradict them. Quote the supporting passage verbatim as the excerpt.
Describe the source's own frame in scope (methodology, time window, geography, boundaries).
Respond with JSON only:
{"evidence": [{"statement": "...", "excerpt": "...",
  "category": "direct_evidence|statistic|expert_quote|event|legal_provision|criticism|other",
  "direction": "supports|contradicts|neutral", "claimId": "SC1", "contextId": "<id>",
  "scope": {"methodology": "...", "temporal": "...", "geographic": "...", "boundaries": "..."},
  "probativeValue": "high|medium|low",
  "sourceType": "peer_reviewed_study|fact_check_report|government_report|legal_document|news_primary|news_secondary|expert_statement|organization_report|blog|other",
  "contestedStrength": "established|disputed|"}]}`

// Source is fetched text to extract evidence from
type Source struct {
	URL       string
	Title     string
	Text      string
	Truncated bool
}

// Target is what the extracted evidence should bear on
type Target struct {
	Input    string
	Context  model.AnalysisContext
	Contexts []string // Every context id evidence may be assigned to
	Claims   []model.Claim
	Round    int
}

type draftItem struct {
	Statement         string              `json:"statement"`
	Excerpt           string              `json:"excerpt"`
	Category          string              `json:"category"`
	Direction         string              `json:"direction"`
	ClaimID           string              `json:"claimId"`
	ContextID         string              `json:"contextId"`
	Scope             model.EvidenceScope `json:"scope"`
	ProbativeValue    string              `json:"probativeValue"`
	SourceType        string              `json:"sourceType"`
	ContestedStrength string              `json:"contestedStrength"`
}

type extraction struct {
	Evidence []draftItem `json:"evidence"`
}

// EvidenceExtractor turns fetched source text into evidence items
type EvidenceExtractor struct {
	client     llm.Client
	classifier *validate.SourceClassifier
	maxChars   int
	maxItems   int
	determ     bool
	logger     *zap.Logger
}

// NewEvidenceExtractor creates a new evidence extractor
func NewEvidenceExtractor(cfg model.PipelineConfig, client llm.Client, classifier *validate.SourceClassifier, logger *zap.Logger) *EvidenceExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classifier == nil {
		classifier = validate.NewSourceClassifier(nil)
	}
	return &EvidenceExtractor{
		client:     client,
		classifier: classifier,
		maxChars:   cfg.SourceTextMaxChars,
		maxItems:   DefaultMaxItemsPerSource,
		determ:     cfg.Deterministic,
		logger:     logger,
	}
}

// Extract returns the evidence a source offers for the target. Items carry
// no id yet; see NumberEvidence. An empty source yields no items and no error.
func (e *EvidenceExtractor) Extract(ctx context.Context, src Source, target Target) ([]model.EvidenceItem, error) {
	text := strings.TrimSpace(src.Text)
	if text == "" {
		return nil, nil
	}
	if e.client == nil {
		return nil, fmt.Errorf("extract evidence from %s: %w", src.URL, llm.ErrNoProviders)
	}
	text, cut := Truncate(text, e.maxChars)
	if cut {
		e.logger.Debug("source text truncated", zap.String("url", src.URL), zap.Int("max_chars", e.maxChars))
	}

	req := llm.Request{
		System:        evidenceSystemPrompt,
		User:          buildEvidencePrompt(src, target, text),
		Deterministic: e.determ,
	}
	result, err := llm.CallJSON[extraction](ctx, e.client, req, nil)
	if err != nil {
		return nil, fmt.Errorf("extract evidence from %s: %w", src.URL, err)
	}

	items := e.normalize(result.Evidence, src, target)
	e.logger.Debug("evidence extracted",
		zap.String("url", src.URL),
		zap.String("context", target.Context.ID),
		zap.Int("items", len(items)))
	return items, nil
}

func buildEvidencePrompt(src Source, target Target, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Input under analysis:\n%s\n\n", target.Input)
	fmt.Fprintf(&b, "Context %s: %s\n", target.Context.ID, target.Context.Name)
	if target.Context.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", target.Context.Subject)
	}
	if len(target.Claims) > 0 {
		b.WriteString("\nClaims:\n")
		for _, c := range target.Claims {
			fmt.Fprintf(&b, "- %s: %s\n", c.ID, c.Text)
		}
	}
	fmt.Fprintf(&b, "\nSource: %s\n", src.URL)
	if src.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", src.Title)
	}
	fmt.Fprintf(&b, "\nDocument:\n%s\n", text)
	return b.String()
}

// normalize fixes enums and references the model got wrong
func (e *EvidenceExtractor) normalize(drafts []draftItem, src Source, target Target) []model.EvidenceItem {
	knownClaims := make(map[string]bool, len(target.Claims))
	for _, c := range target.Claims {
		knownClaims[strings.ToUpper(c.ID)] = true
	}
	knownContexts := map[string]bool{target.Context.ID: true}
	for _, id := range target.Contexts {
		knownContexts[id] = true
	}
	defaultType := e.classifier.Classify(src.URL)

	var items []model.EvidenceItem
	for _, d := range drafts {
		statement := strings.Join(strings.Fields(d.Statement), " ")
		if statement == "" {
			continue
		}
		item := model.EvidenceItem{
			Statement:         statement,
			Category:          model.ParseCategory(d.Category),
			Direction:         model.ParseDirection(d.Direction),
			ContextID:         target.Context.ID,
			Scope:             trimScope(d.Scope),
			ProbativeValue:    model.ParseProbativeValue(d.ProbativeValue),
			SourceType:        model.ParseSourceType(d.SourceType),
			ContestedStrength: model.ParseContestedStrength(d.ContestedStrength),
			SourceURL:         src.URL,
			SourceTitle:       src.Title,
			SourceExcerpt:     strings.TrimSpace(d.Excerpt),
			Round:             target.Round,
		}
		if id := strings.ToUpper(strings.TrimSpace(d.ClaimID)); knownClaims[id] {
			item.ClaimID = id
		}
		if id := strings.TrimSpace(d.ContextID); knownContexts[id] {
			item.ContextID = id
		}
		if item.SourceType == "" {
			item.SourceType = defaultType
		}
		if item.Direction != model.DirectionContradicts {
			item.ContestedStrength = model.ContestedNone
		}
		items = append(items, item)
		if len(items) == e.maxItems {
			break
		}
	}
	return items
}

func trimScope(s model.EvidenceScope) model.EvidenceScope {
	return model.EvidenceScope{
		Methodology: strings.TrimSpace(s.Methodology),
		Temporal:    strings.TrimSpace(s.Temporal),
		Geographic:  strings.TrimSpace(s.Geographic),
		Boundaries:  strings.TrimSpace(s.Boundaries),
	}
}

// NumberEvidence assigns E<round>-<n> ids, continuing after start
func NumberEvidence(items []model.EvidenceItem, round, start int) []model.EvidenceItem {
	out := make([]model.EvidenceItem, len(items))
	for i, item := range items {
		item.ID = fmt.Sprintf("E%d-%d", round, start+i+1)
		item.Round = round
		out[i] = item
	}
	return out
}

// Truncate cuts text to at most limit runes. limit <= 0 disables it.
func Truncate(text string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i], true
		}
		n++
	}
	return text, false
}
