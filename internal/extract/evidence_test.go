package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/llm/llmtest"
	"github.com/ppiankov/factlens/internal/model"
)

func evidenceTarget() Target {
	return Target{
		Input:    "Brazil's court convicted the former president under due process",
		Context:  model.AnalysisContext{ID: "CTX_STF", Name: "Brazil Supreme Court"},
		Contexts: []string{"CTX_STF", "CTX_TSE"},
		Claims: []model.Claim{
			{ID: "SC1", Text: "The trial followed due process"},
			{ID: "SC2", Text: "The conviction was unanimous"},
		},
		Round: 2,
	}
}

func newTestExtractor(t *testing.T, replies ...llmtest.Reply) (*EvidenceExtractor, *llmtest.Provider) {
	t.Helper()
	p := llmtest.New("scripted", replies...)
	cfg := model.DefaultConfig().Pipeline
	cfg.SourceTextMaxChars = 40
	return NewEvidenceExtractor(cfg, llmtest.Gateway(p), nil, nil), p
}

func TestEvidenceExtractor_Normalize(t *testing.T) {
	reply := map[string]any{
		"evidence": []map[string]any{
			{
				"statement":         "  The court   heard both defences  ",
				"excerpt":           "both defences were heard",
				"category":          "Direct Evidence",
				"direction":         "supporting",
				"claimId":           "sc1",
				"contextId":         "CTX_TSE",
				"probativeValue":    "HIGH",
				"sourceType":        "legal_document",
				"contestedStrength": "established",
			},
			{
				"statement":         "Critics called the ruling political",
				"category":          "criticism",
				"direction":         "contradicts",
				"claimId":           "SC9",
				"contextId":         "CTX_UNKNOWN",
				"probativeValue":    "maybe",
				"sourceType":        "tabloid",
				"contestedStrength": "disputed",
			},
			{
				"statement": "   ",
			},
		},
	}
	extractor, _ := newTestExtractor(t, llmtest.JSON(reply))

	src := Source{URL: "https://www.reuters.com/world/ruling", Title: "Ruling", Text: "The court heard both defences."}
	items, err := extractor.Extract(context.Background(), src, evidenceTarget())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.Statement != "The court heard both defences" {
		t.Errorf("Expected collapsed whitespace, got %q", first.Statement)
	}
	if first.Category != model.CategoryDirect {
		t.Errorf("Expected direct_evidence, got %q", first.Category)
	}
	if first.Direction != model.DirectionSupports {
		t.Errorf("Expected supports, got %q", first.Direction)
	}
	if first.ClaimID != "SC1" {
		t.Errorf("Expected claim SC1, got %q", first.ClaimID)
	}
	if first.ContextID != "CTX_TSE" {
		t.Errorf("Expected known context CTX_TSE to be kept, got %q", first.ContextID)
	}
	if first.ProbativeValue != model.ProbativeHigh {
		t.Errorf("Expected high probative value, got %q", first.ProbativeValue)
	}
	if first.SourceType != model.SourceLegal {
		t.Errorf("Expected legal_document, got %q", first.SourceType)
	}
	if first.ContestedStrength != model.ContestedNone {
		t.Errorf("Expected contested strength cleared for supporting item, got %q", first.ContestedStrength)
	}
	if first.SourceURL != src.URL || first.SourceTitle != "Ruling" || first.Round != 2 {
		t.Errorf("Expected source fields to be copied, got %+v", first)
	}
	if first.ID != "" {
		t.Errorf("Expected no id before numbering, got %q", first.ID)
	}

	second := items[1]
	if second.ClaimID != "" {
		t.Errorf("Expected unknown claim to be cleared, got %q", second.ClaimID)
	}
	if second.ContextID != "CTX_STF" {
		t.Errorf("Expected unknown context to fall back to target, got %q", second.ContextID)
	}
	if second.ProbativeValue != model.ProbativeLow {
		t.Errorf("Expected low probative value, got %q", second.ProbativeValue)
	}
	if second.SourceType != model.SourceNewsPrimary {
		t.Errorf("Expected classifier default news_primary, got %q", second.SourceType)
	}
	if second.ContestedStrength != model.ContestedDisputed {
		t.Errorf("Expected disputed counter-evidence, got %q", second.ContestedStrength)
	}
}

func TestEvidenceExtractor_TruncatesPrompt(t *testing.T) {
	extractor, p := newTestExtractor(t, llmtest.JSON(map[string]any{"evidence": []any{}}))

	text := strings.Repeat("a", 40) + "TAIL_MARKER"
	items, err := extractor.Extract(context.Background(), Source{URL: "https://example.org", Text: text}, evidenceTarget())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items, got %d", len(items))
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(calls))
	}
	if strings.Contains(calls[0].User, "TAIL_MARKER") {
		t.Error("Expected source text beyond the limit to be cut")
	}
	if !strings.Contains(calls[0].User, "SC2: The conviction was unanimous") {
		t.Error("Expected claims to be listed in the prompt")
	}
}

func TestEvidenceExtractor_EmptySource(t *testing.T) {
	extractor, p := newTestExtractor(t)

	items, err := extractor.Extract(context.Background(), Source{URL: "https://example.org", Text: "  "}, evidenceTarget())
	if err != nil || items != nil {
		t.Errorf("Expected no items and no error, got %v, %v", items, err)
	}
	if p.CallCount() != 0 {
		t.Errorf("Expected no model call, got %d", p.CallCount())
	}
}

func TestEvidenceExtractor_Errors(t *testing.T) {
	extractor := NewEvidenceExtractor(model.DefaultConfig().Pipeline, nil, nil, nil)
	_, err := extractor.Extract(context.Background(), Source{Text: "something"}, evidenceTarget())
	if !errors.Is(err, llm.ErrNoProviders) {
		t.Errorf("Expected ErrNoProviders without a client, got %v", err)
	}

	failing, _ := newTestExtractor(t, llmtest.Fail(errors.New("boom")))
	_, err = failing.Extract(context.Background(), Source{URL: "https://example.org", Text: "something"}, evidenceTarget())
	if err == nil || !strings.Contains(err.Error(), "https://example.org") {
		t.Errorf("Expected wrapped provider error, got %v", err)
	}
}

func TestNumberEvidence(t *testing.T) {
	items := []model.EvidenceItem{{Statement: "a"}, {Statement: "b"}}

	numbered := NumberEvidence(items, 3, 4)

	if numbered[0].ID != "E3-5" || numbered[1].ID != "E3-6" {
		t.Errorf("Expected E3-5 and E3-6, got %s and %s", numbered[0].ID, numbered[1].ID)
	}
	if numbered[0].Round != 3 {
		t.Errorf("Expected round 3, got %d", numbered[0].Round)
	}
	if items[0].ID != "" {
		t.Error("Expected input items to be left untouched")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
		cut   bool
	}{
		{"under limit", "short", 10, "short", false},
		{"exact limit", "exact", 5, "exact", false},
		{"disabled", "anything", 0, "anything", false},
		{"ascii cut", "abcdef", 3, "abc", true},
		{"multibyte cut", "héllo wörld", 5, "héllo", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cut := Truncate(tt.text, tt.limit)
			if got != tt.want || cut != tt.cut {
				t.Errorf("Truncate(%q, %d) = %q, %v; want %q, %v", tt.text, tt.limit, got, cut, tt.want, tt.cut)
			}
		})
	}
}
