package pipeline

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/factlens/internal/model"
)

func sampleReport() *model.Report {
	return &model.Report{
		RunID:        "run-1",
		Status:       model.StatusSucceeded,
		Input:        model.Input{Kind: model.KindText, Text: bridgeInput},
		ImpliedClaim: "The bridge opened in 1932",
		Contexts:     []model.AnalysisContext{{ID: "CTX_00000001", Name: "Bridge | opening"}},
		Claims: []model.Claim{
			{ID: "SC1", Text: bridgeInput, Centrality: model.CentralityHigh},
			{ID: "SC2", Text: "I think it is lovely", Validation: &model.ClaimValidation{FailureReason: "opinion"}},
		},
		Evidence: []model.EvidenceItem{{
			ID: "E1-1", Statement: "Opened 19 March 1932", ContextID: "CTX_00000001",
			Direction: model.DirectionSupports, SourceURL: "https://history.example.org/bridge",
		}},
		Verdicts: []model.Verdict{{
			ContextID: "CTX_00000001", ContextName: "Bridge | opening", Label: model.LabelTrue,
			TruthPercentage: 90, Confidence: 40, Tier: model.TierInsufficient,
			WithheldReasons: []string{"only 1 evidence item"},
		}},
		Transitions: []model.ContextTransition{{
			Phase: "CONTEXT_REFINEMENT", Before: []string{"CTX_00000001", "CTX_00000002"}, After: []string{"CTX_00000001"},
			Merged: []model.ContextMerge{{From: "CTX_00000002", Into: "CTX_00000001"}},
		}},
		Sources: []model.SourceSnapshot{{
			URL: "https://history.example.org/bridge", Domain: "history.example.org", Fetched: true, Evidence: 1,
			Score: model.CachedScore{Score: 0.5, Confidence: 0.1, Default: true},
		}},
		Budget:   model.BudgetSnapshot{Mode: "soft", TotalRounds: 1, MaxTotalRounds: 8, Exhausted: true, ExhaustedReason: LimitTokens},
		Warnings: []model.Warning{{Phase: PhaseResearch, Code: model.WarnFetchFailed, Message: "timeout"}},
	}
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(true).WriteMarkdown(&buf, sampleReport())
	out := buf.String()

	for _, want := range []string{
		"# Fact-check report",
		"| Bridge \\| opening | TRUE | 90% | 40% | INSUFFICIENT | withheld |",
		"**Bridge | opening** withheld:\n- only 1 evidence item",
		"**SC2** [] I think it is lovely _(rejected: opinion)_",
		"### CONTEXT_REFINEMENT",
		"- Merged CTX_00000002 into CTX_00000001",
		"| history.example.org | 0.50 (default) | 0.10 | no | 1 | https://history.example.org/bridge |",
		"- Exhausted: max_total_tokens",
		"- [RESEARCH] fetch_failed: timeout",
		"_Withheld verdicts",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Markdown missing %q\n%s", want, out)
		}
	}
}

func TestWriteMarkdown_NoFooter(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(false).WriteMarkdown(&buf, sampleReport())
	if strings.Contains(buf.String(), "_Withheld verdicts") {
		t.Error("Expected no footer")
	}
}

func TestRenderFiles(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(false)
	report := sampleReport()

	jsonPath := filepath.Join(dir, "out", "report.json")
	if err := r.RenderJSON(report, jsonPath); err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read JSON: %v", err)
	}
	var decoded model.Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if decoded.RunID != "run-1" || len(decoded.Verdicts) != 1 {
		t.Errorf("Unexpected decoded report: %+v", decoded)
	}

	mdPath := filepath.Join(dir, "report.md")
	if err := r.RenderMarkdown(report, mdPath); err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	if info, err := os.Stat(mdPath); err != nil || info.Size() == 0 {
		t.Errorf("Expected Markdown file, got %v", err)
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(false).RenderSummary(&buf, sampleReport())
	out := buf.String()
	if !strings.HasPrefix(out, "SUCCEEDED  run-1\n") {
		t.Errorf("Unexpected summary header: %q", out)
	}
	if !strings.Contains(out, "evidence 1, rejected 0, sources 1, rounds 1") {
		t.Errorf("Unexpected summary: %q", out)
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("a  b\n c", 10); got != "a b c" {
		t.Errorf("oneLine() = %q", got)
	}
	if got := oneLine("abcdefghij", 5); got != "abcd…" {
		t.Errorf("oneLine() = %q", got)
	}
}
