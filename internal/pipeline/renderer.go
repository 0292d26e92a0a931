package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/factlens/internal/model"
)

// Renderer writes reports as JSON, Markdown and a terminal summary
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes the report as indented JSON
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the report as Markdown
func (r *Renderer) RenderMarkdown(report *model.Report, path string) error {
	var b strings.Builder
	r.WriteMarkdown(&b, report)
	return writeFile(path, []byte(b.String()))
}

// WriteMarkdown renders the report to w
func (r *Renderer) WriteMarkdown(w io.Writer, report *model.Report) {
	names := make(map[string]string, len(report.Contexts))
	for _, c := range report.Contexts {
		names[c.ID] = c.Name
	}

	fmt.Fprintf(w, "# Fact-check report\n\n")
	fmt.Fprintf(w, "- **Run:** `%s`\n", report.RunID)
	fmt.Fprintf(w, "- **Status:** %s\n", report.Status)
	if report.Error != "" {
		fmt.Fprintf(w, "- **Error:** %s\n", report.Error)
	}
	if report.Input.URL != "" {
		fmt.Fprintf(w, "- **Input:** %s\n", report.Input.URL)
	} else {
		fmt.Fprintf(w, "- **Input:** %s\n", oneLine(report.Input.Text, 200))
	}
	if report.ImpliedClaim != "" {
		fmt.Fprintf(w, "- **Implied claim:** %s\n", report.ImpliedClaim)
	}
	fmt.Fprintf(w, "\n")

	if len(report.Verdicts) > 0 {
		fmt.Fprintf(w, "## Verdicts\n\n")
		fmt.Fprintf(w, "| Context | Verdict | Truth | Confidence | Tier | Published |\n")
		fmt.Fprintf(w, "|---|---|---|---|---|---|\n")
		for _, v := range report.Verdicts {
			published := "yes"
			if !v.Publishable {
				published = "withheld"
			}
			fmt.Fprintf(w, "| %s | %s | %d%% | %d%% | %s | %s |\n",
				cell(v.ContextName), v.Label, v.TruthPercentage, v.Confidence, v.Tier, published)
		}
		fmt.Fprintf(w, "\n")

		for _, v := range report.Verdicts {
			if v.Publishable || len(v.WithheldReasons) == 0 {
				continue
			}
			fmt.Fprintf(w, "**%s** withheld:\n", v.ContextName)
			for _, reason := range v.WithheldReasons {
				fmt.Fprintf(w, "- %s\n", reason)
			}
			fmt.Fprintf(w, "\n")
		}
	}

	if len(report.Claims) > 0 {
		fmt.Fprintf(w, "## Claims\n\n")
		for _, c := range report.Claims {
			status := ""
			if c.Validation != nil && !c.Validation.Passed {
				status = fmt.Sprintf(" _(rejected: %s)_", c.Validation.FailureReason)
			}
			fmt.Fprintf(w, "- **%s** [%s] %s%s\n", c.ID, c.Centrality, c.Text, status)
		}
		fmt.Fprintf(w, "\n")
	}

	if len(report.Evidence) > 0 {
		fmt.Fprintf(w, "## Evidence\n\n")
		fmt.Fprintf(w, "| ID | Context | Direction | Value | Statement | Source |\n")
		fmt.Fprintf(w, "|---|---|---|---|---|---|\n")
		for _, e := range report.Evidence {
			fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s |\n",
				e.ID, cell(names[e.ContextID]), e.Direction, e.ProbativeValue, cell(oneLine(e.Statement, 160)), e.SourceURL)
		}
		fmt.Fprintf(w, "\n")
	}

	if len(report.Transitions) > 0 {
		fmt.Fprintf(w, "## Context transitions\n\n")
		for _, t := range report.Transitions {
			fmt.Fprintf(w, "### %s\n\n", t.Phase)
			fmt.Fprintf(w, "- Before: %s\n", idList(t.Before))
			fmt.Fprintf(w, "- After: %s\n", idList(t.After))
			for _, m := range t.Merged {
				fmt.Fprintf(w, "- Merged %s into %s\n", m.From, m.Into)
			}
			for _, rn := range t.Renamed {
				fmt.Fprintf(w, "- Renamed %s: %q to %q\n", rn.ID, rn.OldName, rn.NewName)
			}
			if len(t.Removed) > 0 {
				fmt.Fprintf(w, "- Removed: %s\n", idList(t.Removed))
			}
			if len(t.ReassignedToFallback) > 0 {
				fmt.Fprintf(w, "- Reassigned to general context: %s\n", idList(t.ReassignedToFallback))
			}
			fmt.Fprintf(w, "\n")
		}
	}

	if len(report.Sources) > 0 {
		fmt.Fprintf(w, "## Sources\n\n")
		fmt.Fprintf(w, "| Domain | Reliability | Confidence | Consensus | Evidence | URL |\n")
		fmt.Fprintf(w, "|---|---|---|---|---|---|\n")
		sources := append([]model.SourceSnapshot(nil), report.Sources...)
		sort.SliceStable(sources, func(i, j int) bool { return sources[i].Domain < sources[j].Domain })
		for _, s := range sources {
			reliability := fmt.Sprintf("%.2f", s.Score.Score)
			if s.Score.Default {
				reliability += " (default)"
			}
			consensus := "no"
			if s.Score.Consensus {
				consensus = "yes"
			}
			url := s.URL
			if s.Error != "" {
				url += " (" + cell(oneLine(s.Error, 80)) + ")"
			}
			fmt.Fprintf(w, "| %s | %s | %.2f | %s | %d | %s |\n",
				s.Domain, reliability, s.Score.Confidence, consensus, s.Evidence, url)
		}
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "## Budget\n\n")
	fmt.Fprintf(w, "- Mode: %s\n", report.Budget.Mode)
	fmt.Fprintf(w, "- Rounds: %d of %d\n", report.Budget.TotalRounds, report.Budget.MaxTotalRounds)
	fmt.Fprintf(w, "- Tokens: %d of %d\n", report.Budget.TokensUsed, report.Budget.MaxTokens)
	if report.Budget.Exhausted {
		fmt.Fprintf(w, "- Exhausted: %s\n", report.Budget.ExhaustedReason)
	}
	fmt.Fprintf(w, "\n")

	if len(report.Warnings) > 0 {
		fmt.Fprintf(w, "## Warnings\n\n")
		for _, wn := range report.Warnings {
			fmt.Fprintf(w, "- [%s] %s: %s\n", wn.Phase, wn.Code, wn.Message)
		}
		fmt.Fprintf(w, "\n")
	}

	if r.includeFooter {
		fmt.Fprintf(w, "---\n\n_Withheld verdicts are computed but lack the evidence or confidence to publish._\n")
	}
}

// RenderSummary prints a short summary
func (r *Renderer) RenderSummary(w io.Writer, report *model.Report) {
	fmt.Fprintf(w, "%s  %s\n", report.Status, report.RunID)
	if report.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", report.Error)
	}
	for _, v := range report.Verdicts {
		mark := "✓"
		if !v.Publishable {
			mark = "·"
		}
		fmt.Fprintf(w, "  %s %-40s %-14s %3d%%  confidence %3d%%  %s\n",
			mark, oneLine(v.ContextName, 40), v.Label, v.TruthPercentage, v.Confidence, v.Tier)
	}
	fmt.Fprintf(w, "  evidence %d, rejected %d, sources %d, rounds %d, tokens %d\n",
		len(report.Evidence), len(report.Rejected), len(report.Sources), report.Budget.TotalRounds, report.LLM.Tokens)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func idList(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}
