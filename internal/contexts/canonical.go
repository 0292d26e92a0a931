package contexts

import (
	"sort"
	"strings"

	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/textsim"
)

// Candidate is a context as proposed by a model call
type Candidate struct {
	ID                       string            `json:"id,omitempty"`
	Name                     string            `json:"name"`
	Subject                  string            `json:"subject,omitempty"`
	Temporal                 string            `json:"temporal,omitempty"`
	Status                   string            `json:"status,omitempty"`
	Outcome                  string            `json:"outcome,omitempty"`
	Metadata                 map[string]string `json:"metadata,omitempty"`
	RequiresSeparateAnalysis bool              `json:"requiresSeparateAnalysis"`
}

// Canonicalize normalizes a candidate's name and metadata and assigns its
// stable id. The second return value is false for candidates without a name.
func Canonicalize(c Candidate) (model.AnalysisContext, bool) {
	name := model.NormalizeContextName(c.Name)
	if name == "" {
		return model.AnalysisContext{}, false
	}
	ctx := model.AnalysisContext{
		ID:       model.ContextIDFor(name),
		Name:     name,
		Subject:  strings.TrimSpace(c.Subject),
		Temporal: strings.TrimSpace(c.Temporal),
		Status:   model.ParseContextStatus(c.Status),
		Outcome:  strings.TrimSpace(c.Outcome),
	}
	for k, v := range c.Metadata {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		if ctx.Metadata == nil {
			ctx.Metadata = make(map[string]string)
		}
		ctx.Metadata[k] = v
	}
	return ctx, true
}

// Similar reports whether two contexts describe the same frame
func Similar(a, b model.AnalysisContext, threshold float64) bool {
	if a.ID == b.ID {
		return true
	}
	return textsim.Similarity(a.Name, b.Name) >= threshold
}

// Dedup keeps the first of every group of similar contexts and reports
// which ids were folded into which. Running it on its own output returns
// the same set.
func Dedup(contexts []model.AnalysisContext, threshold float64) ([]model.AnalysisContext, []model.ContextMerge) {
	var kept []model.AnalysisContext
	var merges []model.ContextMerge
	for _, c := range contexts {
		into := ""
		for _, k := range kept {
			if Similar(k, c, threshold) {
				into = k.ID
				break
			}
		}
		if into == "" {
			kept = append(kept, c)
			continue
		}
		if c.ID != into {
			merges = append(merges, model.ContextMerge{From: c.ID, Into: into})
		}
	}
	return kept, merges
}

// mergeMap resolves chains of merges to their final target
func mergeMap(merges []model.ContextMerge) map[string]string {
	m := make(map[string]string, len(merges))
	for _, mg := range merges {
		m[mg.From] = mg.Into
	}
	resolve := func(id string) string {
		seen := map[string]bool{}
		for {
			next, ok := m[id]
			if !ok || seen[id] {
				return id
			}
			seen[id] = true
			id = next
		}
	}
	out := make(map[string]string, len(m))
	for from := range m {
		out[from] = resolve(from)
	}
	return out
}

// newTransition fills the before/after/created/removed lists
func newTransition(phase string, before, after []string) model.ContextTransition {
	inBefore := make(map[string]bool, len(before))
	for _, id := range before {
		inBefore[id] = true
	}
	inAfter := make(map[string]bool, len(after))
	for _, id := range after {
		inAfter[id] = true
	}

	t := model.ContextTransition{
		Phase:  phase,
		Before: append([]string{}, before...),
		After:  append([]string{}, after...),
	}
	for _, id := range after {
		if !inBefore[id] {
			t.Created = append(t.Created, id)
		}
	}
	for _, id := range before {
		if !inAfter[id] {
			t.Removed = append(t.Removed, id)
		}
	}
	return t
}

// CheckInvariants returns the violations of the context set invariants:
// the set is never empty and, when requireEvidence is set, every context
// has at least one assigned evidence item. A fallback context that is the
// whole set is exempt.
func CheckInvariants(set model.ContextSet, evidence []model.EvidenceItem, requireEvidence bool) []string {
	if set.Len() == 0 {
		return []string{"context set is empty"}
	}
	if !requireEvidence {
		return nil
	}
	counts := evidenceCounts(evidence)
	var problems []string
	for _, c := range set.All() {
		if counts[c.ID] == 0 && !(c.Fallback && set.Len() == 1) {
			problems = append(problems, "context "+c.ID+" has no evidence")
		}
	}
	sort.Strings(problems)
	return problems
}

func evidenceCounts(evidence []model.EvidenceItem) map[string]int {
	counts := make(map[string]int)
	for _, e := range evidence {
		if e.ContextID != "" {
			counts[e.ContextID]++
		}
	}
	return counts
}

// resolver maps names and ids proposed by a model onto context ids
type resolver struct {
	byID   map[string]string
	byName map[string]string
}

func newResolver(contexts []model.AnalysisContext) *resolver {
	r := &resolver{byID: make(map[string]string), byName: make(map[string]string)}
	for _, c := range contexts {
		r.add(c.ID, c)
	}
	return r
}

func (r *resolver) add(id string, c model.AnalysisContext) {
	r.byID[strings.ToUpper(c.ID)] = id
	r.byName[strings.ToLower(c.Name)] = id
}

func (r *resolver) resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if id, ok := r.byID[strings.ToUpper(ref)]; ok {
		return id, true
	}
	if id, ok := r.byName[strings.ToLower(model.NormalizeContextName(ref))]; ok {
		return id, true
	}
	if id, ok := r.byID[model.ContextIDFor(ref)]; ok {
		return id, true
	}
	return "", false
}
