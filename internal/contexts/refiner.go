package contexts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/model"
)

const refinementSystemPrompt = `You revise the analytical contexts of a fact-check after research.
Each evidence item carries the scope of its source (methodology, time window, geography,
boundaries). Keep a context when evidence answers its question. Add a context only when a
cluster of evidence answers a genuinely different question (different institution,
methodology, jurisdiction, or a time period treated as its own subject). Merge contexts
that are the same frame. Keep existing ids for contexts you keep.
Respond with JSON only:
{"contexts": [{"id": "<existing id or empty>", "name": "...", "subject": "...", "temporal": "...",
               "status": "...", "outcome": "...", "metadata": {}}],
 "merges": [{"from": "<id>", "into": "<id>"}],
 "evidenceAssignments": {"<evidence id>": "<context id or name>"},
 "claimAssignments": {"<claim id>": ["<context id or name>"]}}`

type refinement struct {
	Contexts            []Candidate          `json:"contexts"`
	Merges              []model.ContextMerge `json:"merges"`
	EvidenceAssignments map[string]string    `json:"evidenceAssignments"`
	ClaimAssignments    map[string][]string  `json:"claimAssignments"`
}

func validateRefinement(r *refinement) error {
	if len(r.Contexts) == 0 {
		return errors.New("no contexts")
	}
	for i, c := range r.Contexts {
		if strings.TrimSpace(c.Name) == "" && strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("context %d has neither id nor name", i)
		}
	}
	return nil
}

// Refined is the result of the CONTEXT_REFINEMENT phase. Claims and
// Evidence are copies carrying the revised context assignments.
type Refined struct {
	Contexts   model.ContextSet
	Claims     []model.Claim
	Evidence   []model.EvidenceItem
	Transition model.ContextTransition
	Warnings   []model.Warning
}

// Refiner revisits contexts against the evidence actually found
type Refiner struct {
	cfg    model.Config
	client llm.Client
	logger *zap.Logger
}

// NewRefiner creates a refiner. A nil client skips the model proposal and
// applies only the deterministic pass.
func NewRefiner(cfg model.Config, client llm.Client, logger *zap.Logger) *Refiner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refiner{cfg: cfg, client: client, logger: logger}
}

// Refine proposes a revised context set from the evidence scopes, then
// merges similar contexts, removes contexts without evidence and clears
// assignments to removed contexts. If nothing survives, a single fallback
// context receives the unassigned evidence. The inputs are never modified.
// Losing every model provider is fatal.
func (r *Refiner) Refine(ctx context.Context, input string, set model.ContextSet, claims []model.Claim, evidence []model.EvidenceItem) (Refined, error) {
	out := Refined{
		Claims:   copyClaims(claims),
		Evidence: append([]model.EvidenceItem(nil), evidence...),
	}
	before := set.IDs()
	threshold := r.cfg.Pipeline.ContextSimilarityThreshold

	contexts := set.All()
	var merges []model.ContextMerge
	var renames []model.ContextRename

	if r.client != nil && set.Len() > 0 {
		proposal, err := r.propose(ctx, input, set, claims, evidence)
		switch {
		case err == nil:
			contexts, merges, renames = r.apply(proposal, set, out.Claims, out.Evidence)
		case ctx.Err() != nil:
			return Refined{}, ctx.Err()
		case errors.Is(err, llm.ErrProvidersExhausted), errors.Is(err, llm.ErrNoProviders):
			return Refined{}, fmt.Errorf("refine contexts: %w", err)
		case errors.Is(err, llm.ErrSchemaViolation):
			r.logger.Warn("context refinement returned invalid output, keeping previous contexts", zap.Error(err))
			out.Warnings = append(out.Warnings, refineWarning(model.WarnSchemaViolation, "context refinement: "+err.Error()))
		default:
			r.logger.Warn("context refinement failed, keeping previous contexts", zap.Error(err))
			out.Warnings = append(out.Warnings, refineWarning(model.WarnLLMUnavailable, "context refinement: "+err.Error()))
		}
	}

	// Deterministic merge of near-duplicates
	contexts, dedupMerges := Dedup(contexts, threshold)
	merges = append(merges, dedupMerges...)
	reassign(out.Claims, out.Evidence, mergeMap(merges))

	// Remove contexts without evidence, the fallback included
	counts := evidenceCounts(out.Evidence)
	kept := contexts[:0:0]
	for _, c := range contexts {
		if counts[c.ID] > 0 {
			kept = append(kept, c)
		}
	}
	contexts = kept
	clearRemoved(out.Claims, out.Evidence, contexts)

	transitionWarnings := []string{}
	var toFallback []string
	if len(contexts) == 0 {
		fallback := model.NewFallbackContext(input)
		contexts = []model.AnalysisContext{fallback}
		for i := range out.Evidence {
			if out.Evidence[i].ContextID == "" {
				out.Evidence[i].ContextID = fallback.ID
				toFallback = append(toFallback, out.Evidence[i].ID)
			}
		}
		for i := range out.Claims {
			if len(out.Claims[i].ContextIDs) == 0 {
				out.Claims[i].ContextIDs = []string{fallback.ID}
			}
		}
		transitionWarnings = append(transitionWarnings, "no context kept evidence, synthesized the general context")
	}

	out.Contexts = model.NewContextSet(contexts...)
	out.Transition = newTransition(PhaseRefinement, before, out.Contexts.IDs())
	out.Transition.Merged = merges
	out.Transition.Renamed = renames
	out.Transition.ReassignedToFallback = toFallback
	for _, w := range out.Warnings {
		out.Transition.Warnings = append(out.Transition.Warnings, w.Message)
	}
	out.Transition.Warnings = append(out.Transition.Warnings, transitionWarnings...)

	r.logger.Info("contexts refined",
		zap.Strings("before", before),
		zap.Strings("after", out.Contexts.IDs()),
		zap.Int("merged", len(merges)),
		zap.Int("reassigned_to_fallback", len(toFallback)))
	return out, nil
}

// propose issues the refinement call. Once issued it runs to completion;
// a cancelled ctx discards its result.
func (r *Refiner) propose(ctx context.Context, input string, set model.ContextSet, claims []model.Claim, evidence []model.EvidenceItem) (refinement, error) {
	if err := ctx.Err(); err != nil {
		return refinement{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Input:\n%s\n\nCurrent contexts:\n", input)
	for _, c := range set.All() {
		fmt.Fprintf(&b, "- %s: %s", c.ID, c.Name)
		if c.Subject != "" {
			fmt.Fprintf(&b, " (%s)", c.Subject)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nClaims:\n")
	for _, c := range claims {
		fmt.Fprintf(&b, "- %s [%s]: %s\n", c.ID, strings.Join(c.ContextIDs, ","), c.Text)
	}
	b.WriteString("\nEvidence:\n")
	for _, e := range evidence {
		fmt.Fprintf(&b, "- %s [%s] %s", e.ID, e.ContextID, e.Statement)
		if !e.Scope.IsZero() {
			fmt.Fprintf(&b, " | scope: methodology=%q temporal=%q geographic=%q boundaries=%q",
				e.Scope.Methodology, e.Scope.Temporal, e.Scope.Geographic, e.Scope.Boundaries)
		}
		b.WriteString("\n")
	}
	req := llm.Request{
		System:        refinementSystemPrompt,
		User:          b.String(),
		Deterministic: r.cfg.Pipeline.Deterministic,
	}
	p, err := llm.CallJSON(context.WithoutCancel(ctx), r.client, req, validateRefinement)
	if ctx.Err() != nil {
		return refinement{}, ctx.Err()
	}
	return p, err
}

// apply turns a proposal into a context list and rewrites the copied
// assignments. Existing ids stay stable; renames are recorded.
func (r *Refiner) apply(p refinement, set model.ContextSet, claims []model.Claim, evidence []model.EvidenceItem) ([]model.AnalysisContext, []model.ContextMerge, []model.ContextRename) {
	prev := set.All()
	prevRes := newResolver(prev)

	var contexts []model.AnalysisContext
	var renames []model.ContextRename
	seen := make(map[string]bool)
	for _, cand := range p.Contexts {
		existingID, known := prevRes.resolve(cand.ID)
		if strings.TrimSpace(cand.Name) == "" {
			if !known {
				continue
			}
			old, _ := set.Get(existingID)
			cand.Name = old.Name
		}
		c, ok := Canonicalize(cand)
		if !ok {
			continue
		}
		if known {
			old, _ := set.Get(existingID)
			if old.Name != c.Name && !old.Fallback {
				renames = append(renames, model.ContextRename{ID: existingID, OldName: old.Name, NewName: c.Name})
			}
			c.ID = existingID
			c.Fallback = old.Fallback
			if old.Fallback {
				c.Name = old.Name
			}
		} else if id, ok := prevRes.resolve(c.Name); ok {
			old, _ := set.Get(id)
			c = old
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		contexts = append(contexts, c)
	}

	res := newResolver(contexts)
	for _, c := range prev {
		if _, ok := res.byID[c.ID]; !ok {
			// Old names still resolve to their id so merges can name them
			res.byName[strings.ToLower(c.Name)] = c.ID
			res.byID[c.ID] = c.ID
		}
	}

	var merges []model.ContextMerge
	for _, m := range p.Merges {
		from, okFrom := res.resolve(m.From)
		into, okInto := res.resolve(m.Into)
		if !okFrom || !okInto || from == into || !seen[into] {
			continue
		}
		merges = append(merges, model.ContextMerge{From: from, Into: into})
	}
	mm := mergeMap(merges)
	var merged []model.AnalysisContext
	for _, c := range contexts {
		if _, folded := mm[c.ID]; !folded {
			merged = append(merged, c)
		}
	}

	for i := range evidence {
		if ref, ok := p.EvidenceAssignments[evidence[i].ID]; ok {
			if id, ok := res.resolve(ref); ok {
				evidence[i].ContextID = id
			}
		}
	}
	for i := range claims {
		refs, ok := p.ClaimAssignments[claims[i].ID]
		if !ok {
			continue
		}
		var ids []string
		for _, ref := range refs {
			if id, ok := res.resolve(ref); ok && !contains(ids, id) {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			claims[i].ContextIDs = ids
		}
	}
	return merged, merges, renames
}

// reassign applies an explicit merge mapping to the copied assignments
func reassign(claims []model.Claim, evidence []model.EvidenceItem, mm map[string]string) {
	if len(mm) == 0 {
		return
	}
	for i := range evidence {
		if into, ok := mm[evidence[i].ContextID]; ok {
			evidence[i].ContextID = into
		}
	}
	for i := range claims {
		var ids []string
		for _, id := range claims[i].ContextIDs {
			if into, ok := mm[id]; ok {
				id = into
			}
			if !contains(ids, id) {
				ids = append(ids, id)
			}
		}
		claims[i].ContextIDs = ids
	}
}

// clearRemoved drops assignments to contexts that are no longer in the set
func clearRemoved(claims []model.Claim, evidence []model.EvidenceItem, contexts []model.AnalysisContext) {
	alive := make(map[string]bool, len(contexts))
	for _, c := range contexts {
		alive[c.ID] = true
	}
	for i := range evidence {
		if !alive[evidence[i].ContextID] {
			evidence[i].ContextID = ""
		}
	}
	for i := range claims {
		var ids []string
		for _, id := range claims[i].ContextIDs {
			if alive[id] {
				ids = append(ids, id)
			}
		}
		claims[i].ContextIDs = ids
	}
}

func copyClaims(claims []model.Claim) []model.Claim {
	out := make([]model.Claim, len(claims))
	for i, c := range claims {
		c.ContextIDs = append([]string(nil), c.ContextIDs...)
		out[i] = c
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func refineWarning(code, msg string) model.Warning {
	return model.Warning{Phase: PhaseRefinement, Code: code, Message: msg}
}
