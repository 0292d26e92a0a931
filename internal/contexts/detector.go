package contexts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/validate"
)

// Phase names recorded in context transitions
const (
	PhaseUnderstand = "UNDERSTAND"
	PhaseRefinement = "CONTEXT_REFINEMENT"
)

const detectionSystemPrompt = `You prepare an input (article, question or claim) for fact-checking.
Decide how many independent analytical contexts it requires. A context is a bounded
frame such as a specific institution or proceeding, jurisdiction, methodology or time
window that needs its own verdict. Mark requiresSeparateAnalysis=true for each context
that must be judged on its own.
Also decompose the input into atomic, checkable claims and propose web search queries.
Respond with JSON only:
{"impliedClaim": "...",
 "contexts": [{"name": "...", "subject": "...", "temporal": "...", "status": "concluded|ongoing|pending|unknown",
               "outcome": "...", "metadata": {"institution": "...", "jurisdiction": "...", "methodology": "..."},
               "requiresSeparateAnalysis": true}],
 "claims": [{"text": "...", "centrality": "high|medium|low", "dependsOn": "SC1", "contexts": ["<context name>"]}],
 "searchQueries": ["..."]}`

// ErrEmptyInput is returned for blank input
var ErrEmptyInput = errors.New("input is empty")

// ClaimSplitter produces heuristic claims when no model result is available
type ClaimSplitter interface {
	FromText(text string) []model.Claim
}

type claimDraft struct {
	Text       string   `json:"text"`
	Centrality string   `json:"centrality"`
	DependsOn  string   `json:"dependsOn"`
	Contexts   []string `json:"contexts"`
}

type detection struct {
	ImpliedClaim  string       `json:"impliedClaim"`
	Contexts      []Candidate  `json:"contexts"`
	Claims        []claimDraft `json:"claims"`
	SearchQueries []string     `json:"searchQueries"`
}

func validateDetection(d *detection) error {
	if len(d.Contexts) == 0 && len(d.Claims) == 0 {
		return errors.New("no contexts and no claims")
	}
	for i, c := range d.Contexts {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("context %d has no name", i)
		}
	}
	return nil
}

// Understanding is the result of the UNDERSTAND phase
type Understanding struct {
	ImpliedClaim string
	Contexts     model.ContextSet
	Claims       []model.Claim
	Queries      []string
	Seeds        []Seed
	Transition   model.ContextTransition
	Warnings     []model.Warning
}

// Detector runs the UNDERSTAND phase
type Detector struct {
	cfg    model.Config
	client llm.Client
	claims ClaimSplitter
	logger *zap.Logger
}

// NewDetector creates a detector. client may be nil, in which case
// understanding always falls back to heuristics.
func NewDetector(cfg model.Config, client llm.Client, claims ClaimSplitter, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{cfg: cfg, client: client, claims: claims, logger: logger}
}

// Understand detects the contexts and claims of an input. It fails only
// when the input is empty, ctx is cancelled, or every model provider is
// unavailable; schema violations degrade to the heuristic fallback.
func (d *Detector) Understand(ctx context.Context, text string) (Understanding, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Understanding{}, ErrEmptyInput
	}

	threshold := d.cfg.Pipeline.ContextSimilarityThreshold
	u := Understanding{Seeds: DetectSeeds(text, threshold)}

	var det *detection
	if d.client != nil {
		result, err := d.detect(ctx, text, u.Seeds, false)
		switch {
		case err == nil:
			det = &result
		case ctx.Err() != nil:
			return Understanding{}, ctx.Err()
		case errors.Is(err, llm.ErrSchemaViolation):
			d.logger.Warn("context detection returned invalid output, using heuristics", zap.Error(err))
			u.Warnings = append(u.Warnings, warning(model.WarnSchemaViolation, "context detection: "+err.Error()))
		default:
			return Understanding{}, fmt.Errorf("detect contexts: %w", err)
		}
	} else {
		u.Warnings = append(u.Warnings, warning(model.WarnLLMUnavailable, "no model configured, using heuristics"))
	}

	var contexts []model.AnalysisContext
	var merges []model.ContextMerge
	if det != nil {
		u.ImpliedClaim = strings.TrimSpace(det.ImpliedClaim)
		u.Queries = cleanQueries(det.SearchQueries)
		contexts, merges = Dedup(selectCandidates(det.Contexts), threshold)
	}

	if d.cfg.Pipeline.Deterministic && IsComparative(text) && len(u.Seeds) >= 2 && len(contexts) <= 1 {
		if det != nil && d.cfg.Pipeline.SupplementalDetection {
			d.logger.Info("context detection collapsed a comparative input, running supplemental detection",
				zap.Int("seeds", len(u.Seeds)), zap.Int("contexts", len(contexts)))
			extra, err := d.detect(ctx, text, u.Seeds, true)
			if err != nil && ctx.Err() != nil {
				return Understanding{}, ctx.Err()
			}
			if err == nil {
				more, extraMerges := Dedup(append(contexts, selectCandidates(extra.Contexts)...), threshold)
				contexts = more
				merges = append(merges, extraMerges...)
				if len(det.Claims) == 0 {
					det.Claims = extra.Claims
				}
			} else {
				d.logger.Warn("supplemental detection failed", zap.Error(err))
			}
		}
		if len(contexts) < 2 {
			forced, forcedMerges := withSeeds(seedContexts(u.Seeds), contexts, threshold)
			contexts = forced
			merges = append(merges, forcedMerges...)
			u.Warnings = append(u.Warnings, warning(model.WarnForcedSeeds,
				fmt.Sprintf("forced %d heuristic contexts into a collapsed comparative input", len(u.Seeds))))
		}
	}

	if len(contexts) == 0 {
		if len(u.Seeds) >= 2 {
			contexts = seedContexts(u.Seeds)
			u.Warnings = append(u.Warnings, warning(model.WarnSeedFallback, "using heuristic contexts"))
		} else {
			contexts = []model.AnalysisContext{model.NewFallbackContext(text)}
		}
	}

	u.Contexts = model.NewContextSet(contexts...)

	var drafts []claimDraft
	if det != nil {
		drafts = det.Claims
	}
	u.Claims = d.buildClaims(drafts, contexts, merges)
	if len(u.Claims) == 0 && d.claims != nil {
		u.Claims = d.heuristicClaims(text, contexts)
		u.Warnings = append(u.Warnings, warning(model.WarnHeuristicClaims, "claims extracted heuristically"))
	}
	if u.ImpliedClaim == "" && len(u.Claims) > 0 {
		u.ImpliedClaim = u.Claims[0].Text
	}

	u.Transition = newTransition(PhaseUnderstand, nil, u.Contexts.IDs())
	u.Transition.Merged = merges
	for _, w := range u.Warnings {
		u.Transition.Warnings = append(u.Transition.Warnings, w.Message)
	}

	d.logger.Info("understanding complete",
		zap.Int("contexts", u.Contexts.Len()),
		zap.Int("claims", len(u.Claims)),
		zap.Int("seeds", len(u.Seeds)))
	return u, nil
}

// detect issues one detection call. Once issued the call runs to
// completion; a cancelled ctx discards its result.
func (d *Detector) detect(ctx context.Context, text string, seeds []Seed, forceSplit bool) (detection, error) {
	if err := ctx.Err(); err != nil {
		return detection{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Input:\n%s\n", text)
	if len(seeds) > 0 {
		b.WriteString("\nPossible separate contexts found by pattern matching:\n")
		for _, s := range seeds {
			fmt.Fprintf(&b, "- %s (%s)\n", s.Name, s.Pattern)
		}
	}
	if forceSplit {
		b.WriteString("\nThe input compares several frames. Return at least two contexts, one per frame compared.\n")
	}
	req := llm.Request{
		System:        detectionSystemPrompt,
		User:          b.String(),
		Deterministic: d.cfg.Pipeline.Deterministic,
	}
	det, err := llm.CallJSON(context.WithoutCancel(ctx), d.client, req, validateDetection)
	if ctx.Err() != nil {
		return detection{}, ctx.Err()
	}
	return det, err
}

// selectCandidates canonicalizes the candidates that need their own
// analysis. When none is flagged, the first candidate alone is kept.
func selectCandidates(candidates []Candidate) []model.AnalysisContext {
	var flagged, all []model.AnalysisContext
	for _, c := range candidates {
		ctx, ok := Canonicalize(c)
		if !ok {
			continue
		}
		all = append(all, ctx)
		if c.RequiresSeparateAnalysis {
			flagged = append(flagged, ctx)
		}
	}
	if len(flagged) > 0 {
		return flagged
	}
	if len(all) > 0 {
		return all[:1]
	}
	return nil
}

// withSeeds keeps every seed context and adds the model contexts that do
// not duplicate one. The result never has fewer contexts than seeds.
func withSeeds(seeds, contexts []model.AnalysisContext, threshold float64) ([]model.AnalysisContext, []model.ContextMerge) {
	out := append([]model.AnalysisContext{}, seeds...)
	var merges []model.ContextMerge
	for _, c := range contexts {
		into := ""
		for _, k := range out {
			if Similar(k, c, threshold) {
				into = k.ID
				break
			}
		}
		if into == "" {
			out = append(out, c)
			continue
		}
		if c.ID != into {
			merges = append(merges, model.ContextMerge{From: c.ID, Into: into})
		}
	}
	return out, merges
}

func seedContexts(seeds []Seed) []model.AnalysisContext {
	out := make([]model.AnalysisContext, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, s.Context())
	}
	return out
}

var claimRef = regexp.MustCompile(`(?i)^sc(\d+)$`)

// buildClaims numbers drafted claims, resolves their contexts and keeps
// only dependencies on earlier claims. Claims with no resolvable context
// belong to every context. Gate 1 runs on every claim.
func (d *Detector) buildClaims(drafts []claimDraft, contexts []model.AnalysisContext, merges []model.ContextMerge) []model.Claim {
	res := newResolver(contexts)
	mm := mergeMap(merges)
	all := make([]string, len(contexts))
	for i, c := range contexts {
		all[i] = c.ID
	}

	var claims []model.Claim
	for _, draft := range drafts {
		text := strings.TrimSpace(draft.Text)
		if text == "" {
			continue
		}
		n := len(claims) + 1
		claim := model.Claim{
			ID:         fmt.Sprintf("SC%d", n),
			Text:       text,
			Centrality: model.ParseCentrality(draft.Centrality),
		}
		if m := claimRef.FindStringSubmatch(strings.TrimSpace(draft.DependsOn)); m != nil {
			if dep, err := strconv.Atoi(m[1]); err == nil && dep >= 1 && dep < n {
				claim.DependsOn = fmt.Sprintf("SC%d", dep)
			}
		}

		seen := make(map[string]bool)
		for _, ref := range draft.Contexts {
			id, ok := res.resolve(ref)
			if !ok {
				id, ok = res.resolve(mm[model.ContextIDFor(ref)])
			}
			if ok && !seen[id] {
				seen[id] = true
				claim.ContextIDs = append(claim.ContextIDs, id)
			}
		}
		if len(claim.ContextIDs) == 0 {
			claim.ContextIDs = append([]string{}, all...)
		}

		v := validate.ValidateClaim(text, d.cfg.Calculation.ClaimGate)
		claim.Validation = &v
		claims = append(claims, claim)
	}
	return claims
}

func (d *Detector) heuristicClaims(text string, contexts []model.AnalysisContext) []model.Claim {
	all := make([]string, len(contexts))
	for i, c := range contexts {
		all[i] = c.ID
	}
	claims := d.claims.FromText(text)
	out := make([]model.Claim, 0, len(claims))
	for i, c := range claims {
		c.ID = fmt.Sprintf("SC%d", i+1)
		c.DependsOn = ""
		c.ContextIDs = append([]string{}, all...)
		if c.Centrality == "" {
			c.Centrality = model.CentralityMedium
		}
		v := validate.ValidateClaim(c.Text, d.cfg.Calculation.ClaimGate)
		c.Validation = &v
		out = append(out, c)
	}
	return out
}

func cleanQueries(queries []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range queries {
		q = strings.Join(strings.Fields(q), " ")
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

func warning(code, msg string) model.Warning {
	return model.Warning{Phase: PhaseUnderstand, Code: code, Message: msg}
}
