package score

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/validate"
)

// generalBucket collects evidence not tied to a passing claim
const generalBucket = "general"

// ReliabilitySource resolves a domain to its cached reliability score. It
// must never fail; unknown domains resolve to a neutral default.
type ReliabilitySource interface {
	Lookup(ctx context.Context, domain string) model.CachedScore
}

// Aggregator turns the filtered evidence of each context into a verdict
type Aggregator struct {
	cfg         model.CalculationConfig
	reliability ReliabilitySource
	logger      *zap.Logger
}

// NewAggregator creates an aggregator. A nil reliability source treats
// every domain as neutral with low confidence.
func NewAggregator(cfg model.CalculationConfig, reliability ReliabilitySource, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{cfg: cfg, reliability: reliability, logger: logger}
}

// VerdictAll computes one verdict per context with at most workers in
// flight. Verdicts are returned ordered by context id.
func (a *Aggregator) VerdictAll(ctx context.Context, contexts []model.AnalysisContext, claims []model.Claim, evidence []model.EvidenceItem, workers int) ([]model.Verdict, error) {
	sorted := make([]model.AnalysisContext, len(contexts))
	copy(sorted, contexts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	verdicts := make([]model.Verdict, len(sorted))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, c := range sorted {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			verdicts[i] = a.Verdict(gctx, c, claims, evidence)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate verdicts: %w", err)
	}
	return verdicts, nil
}

type weightedItem struct {
	item        model.EvidenceItem
	weight      float64
	reliability float64
	score       model.CachedScore
}

type bucket struct {
	id          string
	centrality  model.Centrality
	support     float64
	contradict  float64
	supportN    int
	contradictN int
	pct         float64
	hasPct      bool
	propagated  bool
	dependsOn   string
}

// Verdict computes the verdict for a single context. It reads its inputs and never mutates them.
func (a *Aggregator) Verdict(ctx context.Context, c model.AnalysisContext, claims []model.Claim, evidence []model.EvidenceItem) model.Verdict {
	verdict := model.Verdict{
		ContextID:                c.ID,
		ContextName:              c.Name,
		SupportingEvidenceIDs:    []string{},
		ContradictingEvidenceIDs: []string{},
	}

	// Claim buckets for passing claims, skipped entries for Gate 1 failures
	buckets := make(map[string]*bucket)
	var order []string
	for _, claim := range claims {
		if !claim.InContext(c.ID) {
			continue
		}
		if !claim.Passed() {
			verdict.ClaimVerdicts = append(verdict.ClaimVerdicts, model.ClaimVerdict{
				ClaimID: claim.ID,
				Label:   model.LabelUnverified,
				Skipped: claim.Validation.FailureReason,
			})
			continue
		}
		buckets[claim.ID] = &bucket{
			id:         claim.ID,
			centrality: claim.Centrality,
			dependsOn:  claim.DependsOn,
		}
		order = append(order, claim.ID)
	}
	general := &bucket{id: generalBucket, centrality: model.CentralityMedium}

	var items []weightedItem
	for _, e := range evidence {
		if e.ContextID != c.ID {
			continue
		}
		items = append(items, a.weigh(ctx, e))
	}

	var (
		support, contradict   float64
		supportN, contradictN int
		reliabilitySum        float64
		lowReliability        []string
		penalty               int
		contestedStrength     bool
	)
	for _, w := range items {
		b := general
		if cb, ok := buckets[w.item.ClaimID]; ok {
			b = cb
		}
		reliabilitySum += w.reliability
		if w.score.LowConfidence || w.score.Default {
			lowReliability = append(lowReliability, w.item.ID)
		}

		switch w.item.Direction {
		case model.DirectionSupports:
			b.support += w.weight
			b.supportN++
			support += w.weight
			supportN++
			verdict.SupportingEvidenceIDs = append(verdict.SupportingEvidenceIDs, w.item.ID)
		case model.DirectionContradicts:
			b.contradict += w.weight
			b.contradictN++
			contradict += w.weight
			contradictN++
			verdict.ContradictingEvidenceIDs = append(verdict.ContradictingEvidenceIDs, w.item.ID)
			if p, ok := a.cfg.ContestationPenalty[string(w.item.ContestedStrength)]; ok && w.item.ContestedStrength != "" {
				penalty += p
				contestedStrength = true
			}
		}
	}

	for _, b := range buckets {
		b.computePct()
	}
	general.computePct()

	propagatedIDs := a.propagate(buckets, order)

	// Centrality-weighted mean over buckets with directional evidence
	var weightedSum, weightTotal float64
	bucketData := make([]map[string]any, 0, len(order)+1)
	all := make([]*bucket, 0, len(order)+1)
	for _, id := range order {
		all = append(all, buckets[id])
	}
	all = append(all, general)
	for _, b := range all {
		if !b.hasPct {
			continue
		}
		cw := a.centralityWeight(b.centrality)
		weightedSum += b.pct * cw
		weightTotal += cw
		bucketData = append(bucketData, map[string]any{
			"bucket":     b.id,
			"percentage": b.pct,
			"weight":     cw,
			"propagated": b.propagated,
		})
	}

	for _, id := range order {
		b := buckets[id]
		cv := model.ClaimVerdict{
			ClaimID:       id,
			Supporting:    b.supportN,
			Contradicting: b.contradictN,
			Propagated:    b.propagated,
			Label:         model.LabelUnverified,
		}
		if b.hasPct {
			cv.TruthPercentage = clampPct(b.pct)
			cv.Label = MapBandWith(a.cfg, cv.TruthPercentage, 100, b.supportN > 0 && b.contradictN > 0)
		} else {
			cv.TruthPercentage = 50
		}
		verdict.ClaimVerdicts = append(verdict.ClaimVerdicts, cv)
	}
	sort.SliceStable(verdict.ClaimVerdicts, func(i, j int) bool {
		return verdict.ClaimVerdicts[i].ClaimID < verdict.ClaimVerdicts[j].ClaimID
	})

	n := len(items)
	directional := supportN + contradictN
	raw := 50.0
	if weightTotal > 0 {
		raw = weightedSum / weightTotal
	}

	if penalty > a.cfg.MaxContestationPenalty {
		penalty = a.cfg.MaxContestationPenalty
	}
	final := raw - float64(penalty)

	quality := 0.0
	if n > 0 {
		quality = reliabilitySum / float64(n)
	}
	agreement := 0.0
	if support+contradict > 0 {
		agreement = max(support, contradict) / (support + contradict)
	}
	directionalShare := 0.0
	if n > 0 {
		directionalShare = float64(directional) / float64(n)
	}
	saturation := float64(a.cfg.ConfidenceSaturation)
	if saturation <= 0 {
		saturation = 1
	}
	countFactor := min(float64(n)/saturation, 1)
	confidence := clampPct(100 * (0.4*countFactor + 0.3*quality + 0.3*directionalShare))

	verdict.TruthPercentage = clampPct(final)
	verdict.Confidence = confidence
	verdict.Contested = (supportN > 0 && contradictN > 0) || contestedStrength
	verdict.Label = MapBandWith(a.cfg, verdict.TruthPercentage, confidence, verdict.Contested)

	verdict.Tier = validate.Tier(n, quality, agreement, a.cfg.VerdictGate)
	verdict.Publishable = verdict.Tier.Publishable()
	if !verdict.Publishable {
		verdict.WithheldReasons = validate.WithheldReasons(n, quality, agreement, a.cfg.VerdictGate)
		if len(verdict.WithheldReasons) == 0 {
			verdict.WithheldReasons = []string{fmt.Sprintf("confidence tier %s is not publishable", verdict.Tier)}
		}
	}

	verdict.Signals = append(verdict.Signals, model.Signal{
		Type:        model.SignalWeighting,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("Weighted support %.2f vs contradiction %.2f", support, contradict),
		Data: map[string]any{
			"support":       support,
			"contradict":    contradict,
			"supporting":    supportN,
			"contradicting": contradictN,
			"neutral":       n - directional,
			"formula":       "weight = probative × source_type_calibration × clamp01(0.5 + (score − 0.5) × spread × confidence × consensus)",
		},
	})
	verdict.Signals = append(verdict.Signals, model.Signal{
		Type:        model.SignalClaimBuckets,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("Centrality-weighted mean over %d buckets: %.1f", len(bucketData), raw),
		Data: map[string]any{
			"buckets": bucketData,
			"raw":     raw,
			"formula": "Σ(bucket_pct × centrality_weight) / Σ centrality_weight, bucket_pct = 100 × S / (S + C)",
		},
	})
	if len(propagatedIDs) > 0 {
		verdict.Signals = append(verdict.Signals, model.Signal{
			Type:        model.SignalDependency,
			Severity:    model.SeverityWarning,
			Description: fmt.Sprintf("%d claims capped by failing dependencies", len(propagatedIDs)),
			Data: map[string]any{
				"claims":  propagatedIDs,
				"floor":   a.cfg.Bands.LeaningTrue,
				"formula": "pct = min(pct, dependency_pct) when dependency_pct < leaning_true floor",
			},
		})
	}
	if penalty > 0 {
		verdict.Signals = append(verdict.Signals, model.Signal{
			Type:        model.SignalContestation,
			Severity:    model.SeverityWarning,
			Description: fmt.Sprintf("Contested counter-evidence penalty: -%d", penalty),
			Data: map[string]any{
				"penalty": penalty,
				"max":     a.cfg.MaxContestationPenalty,
				"formula": "min(Σ penalty(established|disputed), max_penalty)",
			},
		})
	}
	verdict.Signals = append(verdict.Signals, model.Signal{
		Type:        model.SignalConfidence,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("Confidence %d", confidence),
		Data: map[string]any{
			"evidence_count":    n,
			"quality":           quality,
			"directional_share": directionalShare,
			"formula":           "100 × (0.4 × min(n / saturation, 1) + 0.3 × quality + 0.3 × directional_share)",
		},
	})

	severity := model.SeverityInfo
	if !verdict.Publishable {
		severity = model.SeverityWarning
	}
	verdict.Signals = append(verdict.Signals, model.Signal{
		Type:        model.SignalQualityGate,
		Severity:    severity,
		Description: fmt.Sprintf("Confidence tier %s", verdict.Tier),
		Data: map[string]any{
			"evidence_count": n,
			"quality":        quality,
			"agreement":      agreement,
			"publishable":    verdict.Publishable,
		},
	})

	if directional == 0 {
		verdict.Signals = append(verdict.Signals, model.Signal{
			Type:        model.SignalNoDirectional,
			Severity:    model.SeverityWarning,
			Description: "No supporting or contradicting evidence; truth percentage defaults to 50",
			Data:        map[string]any{"evidence_count": n},
		})
	}
	if len(lowReliability) > 0 {
		verdict.Signals = append(verdict.Signals, model.Signal{
			Type:        model.SignalLowReliability,
			Severity:    model.SeverityInfo,
			Description: fmt.Sprintf("%d evidence items come from sources with low-confidence reliability", len(lowReliability)),
			Data:        map[string]any{"evidence_ids": lowReliability},
		})
	}

	a.logger.Debug("verdict computed",
		zap.String("context", c.ID),
		zap.String("label", string(verdict.Label)),
		zap.Int("truth", verdict.TruthPercentage),
		zap.Int("confidence", verdict.Confidence),
		zap.String("tier", string(verdict.Tier)),
	)

	return verdict
}

func (a *Aggregator) weigh(ctx context.Context, e model.EvidenceItem) weightedItem {
	s := a.lookup(ctx, validate.DomainOf(e.SourceURL))
	reliability := EffectiveReliability(s, a.cfg.SpreadMultiplier, a.cfg.ConsensusMultiplier)

	probative, ok := a.cfg.ProbativeWeights[string(e.ProbativeValue)]
	if !ok {
		probative = a.cfg.ProbativeWeights[string(model.ProbativeLow)]
	}
	calibration, ok := a.cfg.SourceTypeCalibration[string(e.SourceType)]
	if !ok {
		calibration = a.cfg.SourceTypeCalibration[string(model.SourceOther)]
	}

	return weightedItem{
		item:        e,
		weight:      probative * calibration * reliability,
		reliability: reliability,
		score:       s,
	}
}

func (a *Aggregator) lookup(ctx context.Context, domain string) model.CachedScore {
	if a.reliability == nil || domain == "" {
		return model.CachedScore{Domain: domain, Score: 0.5, Confidence: 0.1, LowConfidence: true, Default: true}
	}
	return a.reliability.Lookup(ctx, domain)
}

func (a *Aggregator) centralityWeight(c model.Centrality) float64 {
	if w, ok := a.cfg.CentralityWeights[string(c)]; ok {
		return w
	}
	return a.cfg.CentralityWeights[string(model.CentralityMedium)]
}

// propagate caps claims whose dependency falls below the LEANING-TRUE floor.
// Dependencies are resolved depth first; a dependency still on the stack is ignored.
func (a *Aggregator) propagate(buckets map[string]*bucket, order []string) []string {
	floor := float64(a.cfg.Bands.LeaningTrue)
	state := make(map[string]int) // 0 unvisited, 1 visiting, 2 done
	var propagated []string

	var resolve func(id string)
	resolve = func(id string) {
		if state[id] != 0 {
			return
		}
		state[id] = 1
		b := buckets[id]
		if dep, ok := buckets[b.dependsOn]; ok && b.dependsOn != id {
			resolve(b.dependsOn)
			if state[b.dependsOn] == 2 && dep.hasPct && dep.pct < floor {
				if !b.hasPct || b.pct > dep.pct {
					b.pct = dep.pct
					b.hasPct = true
				}
				b.propagated = true
				propagated = append(propagated, id)
			}
		}
		state[id] = 2
	}
	for _, id := range order {
		resolve(id)
	}
	sort.Strings(propagated)
	return propagated
}

func (b *bucket) computePct() {
	if total := b.support + b.contradict; total > 0 {
		b.pct = 100 * b.support / total
		b.hasPct = true
	}
}
