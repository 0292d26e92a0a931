package score

import (
	"math"

	"github.com/ppiankov/factlens/internal/model"
)

// MapBand maps a truth percentage to a label using the default bands
func MapBand(pct, confidence int, contested bool) model.TruthLabel {
	return MapBandWith(model.DefaultConfig().Calculation, pct, confidence, contested)
}

// MapBandWith maps a truth percentage to a label. The middle band is MIXED
// only for contested evidence at or above the confidence cutoff, otherwise UNVERIFIED.
func MapBandWith(cfg model.CalculationConfig, pct, confidence int, contested bool) model.TruthLabel {
	b := cfg.Bands
	switch {
	case pct >= b.True:
		return model.LabelTrue
	case pct >= b.MostlyTrue:
		return model.LabelMostlyTrue
	case pct >= b.LeaningTrue:
		return model.LabelLeaningTrue
	case pct >= b.Mixed:
		if contested && confidence >= cfg.MixedConfidenceThreshold {
			return model.LabelMixed
		}
		return model.LabelUnverified
	case pct >= b.LeaningFalse:
		return model.LabelLeaningFalse
	case pct >= b.MostlyFalse:
		return model.LabelMostlyFalse
	default:
		return model.LabelFalse
	}
}

// EffectiveReliability amplifies a cached score's deviation from the neutral
// center by spread × confidence, with an extra multiplier on consensus
func EffectiveReliability(s model.CachedScore, spread, consensusMultiplier float64) float64 {
	factor := spread * s.Confidence
	if s.Consensus {
		factor *= consensusMultiplier
	}
	return clamp01(0.5 + (s.Score-0.5)*factor)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clampPct(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}
