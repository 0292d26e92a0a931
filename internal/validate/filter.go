package validate

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ppiankov/factlens/internal/metrics"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/textsim"
)

// Rejection reason codes
const (
	RejectStatementTooShort = "statement_too_short"
	RejectTooVague          = "too_vague"
	RejectMissingExcerpt    = "missing_excerpt"
	RejectExcerptTooShort   = "excerpt_too_short"
	RejectMissingURL        = "missing_url"
	RejectStatisticNoNumber = "statistic_without_number"
	RejectDuplicate         = "duplicate"
)

// EvidenceFilter accepts or rejects extracted evidence items. It never
// modifies an item.
type EvidenceFilter struct {
	cfg model.FilterConfig
}

// NewEvidenceFilter creates a filter with the given thresholds
func NewEvidenceFilter(cfg model.FilterConfig) *EvidenceFilter {
	return &EvidenceFilter{cfg: cfg}
}

// Check runs the per-item rules. It returns an empty reason when the item passes.
func (f *EvidenceFilter) Check(item model.EvidenceItem) (reason, detail string) {
	statement := strings.TrimSpace(item.Statement)
	if len([]rune(statement)) < f.cfg.MinStatementLength {
		return RejectStatementTooShort, fmt.Sprintf("statement has %d characters, minimum %d", len([]rune(statement)), f.cfg.MinStatementLength)
	}

	if n := f.countVague(statement); n > f.cfg.MaxVaguePhrases {
		return RejectTooVague, fmt.Sprintf("%d vague phrases, maximum %d", n, f.cfg.MaxVaguePhrases)
	}

	excerpt := strings.TrimSpace(item.SourceExcerpt)
	if f.cfg.RequireExcerpt && excerpt == "" {
		return RejectMissingExcerpt, "source excerpt is required"
	}
	if excerpt != "" && len([]rune(excerpt)) < f.cfg.MinExcerptLength {
		return RejectExcerptTooShort, fmt.Sprintf("excerpt has %d characters, minimum %d", len([]rune(excerpt)), f.cfg.MinExcerptLength)
	}

	if f.cfg.RequireURL && strings.TrimSpace(item.SourceURL) == "" {
		return RejectMissingURL, "source URL is required"
	}

	if item.Category == model.CategoryStatistic && !containsDigit(statement) {
		return RejectStatisticNoNumber, "statistic contains no number"
	}

	return "", ""
}

// Apply filters items, deduplicating them against each other and against
// already accepted evidence. The first occurrence wins.
func (f *EvidenceFilter) Apply(existing, items []model.EvidenceItem) ([]model.EvidenceItem, []model.EvidenceRejection) {
	accepted := make([]model.EvidenceItem, 0, len(items))
	var rejected []model.EvidenceRejection

	reject := func(item model.EvidenceItem, reason, detail, dupOf string) {
		metrics.EvidenceRejected.WithLabelValues(reason).Inc()
		rejected = append(rejected, model.EvidenceRejection{
			EvidenceID:  item.ID,
			Statement:   item.Statement,
			SourceURL:   item.SourceURL,
			Reason:      reason,
			Detail:      detail,
			DuplicateOf: dupOf,
		})
	}

	for _, item := range items {
		if reason, detail := f.Check(item); reason != "" {
			reject(item, reason, detail, "")
			continue
		}

		if dup := f.findDuplicate(item, existing, accepted); dup != "" {
			reject(item, RejectDuplicate, "statement duplicates an accepted item", dup)
			continue
		}

		metrics.EvidenceAccepted.Inc()
		accepted = append(accepted, item)
	}
	return accepted, rejected
}

func (f *EvidenceFilter) findDuplicate(item model.EvidenceItem, pools ...[]model.EvidenceItem) string {
	threshold := f.cfg.DedupThreshold
	if threshold <= 0 {
		return ""
	}
	for _, pool := range pools {
		for _, other := range pool {
			if textsim.Similarity(item.Statement, other.Statement) >= threshold {
				return other.ID
			}
		}
	}
	return ""
}

func (f *EvidenceFilter) countVague(statement string) int {
	lower := " " + textsim.Normalize(statement) + " "
	count := 0
	for _, phrase := range f.cfg.VaguePhrases {
		p := textsim.Normalize(phrase)
		if p == "" {
			continue
		}
		count += strings.Count(lower, " "+p+" ")
	}
	return count
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
