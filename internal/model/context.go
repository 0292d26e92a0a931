package model

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
)

// FallbackContextID is the id of the synthesized general context
const FallbackContextID = "CTX_GENERAL"

// AnalysisContext is a bounded analytical frame (institution, process,
// jurisdiction, methodology or time window) that gets its own verdict
type AnalysisContext struct {
	ID       string            `json:"id"`                 // CTX_ + 8 hex chars
	Name     string            `json:"name"`               // Normalized display name
	Subject  string            `json:"subject,omitempty"`  // What is being analyzed in this frame
	Temporal string            `json:"temporal,omitempty"` // Time window, if any
	Status   ContextStatus     `json:"status"`             // concluded, ongoing, pending, unknown
	Outcome  string            `json:"outcome,omitempty"`  // Known outcome for concluded frames
	Metadata map[string]string `json:"metadata,omitempty"` // institution, methodology, jurisdiction, boundaries
	Fallback bool              `json:"fallback,omitempty"` // True for the synthesized general context
}

// ContextStatus describes the state of the process an analysis context covers
type ContextStatus string

const (
	ContextConcluded ContextStatus = "concluded"
	ContextOngoing   ContextStatus = "ongoing"
	ContextPending   ContextStatus = "pending"
	ContextUnknown   ContextStatus = "unknown"
)

// ParseContextStatus normalizes a status, defaulting to unknown
func ParseContextStatus(s string) ContextStatus {
	switch ContextStatus(normalizeEnum(s)) {
	case ContextConcluded:
		return ContextConcluded
	case ContextOngoing:
		return ContextOngoing
	case ContextPending:
		return ContextPending
	default:
		return ContextUnknown
	}
}

// NormalizeContextName collapses whitespace and trims punctuation around a name
func NormalizeContextName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	return strings.Trim(name, " .,;:-\"'")
}

// ContextIDFor returns the stable id for a context name
func ContextIDFor(name string) string {
	key := strings.ToLower(NormalizeContextName(name))
	sum := sha1.Sum([]byte(key))
	return "CTX_" + strings.ToUpper(hex.EncodeToString(sum[:])[:8])
}

// NewFallbackContext builds the general context used when nothing else survives
func NewFallbackContext(subject string) AnalysisContext {
	return AnalysisContext{
		ID:       FallbackContextID,
		Name:     "General",
		Subject:  subject,
		Status:   ContextUnknown,
		Fallback: true,
	}
}

// ContextSet is an ordered, immutable collection of analysis contexts.
// Phases never modify a set in place; they build a new one.
type ContextSet struct {
	contexts []AnalysisContext
}

// NewContextSet copies the given contexts into a new set
func NewContextSet(contexts ...AnalysisContext) ContextSet {
	cp := make([]AnalysisContext, len(contexts))
	copy(cp, contexts)
	return ContextSet{contexts: cp}
}

// Len returns the number of contexts
func (s ContextSet) Len() int { return len(s.contexts) }

// All returns a copy of the contexts in order
func (s ContextSet) All() []AnalysisContext {
	cp := make([]AnalysisContext, len(s.contexts))
	copy(cp, s.contexts)
	return cp
}

// IDs returns the context ids in order
func (s ContextSet) IDs() []string {
	ids := make([]string, len(s.contexts))
	for i, c := range s.contexts {
		ids[i] = c.ID
	}
	return ids
}

// Get returns the context with the given id
func (s ContextSet) Get(id string) (AnalysisContext, bool) {
	for _, c := range s.contexts {
		if c.ID == id {
			return c, true
		}
	}
	return AnalysisContext{}, false
}

// Has reports whether a context id is in the set
func (s ContextSet) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// SortedByID returns the contexts ordered by id
func (s ContextSet) SortedByID() []AnalysisContext {
	out := s.All()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ContextMerge records one context folded into another
type ContextMerge struct {
	From string `json:"from"`
	Into string `json:"into"`
}

// ContextRename records a name change that kept the id stable
type ContextRename struct {
	ID      string `json:"id"`
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

// ContextTransition is an append-only log entry describing how a phase
// changed the context set
type ContextTransition struct {
	Phase                string          `json:"phase"`
	Before               []string        `json:"before"`
	After                []string        `json:"after"`
	Created              []string        `json:"created,omitempty"`
	Merged               []ContextMerge  `json:"merged,omitempty"`
	Removed              []string        `json:"removed,omitempty"`
	Renamed              []ContextRename `json:"renamed,omitempty"`
	ReassignedToFallback []string        `json:"reassigned_to_fallback,omitempty"` // Evidence ids moved to the fallback context
	Warnings             []string        `json:"warnings,omitempty"`
}
