package contexts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/llm/llmtest"
	"github.com/ppiankov/factlens/internal/model"
)

type refineFixture struct {
	brazil, us, opinion model.AnalysisContext
	set                 model.ContextSet
	claims              []model.Claim
	evidence            []model.EvidenceItem
}

func newRefineFixture() refineFixture {
	f := refineFixture{
		brazil:  ctxNamed("Brazilian Supreme Court ruling"),
		us:      ctxNamed("US Supreme Court ruling"),
		opinion: ctxNamed("Public opinion polls"),
	}
	f.set = model.NewContextSet(f.brazil, f.us, f.opinion)
	f.claims = []model.Claim{
		{ID: "SC1", Text: "Brazil ruling", ContextIDs: []string{f.brazil.ID}},
		{ID: "SC2", Text: "US ruling", ContextIDs: []string{f.us.ID, f.opinion.ID}},
	}
	f.evidence = []model.EvidenceItem{
		{ID: "E1-1", Statement: "STF convicted", ContextID: f.brazil.ID,
			Scope: model.EvidenceScope{Geographic: "Brazil", Methodology: "criminal trial"}},
		{ID: "E1-2", Statement: "Immunity granted", ContextID: f.us.ID},
		{ID: "E1-3", Statement: "Appeal denied", ContextID: f.brazil.ID},
	}
	return f
}

func refineReply(v map[string]any) llmtest.Reply { return llmtest.JSON(v) }

func TestRefineKeepsIDsAndPrunesEmptyContexts(t *testing.T) {
	f := newRefineFixture()
	client := llmtest.New("scripted", refineReply(map[string]any{
		"contexts": []map[string]any{
			{"id": f.brazil.ID, "name": "Brazilian Supreme Court criminal ruling"},
			{"id": f.us.ID, "name": "US Supreme Court ruling"},
			{"id": f.opinion.ID, "name": "Public opinion polls"},
		},
	}))

	out, err := NewRefiner(testConfig(), client, nil).Refine(context.Background(), "input", f.set, f.claims, f.evidence)
	require.NoError(t, err)

	assert.Equal(t, []string{f.brazil.ID, f.us.ID}, out.Contexts.IDs())
	renamed, _ := out.Contexts.Get(f.brazil.ID)
	assert.Equal(t, "Brazilian Supreme Court criminal ruling", renamed.Name)
	require.Len(t, out.Transition.Renamed, 1)
	assert.Equal(t, f.brazil.ID, out.Transition.Renamed[0].ID)

	assert.Equal(t, []string{f.opinion.ID}, out.Transition.Removed)
	assert.Equal(t, []string{f.us.ID}, out.Claims[1].ContextIDs, "assignment to removed context is cleared")
	assert.Empty(t, CheckInvariants(out.Contexts, out.Evidence, true))

	// Inputs untouched
	assert.Equal(t, []string{f.us.ID, f.opinion.ID}, f.claims[1].ContextIDs)
}

func TestRefineAppliesExplicitMerges(t *testing.T) {
	f := newRefineFixture()
	client := llmtest.New("scripted", refineReply(map[string]any{
		"contexts": []map[string]any{
			{"id": f.brazil.ID, "name": f.brazil.Name},
			{"id": f.us.ID, "name": f.us.Name},
		},
		"merges": []map[string]any{{"from": f.us.ID, "into": f.brazil.Name}},
	}))

	out, err := NewRefiner(testConfig(), client, nil).Refine(context.Background(), "input", f.set, f.claims, f.evidence)
	require.NoError(t, err)

	assert.Equal(t, []string{f.brazil.ID}, out.Contexts.IDs())
	require.Len(t, out.Transition.Merged, 1)
	assert.Equal(t, model.ContextMerge{From: f.us.ID, Into: f.brazil.ID}, out.Transition.Merged[0])
	for _, e := range out.Evidence {
		assert.Equal(t, f.brazil.ID, e.ContextID, e.ID)
	}
	assert.Equal(t, []string{f.brazil.ID}, out.Claims[1].ContextIDs)
}

func TestRefineDiscoversNewContext(t *testing.T) {
	f := newRefineFixture()
	client := llmtest.New("scripted", refineReply(map[string]any{
		"contexts": []map[string]any{
			{"id": f.brazil.ID, "name": f.brazil.Name},
			{"id": f.us.ID, "name": f.us.Name},
			{"name": "Brazilian Electoral Court ineligibility ruling", "metadata": map[string]string{"institution": "TSE"}},
		},
		"evidenceAssignments": map[string]string{"E1-3": "Brazilian Electoral Court ineligibility ruling"},
		"claimAssignments":    map[string][]string{"SC1": {f.brazil.ID, "Brazilian Electoral Court ineligibility ruling"}},
	}))

	out, err := NewRefiner(testConfig(), client, nil).Refine(context.Background(), "input", f.set, f.claims, f.evidence)
	require.NoError(t, err)

	newID := model.ContextIDFor("Brazilian Electoral Court ineligibility ruling")
	assert.Equal(t, []string{f.brazil.ID, f.us.ID, newID}, out.Contexts.IDs())
	assert.Equal(t, []string{newID}, out.Transition.Created)
	assert.Equal(t, newID, out.Evidence[2].ContextID)
	assert.Equal(t, []string{f.brazil.ID, newID}, out.Claims[0].ContextIDs)
	assert.Equal(t, f.brazil.ID, f.evidence[2].ContextID)
}

func TestRefineSynthesizesFallbackWhenNothingSurvives(t *testing.T) {
	f := newRefineFixture()
	client := llmtest.New("scripted", refineReply(map[string]any{
		"contexts": []map[string]any{{"name": "Unrelated economic frame"}},
	}))

	out, err := NewRefiner(testConfig(), client, nil).Refine(context.Background(), "input", f.set, f.claims, f.evidence)
	require.NoError(t, err)

	require.Equal(t, 1, out.Contexts.Len())
	fallback := out.Contexts.All()[0]
	assert.True(t, fallback.Fallback)
	assert.Equal(t, model.FallbackContextID, fallback.ID)
	assert.Equal(t, []string{"E1-1", "E1-2", "E1-3"}, out.Transition.ReassignedToFallback)
	for _, e := range out.Evidence {
		assert.Equal(t, model.FallbackContextID, e.ContextID)
	}
	for _, c := range out.Claims {
		assert.Equal(t, []string{model.FallbackContextID}, c.ContextIDs)
	}
	assert.Empty(t, CheckInvariants(out.Contexts, out.Evidence, true))
}

func TestRefineWithoutEvidenceLeavesOnlyFallback(t *testing.T) {
	f := newRefineFixture()
	out, err := NewRefiner(testConfig(), nil, nil).Refine(context.Background(), "input", f.set, f.claims, nil)
	require.NoError(t, err)

	require.Equal(t, 1, out.Contexts.Len())
	assert.True(t, out.Contexts.All()[0].Fallback)
	assert.Empty(t, out.Transition.ReassignedToFallback)
}

func TestRefineSchemaViolationKeepsContexts(t *testing.T) {
	f := newRefineFixture()
	evidence := append(f.evidence, model.EvidenceItem{ID: "E1-4", Statement: "Poll result", ContextID: f.opinion.ID})
	client := llmtest.New("scripted", llmtest.Text("{\"contexts\": []}"), llmtest.Text("nope"))

	out, err := NewRefiner(testConfig(), client, nil).Refine(context.Background(), "input", f.set, f.claims, evidence)
	require.NoError(t, err)

	assert.Equal(t, f.set.IDs(), out.Contexts.IDs())
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, model.WarnSchemaViolation, out.Warnings[0].Code)
	assert.Equal(t, PhaseRefinement, out.Warnings[0].Phase)
	assert.NotEmpty(t, out.Transition.Warnings)
	assert.Equal(t, 2, client.CallCount())
}

func TestRefineProviderFailureIsRecoverable(t *testing.T) {
	f := newRefineFixture()
	client := llmtest.New("a", llmtest.Fail(errors.New("timeout")))

	out, err := NewRefiner(testConfig(), client, nil).Refine(context.Background(), "input", f.set, f.claims, f.evidence)
	require.NoError(t, err)
	assert.Equal(t, []string{f.brazil.ID, f.us.ID}, out.Contexts.IDs())
	assert.Equal(t, model.WarnLLMUnavailable, out.Warnings[0].Code)
}

func TestRefineProvidersExhaustedIsFatal(t *testing.T) {
	f := newRefineFixture()
	gw := llmtest.Gateway(llmtest.New("a", llmtest.Fail(errors.New("down"))))

	_, err := NewRefiner(testConfig(), gw, nil).Refine(context.Background(), "input", f.set, f.claims, f.evidence)
	assert.ErrorIs(t, err, llm.ErrProvidersExhausted)
}

func TestRefinePrunesFallbackWithoutEvidence(t *testing.T) {
	general := model.NewFallbackContext("input")
	evidence := []model.EvidenceItem{
		{ID: "E1-1", Statement: "Prices rose 20%", ContextID: general.ID},
		{ID: "E1-2", Statement: "Grid fees doubled", ContextID: general.ID},
	}
	client := llmtest.New("scripted", refineReply(map[string]any{
		"contexts": []map[string]any{
			{"id": general.ID, "name": general.Name},
			{"name": "Electricity prices in Germany"},
		},
		"evidenceAssignments": map[string]string{"E1-1": "Electricity prices in Germany", "E1-2": "Electricity prices in Germany"},
	}))

	out, err := NewRefiner(testConfig(), client, nil).Refine(context.Background(), "input", model.NewContextSet(general), nil, evidence)
	require.NoError(t, err)

	germany := model.ContextIDFor("Electricity prices in Germany")
	assert.Equal(t, []string{germany}, out.Contexts.IDs())
	assert.Equal(t, []string{general.ID}, out.Transition.Removed)
	for _, e := range out.Evidence {
		assert.Equal(t, germany, e.ContextID)
	}
	assert.Empty(t, CheckInvariants(out.Contexts, out.Evidence, true))
}

func TestRefineIssuedCallCompletesOnCancel(t *testing.T) {
	f := newRefineFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := llmtest.New("slow", refineReply(map[string]any{
		"contexts": []map[string]any{{"id": f.brazil.ID, "name": f.brazil.Name}},
	}))
	slow.Delay = 20 * time.Millisecond
	slow.OnCall = cancel

	_, err := NewRefiner(testConfig(), llmtest.Gateway(slow), nil).Refine(ctx, "input", f.set, f.claims, f.evidence)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, slow.CallCount())
	assert.Zero(t, slow.Aborted())
}

func TestRefineMergesSimilarContextsDeterministically(t *testing.T) {
	a := ctxNamed("Brazilian Supreme Court ruling")
	b := ctxNamed("The Brazilian Supreme Court ruling")
	evidence := []model.EvidenceItem{{ID: "E1-1", ContextID: a.ID}, {ID: "E1-2", ContextID: b.ID}}

	out, err := NewRefiner(testConfig(), nil, nil).Refine(context.Background(), "input", model.NewContextSet(a, b), nil, evidence)
	require.NoError(t, err)

	assert.Equal(t, []string{a.ID}, out.Contexts.IDs())
	assert.Equal(t, a.ID, out.Evidence[1].ContextID)
	assert.Equal(t, []model.ContextMerge{{From: b.ID, Into: a.ID}}, out.Transition.Merged)
}
