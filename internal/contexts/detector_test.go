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

const comparativeInput = "Was the Brazilian Supreme Court ruling fair compared with the US Supreme Court ruling?"

type fakeSplitter struct{ texts []string }

func (f fakeSplitter) FromText(string) []model.Claim {
	claims := make([]model.Claim, len(f.texts))
	for i, t := range f.texts {
		claims[i] = model.Claim{Text: t, Heuristic: "keyword:test"}
	}
	return claims
}

func detectionReply(contexts []map[string]any, claims []map[string]any) llmtest.Reply {
	return llmtest.JSON(map[string]any{
		"impliedClaim":  "Both rulings followed due process",
		"contexts":      contexts,
		"claims":        claims,
		"searchQueries": []string{"Brazil supreme court ruling", "brazil supreme court ruling", " US ruling  appeal "},
	})
}

func testConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.Pipeline.Deterministic = true
	return cfg
}

func TestUnderstandUsesModelContextsAndClaims(t *testing.T) {
	client := llmtest.New("scripted", detectionReply(
		[]map[string]any{
			{"name": "Brazilian Supreme Court ruling", "status": "concluded", "requiresSeparateAnalysis": true,
				"metadata": map[string]string{"institution": "STF"}},
			{"name": "US Supreme Court ruling", "status": "concluded", "requiresSeparateAnalysis": true},
			{"name": "Public opinion", "requiresSeparateAnalysis": false},
		},
		[]map[string]any{
			{"text": "The Brazilian Supreme Court convicted the former president in September 2025.", "centrality": "high",
				"contexts": []string{"Brazilian Supreme Court ruling"}},
			{"text": "The US Supreme Court granted presidential immunity in Trump v. United States in July 2024.", "centrality": "HIGH",
				"dependsOn": "SC1", "contexts": []string{"us supreme court ruling"}},
			{"text": "I think both rulings were terrible and awful.", "dependsOn": "SC9"},
		},
	))

	d := NewDetector(testConfig(), client, fakeSplitter{}, nil)
	u, err := d.Understand(context.Background(), comparativeInput)
	require.NoError(t, err)

	require.Equal(t, 2, u.Contexts.Len())
	brazil, us := u.Contexts.All()[0], u.Contexts.All()[1]
	assert.Equal(t, "STF", brazil.Metadata["institution"])
	assert.Equal(t, model.ContextConcluded, us.Status)

	require.Len(t, u.Claims, 3)
	assert.Equal(t, "SC1", u.Claims[0].ID)
	assert.Equal(t, []string{brazil.ID}, u.Claims[0].ContextIDs)
	assert.Equal(t, []string{us.ID}, u.Claims[1].ContextIDs)
	assert.Equal(t, "SC1", u.Claims[1].DependsOn)
	assert.Equal(t, model.CentralityHigh, u.Claims[1].Centrality)

	// Unresolvable context belongs to every context, forward dependency dropped
	assert.Equal(t, u.Contexts.IDs(), u.Claims[2].ContextIDs)
	assert.Empty(t, u.Claims[2].DependsOn)
	require.NotNil(t, u.Claims[2].Validation)
	assert.False(t, u.Claims[2].Validation.Passed)
	assert.Equal(t, model.ClaimFailureOpinion, u.Claims[2].Validation.FailureReason)
	assert.True(t, u.Claims[0].Passed())

	assert.Equal(t, "Both rulings followed due process", u.ImpliedClaim)
	assert.Equal(t, []string{"Brazil supreme court ruling", "US ruling appeal"}, u.Queries)
	assert.Equal(t, PhaseUnderstand, u.Transition.Phase)
	assert.Equal(t, u.Contexts.IDs(), u.Transition.Created)
	assert.Equal(t, 1, client.CallCount())
}

func TestUnderstandSupplementalDetectionSplits(t *testing.T) {
	client := llmtest.New("scripted",
		detectionReply([]map[string]any{{"name": "Supreme Court rulings", "requiresSeparateAnalysis": true}}, nil),
		detectionReply([]map[string]any{
			{"name": "Brazilian ruling on the coup plot", "requiresSeparateAnalysis": true},
			{"name": "US ruling on presidential immunity", "requiresSeparateAnalysis": true},
		}, nil),
	)

	d := NewDetector(testConfig(), client, fakeSplitter{texts: []string{"The rulings happened in 2024 and 2025."}}, nil)
	u, err := d.Understand(context.Background(), comparativeInput)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, u.Contexts.Len(), 2)
	assert.Equal(t, 2, client.CallCount())
	assert.Contains(t, client.Calls()[1].User, "at least two contexts")
	for _, w := range u.Warnings {
		assert.NotEqual(t, model.WarnForcedSeeds, w.Code)
	}
}

func TestUnderstandForcesSeedsWhenModelCollapses(t *testing.T) {
	collapsed := detectionReply([]map[string]any{{"name": "Supreme Court rulings", "requiresSeparateAnalysis": true}}, nil)
	client := llmtest.New("scripted", collapsed, collapsed)

	d := NewDetector(testConfig(), client, fakeSplitter{texts: []string{"The rulings happened in 2024 and 2025."}}, nil)
	u, err := d.Understand(context.Background(), comparativeInput)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(u.Seeds), 2)
	assert.GreaterOrEqual(t, u.Contexts.Len(), 2)
	for _, s := range u.Seeds {
		assert.True(t, u.Contexts.Has(s.Context().ID), s.Name)
	}
	assert.Contains(t, warningCodes(u.Warnings), model.WarnForcedSeeds)
}

func TestUnderstandSeedsFollowConfiguredThreshold(t *testing.T) {
	const input = "Compare: nuclear energy costs vs nuclear energy risks."
	collapsed := detectionReply([]map[string]any{
		{"name": "Nuclear energy", "requiresSeparateAnalysis": true},
		{"name": "Nuclear energy", "requiresSeparateAnalysis": true},
	}, nil)

	for _, threshold := range []float64{0.5, 0.6, 0.85} {
		cfg := testConfig()
		cfg.Pipeline.ContextSimilarityThreshold = threshold
		client := llmtest.New("scripted", collapsed, collapsed)

		u, err := NewDetector(cfg, client, fakeSplitter{texts: []string{"Nuclear energy is cheap."}}, nil).Understand(context.Background(), input)
		require.NoError(t, err)

		assert.Equal(t, seedNames(DetectSeeds(input, threshold)), seedNames(u.Seeds), "threshold %v", threshold)
		assert.GreaterOrEqual(t, u.Contexts.Len(), len(u.Seeds), "threshold %v", threshold)
		if len(u.Seeds) < 2 {
			continue
		}
		assert.GreaterOrEqual(t, u.Contexts.Len(), 2, "threshold %v", threshold)
		for _, s := range u.Seeds {
			assert.True(t, u.Contexts.Has(s.Context().ID), "threshold %v: seed %q dropped", threshold, s.Name)
		}
	}
}

func TestWithSeedsKeepsEverySeed(t *testing.T) {
	seeds := seedContexts([]Seed{
		{Name: "Nuclear energy costs", Pattern: PatternComparison},
		{Name: "Nuclear energy risks", Pattern: PatternComparison},
	})
	costsAndRisks, _ := Canonicalize(Candidate{Name: "Nuclear energy costs and risks"})
	acceptance, _ := Canonicalize(Candidate{Name: "Public acceptance of reactors"})

	got, merges := withSeeds(seeds, []model.AnalysisContext{costsAndRisks, acceptance}, 0.3)

	require.Len(t, got, 3)
	assert.Equal(t, seeds[0].ID, got[0].ID)
	assert.Equal(t, seeds[1].ID, got[1].ID)
	assert.Equal(t, acceptance.ID, got[2].ID)
	assert.Equal(t, []model.ContextMerge{{From: costsAndRisks.ID, Into: seeds[0].ID}}, merges)
}

func TestUnderstandNonDeterministicKeepsSingleContext(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.Deterministic = false
	client := llmtest.New("scripted",
		detectionReply([]map[string]any{{"name": "Supreme Court rulings", "requiresSeparateAnalysis": true}},
			[]map[string]any{{"text": "The Brazilian court convicted the former president in 2025."}}))

	u, err := NewDetector(cfg, client, nil, nil).Understand(context.Background(), comparativeInput)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Contexts.Len())
	assert.Equal(t, 1, client.CallCount())
}

func TestUnderstandSchemaViolationFallsBack(t *testing.T) {
	client := llmtest.New("scripted", llmtest.Text("no json here"), llmtest.Text("still none"))
	splitter := fakeSplitter{texts: []string{"The Brazilian Supreme Court convicted the former president in 2025."}}

	u, err := NewDetector(testConfig(), client, splitter, nil).Understand(context.Background(), comparativeInput)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, u.Contexts.Len(), 2)
	codes := warningCodes(u.Warnings)
	assert.Contains(t, codes, model.WarnSchemaViolation)
	assert.Contains(t, codes, model.WarnHeuristicClaims)

	require.Len(t, u.Claims, 1)
	assert.Equal(t, "SC1", u.Claims[0].ID)
	assert.Equal(t, u.Contexts.IDs(), u.Claims[0].ContextIDs)
	assert.Equal(t, "The Brazilian Supreme Court convicted the former president in 2025.", u.ImpliedClaim)
}

func TestUnderstandWithoutModelUsesGeneralContext(t *testing.T) {
	splitter := fakeSplitter{texts: []string{"The Eiffel Tower is 330 metres tall since 2022."}}
	u, err := NewDetector(testConfig(), nil, splitter, nil).Understand(context.Background(), "The Eiffel Tower is 330 metres tall.")
	require.NoError(t, err)

	require.Equal(t, 1, u.Contexts.Len())
	general := u.Contexts.All()[0]
	assert.True(t, general.Fallback)
	assert.Equal(t, model.FallbackContextID, general.ID)
	assert.Contains(t, warningCodes(u.Warnings), model.WarnLLMUnavailable)
	assert.Len(t, u.Claims, 1)
}

func TestUnderstandFatalErrors(t *testing.T) {
	_, err := NewDetector(testConfig(), nil, nil, nil).Understand(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)

	gw := llmtest.Gateway(llmtest.New("a", llmtest.Fail(errors.New("down"))))
	_, err = NewDetector(testConfig(), gw, nil, nil).Understand(context.Background(), comparativeInput)
	assert.ErrorIs(t, err, llm.ErrProvidersExhausted)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewDetector(testConfig(), llmtest.New("a"), nil, nil).Understand(ctx, comparativeInput)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnderstandIssuedCallCompletesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := llmtest.New("slow", detectionReply([]map[string]any{{"name": "Supreme Court rulings", "requiresSeparateAnalysis": true}}, nil))
	slow.Delay = 20 * time.Millisecond
	slow.OnCall = cancel

	_, err := NewDetector(testConfig(), llmtest.Gateway(slow), nil, nil).Understand(ctx, comparativeInput)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, slow.CallCount())
	assert.Zero(t, slow.Aborted(), "issued call was aborted by cancellation")
}

func warningCodes(ws []model.Warning) []string {
	codes := make([]string, len(ws))
	for i, w := range ws {
		codes[i] = w.Code
	}
	return codes
}
