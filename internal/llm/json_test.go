package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdictShape struct {
	Label string `json:"label"`
	Score int    `json:"score"`
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  verdictShape
		err   bool
	}{
		{"plain", `{"label":"x","score":3}`, verdictShape{"x", 3}, false},
		{"fenced", "```json\n{\"label\":\"y\",\"score\":1}\n```", verdictShape{"y", 1}, false},
		{"prose around", `Sure! Here it is: {"label":"z","score":2} hope that helps`, verdictShape{"z", 2}, false},
		{"bracket in prose first", `[note] {"label":"w","score":4}`, verdictShape{"w", 4}, false},
		{"no json", `I cannot answer`, verdictShape{}, true},
		{"broken", `{"label": `, verdictShape{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := llm.ParseJSON[verdictShape](tt.input)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSONArray(t *testing.T) {
	got, err := llm.ParseJSON[[]string](`result: ["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func requireLabel(v *verdictShape) error {
	if v.Label == "" {
		return errors.New("label is required")
	}
	return nil
}

func TestCallJSONStricterRetry(t *testing.T) {
	p := llmtest.New("p",
		llmtest.Text(`{"score": 5}`),
		llmtest.Text(`{"label": "ok", "score": 5}`),
	)
	g := llmtest.Gateway(p)

	got, err := llm.CallJSON[verdictShape](context.Background(), g, llm.Request{User: "classify"}, requireLabel)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Label)

	calls := p.Calls()
	require.Len(t, calls, 2)
	assert.True(t, calls[0].JSON)
	assert.True(t, calls[1].Deterministic)
	assert.True(t, strings.Contains(calls[1].User, "label is required"))
}

func TestCallJSONSchemaViolation(t *testing.T) {
	p := llmtest.New("p", llmtest.Text("nope"), llmtest.Text("still nope"))
	_, err := llm.CallJSON[verdictShape](context.Background(), llmtest.Gateway(p), llm.Request{User: "x"}, nil)
	assert.ErrorIs(t, err, llm.ErrSchemaViolation)
	assert.Equal(t, 2, p.CallCount())
}

func TestCallJSONProviderFailureIsNotSchemaViolation(t *testing.T) {
	p := llmtest.New("p", llmtest.Fail(errors.New("down")))
	_, err := llm.CallJSON[verdictShape](context.Background(), llmtest.Gateway(p), llm.Request{User: "x"}, nil)
	assert.ErrorIs(t, err, llm.ErrProvidersExhausted)
	assert.NotErrorIs(t, err, llm.ErrSchemaViolation)
}
