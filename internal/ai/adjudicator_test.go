package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/logging"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/resilience"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    types.VariantType
		wantErr bool
	}{
		{"plain", `{"label": "cross-authority", "rationale": " same skill "}`, types.VariantCrossAuthority, false},
		{"case folded", `{"label": "Grade-Progression", "rationale": "x"}`, types.VariantGradeProgression, false},
		{"fenced", "```json\n{\"label\": \"unrelated\"}\n```", types.VariantUnrelated, false},
		{"unknown label", `{"label": "maybe"}`, "", true},
		{"garbage", `sorry, I cannot help`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseVerdict(tt.input, logging.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Label)
		})
	}

	v, err := parseVerdict(`{"label": "cross-authority", "rationale": " same skill "}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "same skill", v.Rationale)
}

func TestBuildClassifyPrompt(t *testing.T) {
	a := types.SkillRecord{ID: "s1", Text: "Blend phonemes", GradeLabel: "K", Area: "Reading", ContentDomain: "Phonics"}
	b := types.SkillRecord{ID: "s2", Text: "Blend sounds", Authority: "CCSS", GradeLabel: "1", Grade: 1, Area: "Reading", ContentDomain: "Phonics"}

	p := buildClassifyPrompt(a, b)
	assert.Contains(t, p, "Text: Blend phonemes")
	assert.Contains(t, p, "Authority: (unspecified)")
	assert.Contains(t, p, "Authority: CCSS")
	assert.Contains(t, p, "band K-2")
}

func TestNewClaudeAdjudicatorRequiresKey(t *testing.T) {
	exec := resilience.New("llm", resilience.Options{}, nil)

	_, err := NewClaudeAdjudicator(config.LLMConfig{Model: "m"}, exec, nil, nil)
	assert.ErrorContains(t, err, "ANTHROPIC_API_KEY")

	adj, err := NewClaudeAdjudicator(config.LLMConfig{Model: "m", APIKey: "k"}, exec, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 512, adj.maxTokens)
}
