package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testVerdict struct {
	Label     string `json:"label"`
	Rationale string `json:"rationale"`
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		label string
	}{
		{"direct", `{"label": "unrelated", "rationale": "r"}`, "unrelated"},
		{"json fence", "```json\n{\"label\": \"cross-authority\", \"rationale\": \"r\"}\n```", "cross-authority"},
		{"fence with preamble", "Here is my answer:\n```\n{\"label\": \"grade-progression\"}\n```\nThanks", "grade-progression"},
		{"trailing comma", `{"label": "unrelated", "rationale": "r",}`, "unrelated"},
		{"unquoted keys", `{label: "unrelated", rationale: "r"}`, "unrelated"},
		{"comment line", "{\n// verdict\n\"label\": \"unrelated\"\n}", "unrelated"},
		{"mixed prose", `I think {"label": "cross-authority", "rationale": "same skill"} is right.`, "cross-authority"},
		{"apostrophe survives", `{"label": "unrelated", "rationale": "it's different"}`, "unrelated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse[testVerdict](tt.input, ParseOptions{Context: "test"})
			require.True(t, res.Success, res.Error)
			assert.Equal(t, tt.label, res.Data.Label)
		})
	}
}

func TestParseFailures(t *testing.T) {
	res := Parse[testVerdict]("", ParseOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, "empty input", res.Error)

	res = Parse[testVerdict]("no json here", ParseOptions{Context: "verdict"})
	assert.False(t, res.Success)
	assert.Equal(t, "verdict: all JSON parsing strategies failed", res.Error)

	res = Parse[testVerdict](`{"label": "x"}`, ParseOptions{MaxInputSize: 5})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "exceeds size limit")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
