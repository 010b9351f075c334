package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/logging"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/metrics"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/resilience"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// Verdict is the model's categorical answer for one pair.
type Verdict struct {
	Label     types.VariantType `json:"label"`
	Rationale string            `json:"rationale"`
}

// Adjudicator classifies a skill pair the rules could not resolve.
type Adjudicator interface {
	Classify(ctx context.Context, a, b types.SkillRecord) (*Verdict, error)
}

// ClaudeAdjudicator calls the Anthropic Messages API.
type ClaudeAdjudicator struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	exec      *resilience.Executor
	log       *logging.Logger
	metrics   *metrics.Collector
}

// NewClaudeAdjudicator creates an adjudicator. The API key comes from config
// (populated from ANTHROPIC_API_KEY).
func NewClaudeAdjudicator(cfg config.LLMConfig, exec *resilience.Executor, log *logging.Logger, m *metrics.Collector) (*ClaudeAdjudicator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if log == nil {
		log = logging.NewNop()
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 512
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &ClaudeAdjudicator{
		client:    &client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		exec:      exec,
		log:       log,
		metrics:   m,
	}, nil
}

// Classify asks the model whether a and b are variants of one skill.
func (c *ClaudeAdjudicator) Classify(ctx context.Context, a, b types.SkillRecord) (*Verdict, error) {
	startTime := time.Now()
	prompt := buildClassifyPrompt(a, b)

	var responseText string
	var usage anthropic.Usage
	err := c.exec.Do(ctx, "variant_classify", func(attemptCtx context.Context) error {
		resp, apiErr := c.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: int64(c.maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		var sb strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		responseText = sb.String()
		usage = resp.Usage
		return nil
	})
	if err != nil {
		c.metrics.LLMCall(false)
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	verdict, err := parseVerdict(responseText, c.log)
	c.metrics.LLMCall(err == nil)
	if err != nil {
		return nil, err
	}

	c.log.Debug("adjudicated pair",
		"a", a.ID, "b", b.ID, "label", string(verdict.Label),
		"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens,
		"duration", time.Since(startTime).String())
	return verdict, nil
}

func parseVerdict(text string, log *logging.Logger) (*Verdict, error) {
	res := Parse[Verdict](text, ParseOptions{Context: "variant verdict", Logger: log})
	if !res.Success {
		return nil, fmt.Errorf("failed to parse verdict: %s (response: %s)", res.Error, truncate(text, 200))
	}
	v := res.Data
	v.Label = types.VariantType(strings.ToLower(strings.TrimSpace(string(v.Label))))
	if !v.Label.IsValid() {
		return nil, fmt.Errorf("invalid verdict label %q", v.Label)
	}
	v.Rationale = strings.TrimSpace(v.Rationale)
	return &v, nil
}

var _ Adjudicator = (*ClaudeAdjudicator)(nil)
