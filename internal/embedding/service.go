package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
)

// Service turns texts into vectors. Implementations return one vector per input,
// in input order.
type Service interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// OpenAIService calls the OpenAI embeddings endpoint.
type OpenAIService struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIService creates the embedding client. The API key comes from config
// (populated from OPENAI_API_KEY).
func NewOpenAIService(cfg config.EmbeddingConfig) (*OpenAIService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &OpenAIService{
		client:     &client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (s *OpenAIService) Model() string { return s.model }

// Embed sends one batch request.
func (s *OpenAIService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(texts))
	for i, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			t = " "
		}
		clean[i] = t
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: clean},
		Model: openai.EmbeddingModel(s.model),
	}
	if s.dimensions > 0 && strings.HasPrefix(s.model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(s.dimensions))
	}

	resp, err := s.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[idx] = vec
	}
	for i := range out {
		if len(out[i]) == 0 {
			// Treated as transient so the batch is retried.
			return nil, fmt.Errorf("embeddings response missing index %d of %d: temporary failure", i, len(out))
		}
	}
	return out, nil
}

var _ Service = (*OpenAIService)(nil)
