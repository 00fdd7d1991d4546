// internal/pipeline/grounding/retrieve-knowledge/embedder.go
package retrieveknowledge

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Embedder turns a query into a vector in the index's embedding space.
type Embedder interface {
	Embed(ctx context.Context, text string, model string, dim int) ([]float32, error)
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
}

func NewOpenAIEmbedder(apiKey, baseURL string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(cfg)}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string, model string, dim int) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	}
	if dim > 0 {
		req.Dimensions = dim
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response had no data")
	}
	return resp.Data[0].Embedding, nil
}
