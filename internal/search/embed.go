package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const DefaultEmbeddingModel = openai.EmbeddingModelTextEmbedding3Small

// OpenAIEmbedder embeds queries with the OpenAI embeddings API. The model
// must match the one the index was built with.
type OpenAIEmbedder struct {
	client openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIEmbedder(model string, opts ...option.RequestOption) *OpenAIEmbedder {
	m := openai.EmbeddingModel(model)
	if model == "" {
		m = DefaultEmbeddingModel
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		model:  m,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	res, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(res.Data) == 0 {
		return nil, errors.New("embeddings: empty response")
	}
	return res.Data[0].Embedding, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)
