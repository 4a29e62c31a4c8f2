package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/model"
	"google.golang.org/genai"
)

// Embedder converts text into a fixed-length vector. All vectors produced
// by one Embedder share the same dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// GeminiEmbedder implements Embedder on the Gemini embedding API via
// Vertex AI.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
	timeout   time.Duration
}

type GeminiOption func(*GeminiEmbedder)

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiEmbedder) {
		g.model = model
	}
}

func WithDimension(dim int) GeminiOption {
	return func(g *GeminiEmbedder) {
		g.dimension = dim
	}
}

func WithEmbedTimeout(d time.Duration) GeminiOption {
	return func(g *GeminiEmbedder) {
		g.timeout = d
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiEmbedder{
		client:    client,
		model:     "gemini-embedding-001",
		dimension: 768,
		timeout:   5 * time.Second,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiEmbedder) Dimension() int {
	return g.dimension
}

// Embed computes the embedding for text. It fails with
// model.ErrEmbeddingUnavailable when the client is not initialized and
// model.ErrEmbeddingTimeout when the configured deadline elapses.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.client == nil {
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "genai client is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	dim := int32(g.dimension)
	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, goerr.Wrap(model.ErrEmbeddingTimeout, "embedding exceeded deadline", goerr.V("timeout", g.timeout))
		}
		return nil, goerr.Wrap(err, "failed to embed content")
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "embedding response is empty")
	}

	vec := resp.Embeddings[0].Values
	if len(vec) != g.dimension {
		return nil, goerr.New("embedding dimension mismatch",
			goerr.V("want", g.dimension), goerr.V("got", len(vec)))
	}

	return vec, nil
}
