package grader

import (
	"context"
	"fmt"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// EmbeddingClient scores similarity by embedding both texts through an
// OpenAI-compatible API and comparing them with cosine similarity. It is a
// drop-in alternative to the dedicated grading service for deployments that
// already run an embeddings endpoint (e.g. Ollama).
type EmbeddingClient struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// NewEmbeddingClient creates an embeddings-backed similarity client.
func NewEmbeddingClient(baseURL, apiKey, modelName string, timeout time.Duration) *EmbeddingClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &EmbeddingClient{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		timeout: timeout,
	}
}

// Score implements Client. Both texts go out in one batched request.
func (c *EmbeddingClient) Score(ctx context.Context, studentAnswer, referenceAnswer string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: []string{studentAnswer, referenceAnswer},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Data) != 2 {
		return 0, fmt.Errorf("expected 2 embeddings, got %d", len(resp.Data))
	}

	sim, err := cosineSimilarity(resp.Data[0].Embedding, resp.Data[1].Embedding)
	if err != nil {
		return 0, err
	}
	// Clamp: near-opposite vectors would otherwise fall outside [0, 1].
	return math.Max(0, math.Min(1, sim)), nil
}

func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("embedding dimensions mismatch: %d vs %d", len(a), len(b))
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, fmt.Errorf("zero-magnitude embedding")
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}
