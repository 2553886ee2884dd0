package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ctxforge/ctxforge/model"
)

// Defaults for the Ollama provider.
const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "nomic-embed-text"
)

// OllamaEmbedder generates embeddings through a local Ollama instance.
type OllamaEmbedder struct {
	client     *http.Client
	baseURL    string
	model      string
	dimensions int
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaEmbedder creates a new Ollama embedder.
func NewOllamaEmbedder(config model.EmbeddingConfig) (*OllamaEmbedder, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	modelName := config.Model
	if modelName == "" {
		modelName = DefaultOllamaModel
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &OllamaEmbedder{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL:    baseURL,
		model:      modelName,
		dimensions: config.Dimensions,
	}, nil
}

// Embed generates a vector embedding for the given text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := ollamaEmbedRequest{
		Model:  e.model,
		Prompt: text,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+"/api/embeddings",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, classifyStatus("ollama", resp.StatusCode, body)
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama returned no embedding", model.ErrProviderRejected)
	}

	embedding := make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		embedding[i] = float32(v)
	}

	return embedding, nil
}

// EmbedBatch generates embeddings for multiple texts. Ollama has no native
// batch API, so texts are embedded one by one.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

// Dimensions returns the embedding vector size.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases resources.
func (e *OllamaEmbedder) Close() error {
	return nil
}
