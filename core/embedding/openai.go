package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ctxforge/ctxforge/model"
)

// Defaults for the OpenAI provider.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "text-embedding-3-small"
)

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API or
// any compatible endpoint.
type OpenAIEmbedder struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

type openAIEmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIEmbedder creates a new OpenAI embedder. The API key is read from
// the OPENAI_API_KEY environment variable.
func NewOpenAIEmbedder(config model.EmbeddingConfig) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", model.ErrConfig)
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	modelName := config.Model
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIEmbedder{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      modelName,
		dimensions: config.Dimensions,
	}, nil
}

// Embed generates a vector embedding for the given text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in a single request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := openAIEmbeddingRequest{
		Model: e.model,
		Input: texts,
	}
	// Only text-embedding-3-* models accept a dimensions override.
	if e.model == "text-embedding-3-small" || e.model == "text-embedding-3-large" {
		reqBody.Dimensions = e.dimensions
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+"/embeddings",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", model.ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("openai", resp.StatusCode, body)
	}

	var embedResp openAIEmbeddingResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if embedResp.Error != nil {
		return nil, fmt.Errorf("%w: openai: %s", model.ErrProviderRejected, embedResp.Error.Message)
	}

	// Convert float64 to float32 and order by index.
	embeddings := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		embedding := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			embedding[i] = float32(v)
		}
		embeddings[data.Index] = embedding
	}

	if err := checkBatch(texts, embeddings); err != nil {
		return nil, err
	}

	return embeddings, nil
}

// Dimensions returns the embedding vector size.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	return nil
}

// classifyStatus maps a provider HTTP status to the error taxonomy.
// Server-side and throttling failures are transient; client-side rejections
// are permanent and must not be retried.
func classifyStatus(provider string, status int, body []byte) error {
	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return fmt.Errorf("%w: %s returned status %d: %s", model.ErrProviderUnavailable, provider, status, string(body))
	}
	return fmt.Errorf("%w: %s returned status %d: %s", model.ErrProviderRejected, provider, status, string(body))
}
