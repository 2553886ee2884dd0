package embedding

import (
	"context"
	"fmt"

	"github.com/ctxforge/ctxforge/helper"
	"github.com/ctxforge/ctxforge/model"
	"github.com/knights-analytics/hugot"
)

// DefaultLocalModel produces 384-dimensional embeddings.
const DefaultLocalModel = "sentence-transformers/all-MiniLM-L6-v2"

// LocalEmbedder runs a sentence-transformers model in-process. No network,
// no API key; the model is downloaded once and cached under ./models.
type LocalEmbedder struct {
	session    *hugot.Session
	run        func(texts []string) ([][]float32, error)
	dimensions int
}

// NewLocalEmbedder creates an embedder backed by a local ONNX model.
func NewLocalEmbedder(config model.EmbeddingConfig) (*LocalEmbedder, error) {
	modelName := config.Model
	if modelName == "" {
		modelName = DefaultLocalModel
	}

	modelPath, err := helper.PrepareModel(modelName, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrProviderUnavailable, err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	pipelineConfig := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, pipelineConfig)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return &LocalEmbedder{
		session: session,
		run: func(texts []string) ([][]float32, error) {
			result, err := sentencePipeline.RunPipeline(texts)
			if err != nil {
				return nil, err
			}
			return result.Embeddings, nil
		},
		dimensions: config.Dimensions,
	}, nil
}

// Embed generates a vector embedding for the given text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in a single pipeline run.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embeddings, err := e.run(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if err := checkBatch(texts, embeddings); err != nil {
		return nil, err
	}

	return embeddings, nil
}

// Dimensions returns the embedding vector size.
func (e *LocalEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the hugot session and its ONNX runtime.
func (e *LocalEmbedder) Close() error {
	return e.session.Destroy()
}
