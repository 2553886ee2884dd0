package helper

import (
	"fmt"
	"os"
	"time"

	"github.com/ctxforge/ctxforge/model"
	"github.com/pelletier/go-toml/v2"
)

// duration unmarshals TOML duration strings like "168h" or "10s" through
// time.ParseDuration.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// rankingDocument mirrors model.RankingConfig with TOML-friendly durations.
type rankingDocument struct {
	SimilarityWeight float64                      `toml:"similarity_weight"`
	RecencyWeight    float64                      `toml:"recency_weight"`
	TrustWeight      float64                      `toml:"trust_weight"`
	RecencyHalfLife  duration                     `toml:"recency_half_life"`
	TrustBySource    map[model.SourceType]float64 `toml:"trust_by_source"`
}

// embeddingDocument mirrors model.EmbeddingConfig with TOML-friendly durations.
type embeddingDocument struct {
	Provider   string   `toml:"provider"`
	Model      string   `toml:"model"`
	BaseURL    string   `toml:"base_url"`
	Dimensions int      `toml:"dimensions"`
	Timeout    duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
}

// engineConfigDocument is the on-disk shape of the engine configuration.
type engineConfigDocument struct {
	Chunking  model.ChunkingConfig  `toml:"chunking"`
	Retrieval model.RetrievalConfig `toml:"retrieval"`
	Ranking   rankingDocument       `toml:"ranking"`
	Embedding embeddingDocument     `toml:"embedding"`
	Index     model.IndexConfig     `toml:"index"`
}

// LoadEngineConfig reads the engine configuration from a TOML file. Absent
// keys keep their defaults; the merged result is validated before it is
// returned, so a running engine never sees a partially valid configuration.
func LoadEngineConfig(path string) (model.EngineConfig, error) {
	config := model.DefaultEngineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return model.EngineConfig{}, fmt.Errorf("%w: read config file %s: %v", model.ErrConfig, path, err)
	}

	document := engineConfigDocument{
		Chunking:  config.Chunking,
		Retrieval: config.Retrieval,
		Ranking: rankingDocument{
			SimilarityWeight: config.Ranking.SimilarityWeight,
			RecencyWeight:    config.Ranking.RecencyWeight,
			TrustWeight:      config.Ranking.TrustWeight,
			RecencyHalfLife:  duration(config.Ranking.RecencyHalfLife),
			TrustBySource:    config.Ranking.TrustBySource,
		},
		Embedding: embeddingDocument{
			Provider:   config.Embedding.Provider,
			Model:      config.Embedding.Model,
			BaseURL:    config.Embedding.BaseURL,
			Dimensions: config.Embedding.Dimensions,
			Timeout:    duration(config.Embedding.Timeout),
			MaxRetries: config.Embedding.MaxRetries,
		},
		Index: config.Index,
	}

	if err := toml.Unmarshal(data, &document); err != nil {
		return model.EngineConfig{}, fmt.Errorf("%w: parse config file %s: %v", model.ErrConfig, path, err)
	}

	config.Chunking = document.Chunking
	config.Retrieval = document.Retrieval
	config.Ranking = model.RankingConfig{
		SimilarityWeight: document.Ranking.SimilarityWeight,
		RecencyWeight:    document.Ranking.RecencyWeight,
		TrustWeight:      document.Ranking.TrustWeight,
		RecencyHalfLife:  time.Duration(document.Ranking.RecencyHalfLife),
		TrustBySource:    document.Ranking.TrustBySource,
	}
	config.Embedding = model.EmbeddingConfig{
		Provider:   document.Embedding.Provider,
		Model:      document.Embedding.Model,
		BaseURL:    document.Embedding.BaseURL,
		Dimensions: document.Embedding.Dimensions,
		Timeout:    time.Duration(document.Embedding.Timeout),
		MaxRetries: document.Embedding.MaxRetries,
	}
	config.Index = document.Index

	if err := config.Validate(); err != nil {
		return model.EngineConfig{}, err
	}

	return config, nil
}
