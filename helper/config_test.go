package helper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctxforge/ctxforge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctxforge.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadEngineConfig(t *testing.T) {
	t.Run("Empty file yields the defaults", func(t *testing.T) {
		path := writeConfigFile(t, "")

		config, err := LoadEngineConfig(path)
		require.NoError(t, err, "Expected LoadEngineConfig to not return an error")
		assert.Equal(t, model.DefaultEngineConfig(), config)
	})

	t.Run("Set keys override, absent keys keep defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
[chunking]
max_chunk_tokens = 128

[retrieval]
top_k = 10

[ranking]
recency_half_life = "336h"

[embedding]
provider = "ollama"
base_url = "http://localhost:11434"
model = "nomic-embed-text"
dimensions = 768
`)

		config, err := LoadEngineConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 128, config.Chunking.MaxChunkTokens)
		assert.Equal(t, 0.15, config.Chunking.OverlapFraction, "Expected the default overlap to survive")
		assert.Equal(t, 10, config.Retrieval.TopK)
		assert.Equal(t, 14*24*time.Hour, config.Ranking.RecencyHalfLife)
		assert.Equal(t, "ollama", config.Embedding.Provider)
		assert.Equal(t, 768, config.Embedding.Dimensions)
		assert.Equal(t, 0.6, config.Ranking.SimilarityWeight, "Expected the default ranking weights to survive")
	})

	t.Run("Trust weights can be overridden per source type", func(t *testing.T) {
		path := writeConfigFile(t, `
[ranking.trust_by_source]
article = 1.0
ticket = 0.9
transcript = 0.6
note = 0.4
`)

		config, err := LoadEngineConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 0.9, config.Ranking.TrustBySource[model.SourceTypeTicket])
		assert.Equal(t, 0.4, config.Ranking.TrustBySource[model.SourceTypeNote])
	})

	t.Run("Index section selects the vector index structure", func(t *testing.T) {
		path := writeConfigFile(t, `
[index]
type = "ivfflat"
lists = 200
`)

		config, err := LoadEngineConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "ivfflat", config.Index.Type)
		assert.Equal(t, 200, config.Index.Lists)
	})

	t.Run("Unknown index type is rejected", func(t *testing.T) {
		path := writeConfigFile(t, `
[index]
type = "flat"
`)

		_, err := LoadEngineConfig(path)
		assert.ErrorIs(t, err, model.ErrConfig)
	})

	t.Run("Invalid merged configuration is rejected", func(t *testing.T) {
		path := writeConfigFile(t, `
[retrieval]
top_k = 0
`)

		_, err := LoadEngineConfig(path)
		assert.ErrorIs(t, err, model.ErrConfig)
	})

	t.Run("Unparseable duration is a config error", func(t *testing.T) {
		path := writeConfigFile(t, `
[ranking]
recency_half_life = "7 days"
`)

		_, err := LoadEngineConfig(path)
		assert.ErrorIs(t, err, model.ErrConfig)
	})

	t.Run("Missing file is a config error", func(t *testing.T) {
		_, err := LoadEngineConfig(filepath.Join(t.TempDir(), "missing.toml"))
		assert.ErrorIs(t, err, model.ErrConfig)
	})
}
