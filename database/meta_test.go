package database

import (
	"testing"
	"time"

	"github.com/ctxforge/ctxforge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetaNewIndexMetaDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewIndexMetaDBHandler", func(t *testing.T) {
		metaDbHandler, err := NewIndexMetaDBHandler(database, true)
		assert.NoError(t, err, "Expected NewIndexMetaDBHandler to not return an error")
		require.NotNil(t, metaDbHandler, "Expected NewIndexMetaDBHandler to return a non-nil instance")
	})

	t.Run("Invalid call NewIndexMetaDBHandler with nil database", func(t *testing.T) {
		_, err := NewIndexMetaDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating IndexMetaDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestMetaEnsure(t *testing.T) {
	database := initDB(t)

	metaDbHandler, err := NewIndexMetaDBHandler(database, true)
	require.NoError(t, err)

	t.Run("First ensure writes the meta row", func(t *testing.T) {
		meta, err := metaDbHandler.EnsureMeta(testDimension, MetricCosine)
		assert.NoError(t, err, "Expected first EnsureMeta to not return an error")
		require.NotNil(t, meta)
		assert.Equal(t, testDimension, meta.Dimension, "Expected stored dimension to match configuration")
		assert.Equal(t, MetricCosine, meta.Metric, "Expected stored metric to match configuration")
		assert.WithinDuration(t, meta.CreatedAt, time.Now(), 2*time.Second, "Expected CreatedAt to be set")
	})

	t.Run("Matching ensure verifies against the stored row", func(t *testing.T) {
		meta, err := metaDbHandler.EnsureMeta(testDimension, MetricCosine)
		assert.NoError(t, err, "Expected matching EnsureMeta to not return an error")
		require.NotNil(t, meta)
		assert.Equal(t, testDimension, meta.Dimension)
	})

	t.Run("Dimension mismatch refuses to serve", func(t *testing.T) {
		_, err := metaDbHandler.EnsureMeta(512, MetricCosine)
		assert.ErrorIs(t, err, model.ErrDimensionMismatch, "Expected a differently configured engine to be rejected")
	})

	t.Run("Metric mismatch refuses to serve", func(t *testing.T) {
		_, err := metaDbHandler.EnsureMeta(testDimension, "l2")
		assert.ErrorIs(t, err, model.ErrDimensionMismatch, "Expected a differently configured engine to be rejected")
	})

	t.Run("SelectMeta reads the stored row", func(t *testing.T) {
		meta, err := metaDbHandler.SelectMeta()
		assert.NoError(t, err, "Expected SelectMeta to not return an error")
		require.NotNil(t, meta)
		assert.Equal(t, testDimension, meta.Dimension)
		assert.Equal(t, MetricCosine, meta.Metric)
	})
}
