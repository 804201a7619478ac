package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "test-key", cfg.APIKey)
	assert.Equal(t, 512, cfg.EmbeddingDim)
	assert.InDelta(t, 60.0, cfg.DuplicateThreshold, 1e-9)
	assert.InDelta(t, 98.0, cfg.FrameSkipThreshold, 1e-9)
	assert.InDelta(t, 75.0, cfg.SearchMinScore, 1e-9)
	assert.False(t, cfg.SearchBestEffort)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.True(t, cfg.RiverEnabled)
	assert.Equal(t, 2, cfg.RiverWorkers)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxRequestBodyBytes)
	assert.Equal(t, 1024, cfg.IdentityCacheSize)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_KEY", "test-key")
	t.Setenv("EMBEDDING_DIM", "128")
	t.Setenv("DUPLICATE_THRESHOLD", "70")
	t.Setenv("FRAME_SKIP_THRESHOLD", "99")
	t.Setenv("SCAN_TIMEOUT_SECONDS", "5")
	t.Setenv("SEARCH_BEST_EFFORT", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.EmbeddingDim)
	assert.InDelta(t, 70.0, cfg.DuplicateThreshold, 1e-9)
	assert.InDelta(t, 99.0, cfg.FrameSkipThreshold, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.ScanTimeout)
	assert.True(t, cfg.SearchBestEffort)
}

func TestLoadRejectsInvalidThresholds(t *testing.T) {
	t.Setenv("API_KEY", "test-key")
	t.Setenv("DUPLICATE_THRESHOLD", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsFrameSkipBelowDuplicateThreshold(t *testing.T) {
	// The frame-skip threshold must stay above the duplicate threshold, or
	// distinct-but-similar angles of the enrolling person would be discarded.
	t.Setenv("API_KEY", "test-key")
	t.Setenv("DUPLICATE_THRESHOLD", "60")
	t.Setenv("FRAME_SKIP_THRESHOLD", "50")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadEmbeddingDim(t *testing.T) {
	t.Setenv("API_KEY", "test-key")
	t.Setenv("EMBEDDING_DIM", "-1")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFallsBackOnUnparsableValues(t *testing.T) {
	t.Setenv("API_KEY", "test-key")
	t.Setenv("EMBEDDING_DIM", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.EmbeddingDim)
}
