package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"MAX_ITERATIONS", "MIN_EVIDENCE_COUNT", "MIN_SCORE", "CONCURRENCY", "PER_CALL_TIMEOUT_MS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.Equal(t, 5, cfg.MinEvidenceCount)
	assert.Equal(t, 0.4, cfg.MinScore)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 30000, cfg.PerCallTimeoutMs)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MAX_ITERATIONS", "7")
	t.Setenv("MIN_SCORE", "0.6")
	t.Setenv("PER_CALL_TIMEOUT_MS", "5000")
	t.Setenv("EMBEDDING_DIM", "not-a-number")

	cfg := Load()
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Equal(t, 0.6, cfg.MinScore)
	assert.Equal(t, 5000, cfg.PerCallTimeoutMs)
	assert.Equal(t, 1536, cfg.EmbeddingDim, "unparseable values fall back to the default")
}
