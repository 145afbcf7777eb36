package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1536, cfg.LLM.EmbeddingDim)
	assert.Equal(t, 3, cfg.LLM.MaxConcurrent)
	assert.InDelta(t, 0.8, cfg.Pipeline.SimilarityThreshold, 1e-9)
	assert.True(t, cfg.Pipeline.AutoEscalate)
	assert.False(t, cfg.Redis.Enabled)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("INFOSAGE_LLM_APIKEY", "sk-test")
	t.Setenv("INFOSAGE_SERVER_PORT", "9090")
	t.Setenv("INFOSAGE_REDIS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			LLM:      LLMConfig{EmbeddingDim: 1536, MaxConcurrent: 3},
			Zilliz:   ZillizConfig{VectorDim: 1536},
			Pipeline: PipelineConfig{SimilarityThreshold: 0.8},
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Zilliz.Enabled = true
	cfg.Zilliz.VectorDim = 768
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.LLM.MaxConcurrent = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Pipeline.SimilarityThreshold = 1.5
	assert.Error(t, cfg.Validate())
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
