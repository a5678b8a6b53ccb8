package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, 30000, cfg.MaxChunkChars)
	assert.Equal(t, 4, cfg.ChunkConcurrency)
	assert.Equal(t, 6, cfg.VisionConcurrency)
	assert.Equal(t, 1, cfg.MaxCorrectionRounds)
	assert.Equal(t, 0.60, cfg.QuoteSimilarityThreshold)
	assert.Equal(t, 0.50, cfg.StatMatchThreshold)
	assert.Equal(t, time.Hour, cfg.JobTTL)
	assert.Equal(t, cfg.OpenAIModel, cfg.VisionModel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MAX_CHUNK_CHARS", "12000")
	t.Setenv("JOB_TTL", "10m")
	t.Setenv("AZURE_OPENAI_API_KEY", "azure-key")
	t.Setenv("AZURE_OPENAI_MODEL_DEPLOYMENT", "my-deployment")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 12000, cfg.MaxChunkChars)
	assert.Equal(t, 10*time.Minute, cfg.JobTTL)
	assert.Equal(t, "azure-key", cfg.OpenAIAPIKey)
	assert.Equal(t, "my-deployment", cfg.OpenAIModel)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groundtruth.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker_count: 7\nvision_model: gpt-4o-mini\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.WorkerCount)
	assert.Equal(t, "gpt-4o-mini", cfg.VisionModel)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.OpenAIAPIKey = ""
	assert.ErrorContains(t, cfg.Validate(), "OPENAI_API_KEY")

	cfg.OpenAIAPIKey = "k"
	assert.NoError(t, cfg.Validate())
	assert.ErrorContains(t, cfg.ValidateServer(), "GROUNDTRUTH_API_KEY")

	cfg.APIKey = "bearer"
	assert.NoError(t, cfg.ValidateServer())

	cfg.StatMatchThreshold = 1.5
	assert.ErrorContains(t, cfg.Validate(), "STAT_MATCH_THRESHOLD")
}
