package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/kbchat/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := config.Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "productKnowledgePool", cfg.Paths.KnowledgeRoot)
	assert.Equal(t, "vectorStore", cfg.Paths.VectorRoot)
	assert.Equal(t, "gpt-3.5-turbo-0125", cfg.OpenAI.ChatModel)
	assert.Equal(t, "text-embedding-ada-002", cfg.OpenAI.EmbeddingModel)
	assert.Equal(t, "s3.amazonaws.com", cfg.Storage.Endpoint)
	assert.Equal(t, 15, cfg.Chat.RetrievalK)
	assert.Equal(t, 1000, cfg.Chat.ChunkSize)
	assert.Equal(t, 200, cfg.Chat.ChunkOverlap)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Config{}
		cfg.ApplyDefaults()
		cfg.OpenAI.APIKey = "sk-test"
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(*config.Config)
		wantError bool
	}{
		{
			name:   "valid",
			mutate: func(c *config.Config) {},
		},
		{
			name:      "missing api key",
			mutate:    func(c *config.Config) { c.OpenAI.APIKey = "" },
			wantError: true,
		},
		{
			name:      "zero retrieval k",
			mutate:    func(c *config.Config) { c.Chat.RetrievalK = -1 },
			wantError: true,
		},
		{
			name:      "overlap not smaller than chunk size",
			mutate:    func(c *config.Config) { c.Chat.ChunkOverlap = c.Chat.ChunkSize },
			wantError: true,
		},
		{
			name:      "bad log level",
			mutate:    func(c *config.Config) { c.Logging.Level = "loud" },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantError {
				require.Error(t, err)
				assert.ErrorIs(t, err, config.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("STORAGE_BUCKET", "kb-mirrors")
	t.Setenv("CHAT_RETRIEVAL_K", "5")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.OpenAI.APIKey)
	assert.Equal(t, "kb-mirrors", cfg.Storage.Bucket)
	assert.Equal(t, 5, cfg.Chat.RetrievalK)
	// Defaults still fill untouched fields.
	assert.Equal(t, "vectorStore", cfg.Paths.VectorRoot)
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "kbchat.yaml")
	content := []byte("storage:\n  bucket: from-file\n  endpoint: minio.local:9000\n  insecure: true\nchat:\n  retrieval_k: 7\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Storage.Bucket)
	assert.Equal(t, "minio.local:9000", cfg.Storage.Endpoint)
	assert.True(t, cfg.Storage.Insecure)
	assert.Equal(t, 7, cfg.Chat.RetrievalK)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("STORAGE_BUCKET", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "kbchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  bucket: from-file\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Storage.Bucket)
}

func TestLoad_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoad_BadYAML(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "kbchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\t not yaml ["), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
