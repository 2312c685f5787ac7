package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv はテスト中に参照する環境変数を未設定にする
// godotenv は既に存在するキーを上書きしないため、空文字ではなく削除する
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_PROVIDER", "GEMINI_API_KEY", "GEMINI_EMBED_ENDPOINTS", "OPENAI_API_KEY", "OPENAI_BASE_URLS",
		"CHUNK_SIZE", "CHUNK_OVERLAP", "EMBED_TIMEOUT", "CHAIN_CACHE_SIZE", "INDEX_STORE_BACKEND",
		"GCS_BUCKET", "BOLT_PATH", "RETRIEVAL_TOP_K",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.LLMProvider)
	assert.Equal(t, 1500, cfg.Chunk.Size)
	assert.Equal(t, 300, cfg.Chunk.Overlap)
	assert.Equal(t, 5, cfg.Generation.TopK)
	assert.Equal(t, 0.2, cfg.Generation.Temperature)
	assert.Equal(t, 256, cfg.ChainCacheSize)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, BackendBolt, cfg.Store.Backend)
	assert.Nil(t, cfg.Gemini.EmbedEndpoints)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	content := "LLM_PROVIDER=OpenAI\n" +
		"OPENAI_API_KEY=sk-test\n" +
		"OPENAI_BASE_URLS= https://a.example/v1 , ,https://b.example/v1\n" +
		"EMBED_TIMEOUT=5s\n" +
		"CHUNK_SIZE=800\n" +
		"CHUNK_OVERLAP=100\n" +
		"CHAIN_CACHE_SIZE=0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, []string{"https://a.example/v1", "https://b.example/v1"}, cfg.OpenAI.BaseURLs)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 800, cfg.Chunk.Size)
	assert.Equal(t, 100, cfg.Chunk.Overlap)
	assert.Equal(t, 0, cfg.ChainCacheSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoad_InvalidNumbersFallBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHUNK_SIZE", "large")
	t.Setenv("EMBED_TIMEOUT", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1500, cfg.Chunk.Size)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Timeout)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LLMProvider: ProviderGemini,
			Gemini:      GeminiConfig{APIKey: "key"},
			Generation:  GenerationConfig{TopK: 5},
			Chunk:       ChunkConfig{Size: 1500, Overlap: 300},
			Store:       StoreConfig{Backend: BackendBolt, BoltPath: "index.db"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "有効な設定", mutate: func(*Config) {}},
		{name: "GeminiのAPIキー未設定", mutate: func(c *Config) { c.Gemini.APIKey = "" }, wantErr: "GEMINI_API_KEY"},
		{name: "OpenAIのAPIキー未設定", mutate: func(c *Config) { c.LLMProvider = ProviderOpenAI }, wantErr: "OPENAI_API_KEY"},
		{name: "未知のプロバイダー", mutate: func(c *Config) { c.LLMProvider = "anthropic" }, wantErr: "unsupported LLM_PROVIDER"},
		{name: "GCSバケット未設定", mutate: func(c *Config) { c.Store.Backend = BackendGCS }, wantErr: "GCS_BUCKET"},
		{name: "未知の保存先", mutate: func(c *Config) { c.Store.Backend = "s3" }, wantErr: "unsupported INDEX_STORE_BACKEND"},
		{name: "オーバーラップがサイズ以上", mutate: func(c *Config) { c.Chunk.Overlap = 1500 }, wantErr: "invalid chunk settings"},
		{name: "TopKが0", mutate: func(c *Config) { c.Generation.TopK = 0 }, wantErr: "RETRIEVAL_TOP_K"},
		{name: "キャッシュサイズが負", mutate: func(c *Config) { c.ChainCacheSize = -1 }, wantErr: "CHAIN_CACHE_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
