package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LLMプロバイダー
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// インデックス保存先
const (
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// 埋め込み・生成に使用するプロバイダー（"gemini" or "openai"）
	LLMProvider string

	Gemini GeminiConfig
	OpenAI OpenAIConfig

	Embedding  EmbeddingConfig
	Generation GenerationConfig
	Chunk      ChunkConfig

	// ChainCacheSize は保持するチャットボット数の上限（0 で無制限）
	ChainCacheSize int
	BuildTimeout   time.Duration

	Store    StoreConfig
	Database DatabaseConfig

	Log LogConfig
}

// GeminiConfig は Gemini API 設定
type GeminiConfig struct {
	APIKey              string
	EmbedEndpoints      []string
	BatchEmbedEndpoints []string
	GenerateEndpoint    string
}

// OpenAIConfig は OpenAI 互換 API 設定
// BaseURLs を複数指定すると先頭から順にフォールバックします
type OpenAIConfig struct {
	APIKey   string
	BaseURLs []string
}

// EmbeddingConfig は埋め込み設定
type EmbeddingConfig struct {
	Model        string
	Timeout      time.Duration
	BatchTimeout time.Duration
	RateLimit    float64 // 1秒あたりのリクエスト数（0 で無制限）
}

// GenerationConfig は回答生成設定
type GenerationConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	TopK        int
	Timeout     time.Duration
	OwnerName   string
}

// ChunkConfig はチャンク分割設定（文字数単位）
type ChunkConfig struct {
	Size    int
	Overlap int
}

// StoreConfig はインデックス保存先の設定
type StoreConfig struct {
	Backend         string // "gcs", "postgres" or "bolt"
	GCSBucket       string
	GCSPrefix       string
	CredentialsFile string
	BoltPath        string
	ScratchDir      string
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		LLMProvider: strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
		Gemini: GeminiConfig{
			APIKey:              getEnv("GEMINI_API_KEY", ""),
			EmbedEndpoints:      getEnvAsList("GEMINI_EMBED_ENDPOINTS", nil),
			BatchEmbedEndpoints: getEnvAsList("GEMINI_BATCH_EMBED_ENDPOINTS", nil),
			GenerateEndpoint:    getEnv("GEMINI_GENERATE_ENDPOINT", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey:   getEnv("OPENAI_API_KEY", ""),
			BaseURLs: getEnvAsList("OPENAI_BASE_URLS", nil),
		},
		Embedding: EmbeddingConfig{
			Model:        getEnv("EMBEDDING_MODEL", ""),
			Timeout:      getEnvAsDuration("EMBED_TIMEOUT", 30*time.Second),
			BatchTimeout: getEnvAsDuration("EMBED_BATCH_TIMEOUT", 60*time.Second),
			RateLimit:    getEnvAsFloat("EMBED_RATE_LIMIT", 0),
		},
		Generation: GenerationConfig{
			Model:       getEnv("GENERATION_MODEL", ""),
			Temperature: getEnvAsFloat("GENERATION_TEMPERATURE", 0.2),
			MaxTokens:   getEnvAsInt("GENERATION_MAX_TOKENS", 512),
			TopK:        getEnvAsInt("RETRIEVAL_TOP_K", 5),
			Timeout:     getEnvAsDuration("GENERATION_TIMEOUT", 60*time.Second),
			OwnerName:   getEnv("OWNER_NAME", ""),
		},
		Chunk: ChunkConfig{
			Size:    getEnvAsInt("CHUNK_SIZE", 1500),
			Overlap: getEnvAsInt("CHUNK_OVERLAP", 300),
		},
		ChainCacheSize: getEnvAsInt("CHAIN_CACHE_SIZE", 256),
		BuildTimeout:   getEnvAsDuration("BUILD_TIMEOUT", 5*time.Minute),
		Store: StoreConfig{
			Backend:         strings.ToLower(getEnv("INDEX_STORE_BACKEND", BackendBolt)),
			GCSBucket:       getEnv("GCS_BUCKET", ""),
			GCSPrefix:       getEnv("GCS_PREFIX", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			BoltPath:        getEnv("BOLT_PATH", "portfolio-rag.db"),
			ScratchDir:      getEnv("SCRATCH_DIR", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "portfolio"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "portfolio"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

// Validate は必須の設定が揃っているかを検証します
func (c *Config) Validate() error {
	var errs []error

	switch c.LLMProvider {
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when LLM_PROVIDER=gemini"))
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when LLM_PROVIDER=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM_PROVIDER: %q", c.LLMProvider))
	}

	switch c.Store.Backend {
	case BackendGCS:
		if c.Store.GCSBucket == "" {
			errs = append(errs, errors.New("GCS_BUCKET is required when INDEX_STORE_BACKEND=gcs"))
		}
	case BackendPostgres:
		if c.Database.Host == "" || c.Database.DBName == "" {
			errs = append(errs, errors.New("DB_HOST and DB_NAME are required when INDEX_STORE_BACKEND=postgres"))
		}
	case BackendBolt:
		if c.Store.BoltPath == "" {
			errs = append(errs, errors.New("BOLT_PATH is required when INDEX_STORE_BACKEND=bolt"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported INDEX_STORE_BACKEND: %q", c.Store.Backend))
	}

	if c.Chunk.Size <= 0 || c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		errs = append(errs, fmt.Errorf("invalid chunk settings: size=%d overlap=%d", c.Chunk.Size, c.Chunk.Overlap))
	}
	if c.Generation.TopK <= 0 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_TOP_K must be positive (got %d)", c.Generation.TopK))
	}
	if c.ChainCacheSize < 0 {
		errs = append(errs, fmt.Errorf("CHAIN_CACHE_SIZE must not be negative (got %d)", c.ChainCacheSize))
	}

	return errors.Join(errs...)
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: "30s"）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList はカンマ区切りの環境変数をスライスとして取得します
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
