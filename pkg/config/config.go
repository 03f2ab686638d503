package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Vector    VectorConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Neo4j     Neo4jConfig
	LLM       LLMConfig
	Answer    AnswerConfig
	Ingestion IngestionConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

// VectorConfig selects the storage engine behind the similarity index.
// Backend is one of "sqlite", "milvus" or "memory".
type VectorConfig struct {
	Backend    string
	SQLitePath string
	Milvus     MilvusConfig
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type LLMConfig struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
	EmbeddingDim   int
}

type AnswerConfig struct {
	NumSources            int
	CategoryLimit         int
	SuggestionSources     int
	MaxTokens             int
	Temperature           float32
	SuggestionMaxTokens   int
	SuggestionTemperature float32
	BatchConcurrency      int
}

type IngestionConfig struct {
	UploadDir   string
	MaxFileSize int
}

type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/reqanswer")

	return load(v)
}

// LoadFile reads configuration from an explicit path instead of the search paths.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("REQANSWER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the settings that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	switch c.Vector.Backend {
	case "sqlite", "milvus", "memory":
	default:
		return fmt.Errorf("invalid vector backend %q", c.Vector.Backend)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic", "local":
	default:
		return fmt.Errorf("invalid llm provider %q", c.LLM.Provider)
	}

	if c.LLM.EmbeddingDim <= 0 {
		return fmt.Errorf("llm.embeddingDim must be positive")
	}
	if c.Answer.NumSources <= 0 {
		return fmt.Errorf("answer.numSources must be positive")
	}
	if c.Answer.BatchConcurrency <= 0 {
		return fmt.Errorf("answer.batchConcurrency must be positive")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8001)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 52428800)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("vector.backend", "sqlite")
	v.SetDefault("vector.sqlitePath", "./data/qa_index.db")
	v.SetDefault("vector.milvus.endpoint", "localhost:19530")
	v.SetDefault("vector.milvus.collectionName", "qa_pairs")
	v.SetDefault("vector.milvus.vectorDim", 1536)

	v.SetDefault("sqlite.path", "./data/ingestion.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlHours", 168)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.maxTokens", 2000)
	v.SetDefault("llm.timeoutSec", 30)
	v.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	v.SetDefault("llm.embeddingDim", 1536)

	v.SetDefault("answer.numSources", 5)
	v.SetDefault("answer.categoryLimit", 3)
	v.SetDefault("answer.suggestionSources", 3)
	v.SetDefault("answer.maxTokens", 2000)
	v.SetDefault("answer.temperature", 0.1)
	v.SetDefault("answer.suggestionMaxTokens", 1500)
	v.SetDefault("answer.suggestionTemperature", 0.2)
	v.SetDefault("answer.batchConcurrency", 1)

	v.SetDefault("ingestion.uploadDir", "./data/uploads")
	v.SetDefault("ingestion.maxFileSize", 20971520)

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.maxRequestsPerMinute", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
