package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Zilliz     ZillizConfig
	Neo4j      Neo4jConfig
	LLM        LLMConfig
	Search     SearchConfig
	Pipeline   PipelineConfig
	Clustering ClusteringConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
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

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled       bool
	Host          string
	Port          int
	Password      string
	DB            int
	EmbeddingTTL  int
	ChannelPrefix string
}

type ZillizConfig struct {
	Enabled        bool
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type LLMConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	FastModel         string
	ResearchModel     string
	Temperature       float32
	MaxTokens         int
	TimeoutSec        int
	ResearchTimeout   int
	EmbeddingModel    string
	EmbeddingDim      int
	MaxConcurrent     int
	RequestsPerSecond float64
}

type SearchConfig struct {
	Enabled    bool
	SerpAPIKey string
	BaseURL    string
	MaxResults int
	TimeoutSec int
}

type PipelineConfig struct {
	Workers             int
	QueueSize           int
	FeatureTimeoutSec   int
	SimilarityThreshold float64
	SimilarityLimit     int
	AutoEscalate        bool
	RunTimeoutSec       int
}

type ClusteringConfig struct {
	MaxClusters   int
	MaxIterations int
	Seed          int64
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
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
	v.AddConfigPath("/etc/infosage")

	v.SetEnvPrefix("INFOSAGE")
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

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.LLM.EmbeddingDim <= 0 {
		return fmt.Errorf("invalid config: llm.embeddingDim must be positive")
	}
	if c.Zilliz.Enabled && c.Zilliz.VectorDim != c.LLM.EmbeddingDim {
		return fmt.Errorf("invalid config: zilliz.vectorDim (%d) must equal llm.embeddingDim (%d)",
			c.Zilliz.VectorDim, c.LLM.EmbeddingDim)
	}
	if c.LLM.MaxConcurrent <= 0 {
		return fmt.Errorf("invalid config: llm.maxConcurrent must be positive")
	}
	if c.Pipeline.SimilarityThreshold < 0 || c.Pipeline.SimilarityThreshold > 1 {
		return fmt.Errorf("invalid config: pipeline.similarityThreshold must be within [0,1]")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:5173"})
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./data/infosage.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embeddingTTL", 86400)
	v.SetDefault("redis.channelPrefix", "infosage")

	v.SetDefault("zilliz.enabled", false)
	v.SetDefault("zilliz.endpoint", "localhost:19530")
	v.SetDefault("zilliz.apiKey", "")
	v.SetDefault("zilliz.collectionName", "claim_embeddings")
	v.SetDefault("zilliz.vectorDim", 1536)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.fastModel", "gpt-3.5-turbo")
	v.SetDefault("llm.researchModel", "gpt-4o")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.maxTokens", 1024)
	v.SetDefault("llm.timeoutSec", 30)
	v.SetDefault("llm.researchTimeout", 90)
	v.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	v.SetDefault("llm.embeddingDim", 1536)
	v.SetDefault("llm.maxConcurrent", 3)
	v.SetDefault("llm.requestsPerSecond", 0)

	v.SetDefault("search.enabled", true)
	v.SetDefault("search.serpAPIKey", "")
	v.SetDefault("search.baseURL", "https://serpapi.com/search")
	v.SetDefault("search.maxResults", 5)
	v.SetDefault("search.timeoutSec", 10)

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queueSize", 256)
	v.SetDefault("pipeline.featureTimeoutSec", 15)
	v.SetDefault("pipeline.similarityThreshold", 0.8)
	v.SetDefault("pipeline.similarityLimit", 10)
	v.SetDefault("pipeline.autoEscalate", true)
	v.SetDefault("pipeline.runTimeoutSec", 300)

	v.SetDefault("clustering.maxClusters", 10)
	v.SetDefault("clustering.maxIterations", 100)
	v.SetDefault("clustering.seed", 0)

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 120)
	v.SetDefault("rateLimit.burst", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
