package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	LogConfig logger.LogConfig `json:"log_config"`
	Database  DatabaseConfig   `json:"database"`
	Index     IndexConfig      `json:"index"`
	Registry  RegistryConfig   `json:"registry"`
	FileStore FileStoreConfig  `json:"file_store"`
	AI        AIConfig         `json:"ai"`
	Pipeline  PipelineConfig   `json:"pipeline"`
	Agent     AgentConfig      `json:"agent"`
	Reconcile ReconcileConfig  `json:"reconcile"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type IndexConfig struct {
	// Type selects the vector index backend: memory or pgvector.
	Type string `json:"type"`
	// Probes tunes ivfflat recall on the pgvector backend. Higher values
	// trade latency for recall; 0 keeps the server default.
	Probes int `json:"probes"`
}

type RegistryConfig struct {
	// Type selects the document registry backend: memory or pg.
	Type string `json:"type"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Embed    ProviderConfig `json:"embed"`
	Generate ProviderConfig `json:"generate"`
	// EmbedDim is the embedding dimension fixed for this deployment.
	EmbedDim int `json:"embed_dim"`
	// EmbedCacheSize/EmbedCacheTTLSeconds control the LRU in front of the
	// embed provider; zero disables caching.
	EmbedCacheSize       int `json:"embed_cache_size"`
	EmbedCacheTTLSeconds int `json:"embed_cache_ttl_seconds"`
	TimeoutSeconds       int `json:"timeout_seconds"`
	MaxRetries           int `json:"max_retries"`
	RetryBaseDelayMs     int `json:"retry_base_delay_ms"`
	RatePerSecond        int `json:"rate_per_second"`
}

type PipelineConfig struct {
	MaxChunkSize       int `json:"max_chunk_size"`
	ChunkOverlap       int `json:"chunk_overlap"`
	EmbeddingBatchSize int `json:"embedding_batch_size"`
}

type AgentConfig struct {
	TopK               int     `json:"top_k"`
	SimilarityCutoff   float32 `json:"similarity_cutoff"`
	MaxPromptSize      int     `json:"max_prompt_size"`
	MaxHistoryTurns    int     `json:"max_history_turns"`
	EnableQueryRewrite bool    `json:"enable_query_rewrite"`
}

type ReconcileConfig struct {
	CronSpec             string `json:"cron_spec"`
	StaleAfterSeconds    int64  `json:"stale_after_seconds"`
	RetryFailedDeletions bool   `json:"retry_failed_deletions"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "memory"
	}
	if cfg.Registry.Type == "" {
		cfg.Registry.Type = "memory"
	}
	if cfg.Index.Type == "pgvector" || cfg.Registry.Type == "pg" {
		if cfg.Database.DSN == "" && cfg.Database.Host == "" {
			return nil, fmt.Errorf("database config is required for backend type %s/%s", cfg.Index.Type, cfg.Registry.Type)
		}
	}
	if cfg.AI.Embed.Provider == "" {
		return nil, fmt.Errorf("ai.embed.provider is required")
	}
	if cfg.AI.Generate.Provider == "" {
		return nil, fmt.Errorf("ai.generate.provider is required")
	}
	if cfg.AI.EmbedDim <= 0 {
		return nil, fmt.Errorf("ai.embed_dim is required")
	}
	if cfg.AI.TimeoutSeconds <= 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if cfg.AI.MaxRetries <= 0 {
		cfg.AI.MaxRetries = 3
	}
	if cfg.AI.RetryBaseDelayMs <= 0 {
		cfg.AI.RetryBaseDelayMs = 200
	}
	if cfg.Pipeline.MaxChunkSize <= 0 {
		cfg.Pipeline.MaxChunkSize = 1000
	}
	if cfg.Pipeline.ChunkOverlap < 0 {
		cfg.Pipeline.ChunkOverlap = 0
	}
	if cfg.Pipeline.ChunkOverlap >= cfg.Pipeline.MaxChunkSize {
		return nil, fmt.Errorf("pipeline.chunk_overlap must be smaller than pipeline.max_chunk_size")
	}
	if cfg.Pipeline.EmbeddingBatchSize <= 0 {
		cfg.Pipeline.EmbeddingBatchSize = 16
	}
	if cfg.Agent.TopK <= 0 {
		cfg.Agent.TopK = 4
	}
	if cfg.Agent.TopK > 20 {
		cfg.Agent.TopK = 20
	}
	if cfg.Agent.SimilarityCutoff < 0 || cfg.Agent.SimilarityCutoff > 1 {
		return nil, fmt.Errorf("agent.similarity_cutoff must be within [0, 1]")
	}
	if cfg.Agent.MaxPromptSize <= 0 {
		cfg.Agent.MaxPromptSize = 12000
	}
	if cfg.Agent.MaxHistoryTurns <= 0 {
		cfg.Agent.MaxHistoryTurns = 6
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.Reconcile.CronSpec == "" {
		cfg.Reconcile.CronSpec = "*/10 * * * *"
	}
	if cfg.Reconcile.StaleAfterSeconds <= 0 {
		cfg.Reconcile.StaleAfterSeconds = 1800
	}
	return &cfg, nil
}
