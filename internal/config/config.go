package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int              `json:"port"`
	JWTSecret   string           `json:"jwt_secret"`
	CORSOrigins []string         `json:"cors_origins"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Database    DatabaseConfig   `json:"database"`
	FileStore   FileStoreConfig  `json:"file_store"`
	AI          AIConfig         `json:"ai"`
	Ingest      IngestConfig     `json:"ingest"`
	RAG         RAGConfig        `json:"rag"`
	Plan        PlanConfig       `json:"plan"`
	Insight     InsightConfig    `json:"insight"`
	RateLimit   RateLimitConfig  `json:"rate_limit"`
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

type FileStoreConfig struct {
	Type string   `json:"type"`
	Dir  string   `json:"dir"`
	S3   S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

type AIConfig struct {
	Provider       string      `json:"provider"`
	Data           interface{} `json:"data"`
	GenerateModel  string      `json:"generate_model"`
	FallbackModels []string    `json:"fallback_models"` // tried in order when the primary fails
	EmbedModel     string      `json:"embed_model"`
	Timeout        int         `json:"timeout"`         // seconds per call
	MaxInFlight    int         `json:"max_in_flight"`   // concurrent backend calls
	RatePerSecond  float64     `json:"rate_per_second"` // 0 = unlimited
	CacheSize      int         `json:"cache_size"`      // query embedding lru
	CacheTTLMin    int         `json:"cache_ttl_min"`
}

type IngestConfig struct {
	ChunkTokens   int `json:"chunk_tokens"`
	OverlapTokens int `json:"overlap_tokens"`
	Workers       int `json:"workers"`
	QueueSize     int `json:"queue_size"`
	EmbedBatch    int `json:"embed_batch"`
}

type RAGConfig struct {
	TopK            int  `json:"top_k"`
	MaxPromptTokens int  `json:"max_prompt_tokens"`
	HistoryTurns    int  `json:"history_turns"`
	RetryBackoffMS  int  `json:"retry_backoff_ms"`
	AllowDegraded   bool `json:"allow_degraded"`
}

type PlanConfig struct {
	MinutesPerDay     int `json:"minutes_per_day"`
	MaxSessionsPerDay int `json:"max_sessions_per_day"`
}

type RateLimitConfig struct {
	PerSecond float64 `json:"per_second"` // 0 = disabled
	Burst     int     `json:"burst"`
}

type InsightConfig struct {
	CronSpec       string  `json:"cron_spec"`
	RetryCronSpec  string  `json:"retry_cron_spec"`
	TrendMinDocs   int     `json:"trend_min_docs"`
	PairThreshold  float32 `json:"pair_threshold"`
	GapThreshold   float32 `json:"gap_threshold"`
	MaxPairsPerRun int     `json:"max_pairs_per_run"`
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
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	switch cfg.FileStore.Type {
	case "local":
		if cfg.FileStore.Dir == "" {
			return nil, fmt.Errorf("file_store.dir is required for local store")
		}
	case "s3":
		if cfg.FileStore.S3.Endpoint == "" || cfg.FileStore.S3.Bucket == "" || cfg.FileStore.S3.SecretID == "" || cfg.FileStore.S3.SecretKey == "" {
			return nil, fmt.Errorf("file_store.s3 endpoint/bucket/secret_id/secret_key are required for s3 store")
		}
		if cfg.FileStore.S3.Region == "" {
			cfg.FileStore.S3.Region = "cn"
		}
	default:
		return nil, fmt.Errorf("file_store.type must be local or s3")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.GenerateModel == "" || cfg.AI.EmbedModel == "" {
		return nil, fmt.Errorf("ai.generate_model and ai.embed_model are required")
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.AI.MaxInFlight == 0 {
		cfg.AI.MaxInFlight = 8
	}
	if cfg.AI.CacheSize == 0 {
		cfg.AI.CacheSize = 4096
	}
	if cfg.AI.CacheTTLMin == 0 {
		cfg.AI.CacheTTLMin = 120
	}
	if cfg.Ingest.ChunkTokens == 0 {
		cfg.Ingest.ChunkTokens = 400
	}
	if cfg.Ingest.OverlapTokens == 0 {
		cfg.Ingest.OverlapTokens = cfg.Ingest.ChunkTokens / 5
	}
	if cfg.Ingest.OverlapTokens >= cfg.Ingest.ChunkTokens {
		return nil, fmt.Errorf("ingest.overlap_tokens must be smaller than ingest.chunk_tokens")
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 2
	}
	if cfg.Ingest.QueueSize == 0 {
		cfg.Ingest.QueueSize = 128
	}
	if cfg.Ingest.EmbedBatch == 0 {
		cfg.Ingest.EmbedBatch = 16
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 5
	}
	if cfg.RAG.MaxPromptTokens == 0 {
		cfg.RAG.MaxPromptTokens = 6000
	}
	if cfg.RAG.HistoryTurns == 0 {
		cfg.RAG.HistoryTurns = 6
	}
	if cfg.RAG.RetryBackoffMS == 0 {
		cfg.RAG.RetryBackoffMS = 500
	}
	if cfg.Plan.MinutesPerDay == 0 {
		cfg.Plan.MinutesPerDay = 120
	}
	if cfg.Plan.MaxSessionsPerDay == 0 {
		cfg.Plan.MaxSessionsPerDay = 4
	}
	if cfg.Insight.CronSpec == "" {
		cfg.Insight.CronSpec = "30 3 * * *"
	}
	if cfg.Insight.RetryCronSpec == "" {
		cfg.Insight.RetryCronSpec = "*/10 * * * *"
	}
	if cfg.Insight.TrendMinDocs == 0 {
		cfg.Insight.TrendMinDocs = 3
	}
	if cfg.Insight.PairThreshold == 0 {
		cfg.Insight.PairThreshold = 0.80
	}
	if cfg.Insight.GapThreshold == 0 {
		cfg.Insight.GapThreshold = 0.55
	}
	if cfg.Insight.MaxPairsPerRun == 0 {
		cfg.Insight.MaxPairsPerRun = 50
	}
	return &cfg, nil
}
