package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	AppName     string           `json:"app_name"`
	Environment string           `json:"environment"`
	Port        int              `json:"port"`
	JWTSecret   string           `json:"jwt_secret"`
	JWTTTLHours int              `json:"jwt_ttl_hours"`
	// RateLimitMS sets the minimum interval between requests per
	// (ip, tenant, route). Zero disables rate limiting.
	RateLimitMS int `json:"rate_limit_ms"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Database    DatabaseConfig   `json:"database"`
	FileStore   FileStoreConfig  `json:"file_store"`
	AI          AIConfig         `json:"ai"`
	Retrieval   RetrievalConfig  `json:"retrieval"`
	Ingest      IngestConfig     `json:"ingest"`
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
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
	// Fallbacks are tried in order when the primary provider fails.
	// Nested fallback lists are ignored.
	Fallbacks []ProviderConfig `json:"fallbacks"`
}

type RerankConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	Timeout  int    `json:"timeout"`
}

type AIConfig struct {
	Chat            ProviderConfig `json:"chat"`
	Embed           ProviderConfig `json:"embed"`
	Rerank          RerankConfig   `json:"rerank"`
	VectorDimension int            `json:"vector_dimension"`
	Timeout         int            `json:"timeout"`
	CacheSize       int            `json:"cache_size"`
	CacheTTLHours   int            `json:"cache_ttl_hours"`
	CacheKeepDays   int            `json:"cache_keep_days"`
}

type RetrievalConfig struct {
	RRFK           int `json:"rrf_k"`
	Oversample     int `json:"oversample"`
	DefaultTopK    int `json:"default_top_k"`
	MaxTopK        int `json:"max_top_k"`
	PathTimeout    int `json:"path_timeout"`
	QueryTimeout   int `json:"query_timeout"`
	PromptOverhead int `json:"prompt_overhead"`
	MaxTokens      int `json:"max_tokens"`
}

type IngestConfig struct {
	Workers            int   `json:"workers"`
	ChunkSize          int   `json:"chunk_size"`
	ChunkOverlap       int   `json:"chunk_overlap"`
	PreserveBoundaries bool  `json:"preserve_boundaries"`
	MaxUploadSize      int64 `json:"max_upload_size"`
	StuckAfterMinutes  int   `json:"stuck_after_minutes"`
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
	if cfg.AI.VectorDimension <= 0 {
		return nil, fmt.Errorf("ai.vector_dimension is required")
	}
	if cfg.AI.Embed.Provider == "" || cfg.AI.Embed.Model == "" {
		return nil, fmt.Errorf("ai.embed.provider and ai.embed.model are required")
	}
	if cfg.AppName == "" {
		cfg.AppName = "ragkb"
	}
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 30
	}
	if cfg.AI.CacheSize == 0 {
		cfg.AI.CacheSize = 10000
	}
	if cfg.AI.CacheTTLHours == 0 {
		cfg.AI.CacheTTLHours = 2
	}
	if cfg.AI.CacheKeepDays == 0 {
		cfg.AI.CacheKeepDays = 30
	}
	if cfg.AI.Rerank.Timeout == 0 {
		cfg.AI.Rerank.Timeout = 10
	}
	applyRetrievalDefaults(&cfg.Retrieval)
	applyIngestDefaults(&cfg.Ingest)
	return &cfg, nil
}

// The fusion constant and oversample factor are policy knobs with no single
// correct value; 60 is the usual smoothing constant from the RRF paper.
func applyRetrievalDefaults(cfg *RetrievalConfig) {
	if cfg.RRFK == 0 {
		cfg.RRFK = 60
	}
	if cfg.Oversample == 0 {
		cfg.Oversample = 4
	}
	if cfg.DefaultTopK == 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.MaxTopK == 0 {
		cfg.MaxTopK = 50
	}
	if cfg.PathTimeout == 0 {
		cfg.PathTimeout = 10
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 60
	}
	if cfg.PromptOverhead == 0 {
		cfg.PromptOverhead = 256
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
}

func applyIngestDefaults(cfg *IngestConfig) {
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 400
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 80
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 4
	}
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = 16 * 1024 * 1024
	}
	if cfg.StuckAfterMinutes == 0 {
		cfg.StuckAfterMinutes = 30
	}
}
