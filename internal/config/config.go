package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port      int              `json:"port"`
	LogConfig logger.LogConfig `json:"log_config"`
	Database  DatabaseConfig   `json:"database"`
	Corpus    CorpusConfig     `json:"corpus"`
	Chunking  ChunkingConfig   `json:"chunking"`
	Encoder   EncoderConfig    `json:"encoder"`
	Retrieval RetrievalConfig  `json:"retrieval"`
	LLM       LLMConfig        `json:"llm"`
	SelfAsk   SelfAskConfig    `json:"self_ask"`
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

// CorpusConfig locates the versioned corpus snapshot. Store is the
// filestore type (local or s3); Key is the snapshot object key.
type CorpusConfig struct {
	Store StoreConfig `json:"store"`
	Key   string      `json:"key"`
}

type StoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ChunkingConfig struct {
	MaxTokens     int `json:"max_tokens"`
	OverlapTokens int `json:"overlap_tokens"`
}

// ProviderRef names one extra AI provider used as a fallback when the
// primary fails.
type ProviderRef struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type EncoderConfig struct {
	Provider      string        `json:"provider"`
	Model         string        `json:"model"`
	Data          interface{}   `json:"data"`
	Fallback      []ProviderRef `json:"fallback"`
	Dimension     int         `json:"dimension"`
	MaxInputChars int         `json:"max_input_chars"`
	BatchSize     int         `json:"batch_size"`
	CacheSize     int         `json:"cache_size"`
	CacheTTLHours int         `json:"cache_ttl_hours"`
}

type RetrievalConfig struct {
	DefaultK       int `json:"default_k"`
	MaxPerDocument int `json:"max_per_document"`
}

type LLMConfig struct {
	Provider       string        `json:"provider"`
	Model          string        `json:"model"`
	Data           interface{}   `json:"data"`
	Fallback       []ProviderRef `json:"fallback"`
	TimeoutSeconds int         `json:"timeout_seconds"`
	MaxRetries     int         `json:"max_retries"`
	MaxConcurrency int         `json:"max_concurrency"`
	RatePerSecond  float64     `json:"rate_per_second"`
	BreakerStreak  int         `json:"breaker_streak"`
	BreakerCoolsec int         `json:"breaker_cooldown_seconds"`
}

type SelfAskConfig struct {
	Level1K        int `json:"level1_k"`
	Level2K        int `json:"level2_k"`
	MaxSubLevel1   int `json:"max_sub_questions_level1"`
	MaxSubLevel2   int `json:"max_sub_questions_level2"`
	MaxInFlight    int `json:"max_in_flight"`
	SessionTimeout int `json:"session_timeout_seconds"`
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
		cfg.Port = 8080
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Corpus.Store.Type == "" {
		cfg.Corpus.Store.Type = "local"
	}
	if cfg.Encoder.Provider == "" || cfg.Encoder.Model == "" {
		return nil, fmt.Errorf("encoder.provider and encoder.model are required")
	}
	if cfg.LLM.Provider == "" || cfg.LLM.Model == "" {
		return nil, fmt.Errorf("llm.provider and llm.model are required")
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Chunking.MaxTokens <= 0 {
		cfg.Chunking.MaxTokens = 512
	}
	if cfg.Chunking.OverlapTokens <= 0 {
		cfg.Chunking.OverlapTokens = 64
	}
	if cfg.Chunking.OverlapTokens >= cfg.Chunking.MaxTokens {
		cfg.Chunking.OverlapTokens = cfg.Chunking.MaxTokens / 4
	}
	if cfg.Encoder.Dimension <= 0 {
		cfg.Encoder.Dimension = 768
	}
	if cfg.Encoder.MaxInputChars <= 0 {
		cfg.Encoder.MaxInputChars = 8192
	}
	if cfg.Encoder.BatchSize <= 0 {
		cfg.Encoder.BatchSize = 32
	}
	if cfg.Encoder.CacheSize <= 0 {
		cfg.Encoder.CacheSize = 10000
	}
	if cfg.Encoder.CacheTTLHours <= 0 {
		cfg.Encoder.CacheTTLHours = 2
	}
	if cfg.Retrieval.DefaultK <= 0 {
		cfg.Retrieval.DefaultK = 5
	}
	if cfg.Retrieval.MaxPerDocument <= 0 {
		cfg.Retrieval.MaxPerDocument = 3
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if cfg.LLM.MaxRetries <= 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.MaxConcurrency <= 0 {
		cfg.LLM.MaxConcurrency = 8
	}
	if cfg.LLM.RatePerSecond <= 0 {
		cfg.LLM.RatePerSecond = 2
	}
	if cfg.LLM.BreakerStreak <= 0 {
		cfg.LLM.BreakerStreak = 5
	}
	if cfg.LLM.BreakerCoolsec <= 0 {
		cfg.LLM.BreakerCoolsec = 30
	}
	if cfg.SelfAsk.Level1K <= 0 {
		cfg.SelfAsk.Level1K = 5
	}
	if cfg.SelfAsk.Level2K <= 0 {
		cfg.SelfAsk.Level2K = 8
	}
	if cfg.SelfAsk.MaxSubLevel1 <= 0 {
		cfg.SelfAsk.MaxSubLevel1 = 3
	}
	if cfg.SelfAsk.MaxSubLevel2 <= 0 {
		cfg.SelfAsk.MaxSubLevel2 = 2
	}
	if cfg.SelfAsk.MaxInFlight <= 0 {
		cfg.SelfAsk.MaxInFlight = 4
	}
	if cfg.SelfAsk.SessionTimeout <= 0 {
		cfg.SelfAsk.SessionTimeout = 300
	}
}
