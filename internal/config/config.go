package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable the engine consumes. It is constructed once
// at startup and passed down explicitly; no package reads the environment
// after that point.
type Config struct {
	ListenAddr string

	// Prompt composition.
	PromptCharCeiling int
	RowSampleSize     int

	// Execution limits.
	GroupCardinalityCeiling int

	// Gateways.
	CallTimeout       time.Duration
	SearchParallelism int
	SearchQueryCap    int
	ProfileCacheTTL   time.Duration

	OpenAIKey      string
	OpenAIModel    string
	OpenAIEndpoint string
	SerpAPIKey     string
	SearchEngine   string // "serpapi", "bing" or "" to disable web search
}

// Default returns the baseline configuration used when no overrides are
// supplied.
func Default() Config {
	return Config{
		ListenAddr:              ":8084",
		PromptCharCeiling:       12000,
		RowSampleSize:           20,
		GroupCardinalityCeiling: 1000,
		CallTimeout:             30 * time.Second,
		SearchParallelism:       4,
		SearchQueryCap:          8,
		ProfileCacheTTL:         time.Hour,
		OpenAIModel:             "gpt-4o",
		SearchEngine:            "serpapi",
	}
}

// FromEnv builds a Config from defaults overlaid with DATASMITH_* (and
// provider key) environment variables.
func FromEnv() (Config, error) {
	cfg := Default()
	if v := strings.TrimSpace(os.Getenv("DATASMITH_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("DATASMITH_PROMPT_CEILING")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse DATASMITH_PROMPT_CEILING: %w", err)
		}
		cfg.PromptCharCeiling = n
	}
	if v := strings.TrimSpace(os.Getenv("DATASMITH_ROW_SAMPLE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse DATASMITH_ROW_SAMPLE: %w", err)
		}
		cfg.RowSampleSize = n
	}
	if v := strings.TrimSpace(os.Getenv("DATASMITH_GROUP_CEILING")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse DATASMITH_GROUP_CEILING: %w", err)
		}
		cfg.GroupCardinalityCeiling = n
	}
	if v := strings.TrimSpace(os.Getenv("DATASMITH_CALL_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse DATASMITH_CALL_TIMEOUT: %w", err)
		}
		cfg.CallTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("DATASMITH_SEARCH_PARALLELISM")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse DATASMITH_SEARCH_PARALLELISM: %w", err)
		}
		cfg.SearchParallelism = n
	}
	if v := strings.TrimSpace(os.Getenv("DATASMITH_SEARCH_QUERY_CAP")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse DATASMITH_SEARCH_QUERY_CAP: %w", err)
		}
		cfg.SearchQueryCap = n
	}
	if v := strings.TrimSpace(os.Getenv("DATASMITH_PROFILE_CACHE_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse DATASMITH_PROFILE_CACHE_TTL: %w", err)
		}
		cfg.ProfileCacheTTL = d
	}
	cfg.OpenAIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if v := strings.TrimSpace(os.Getenv("OPENAI_CHAT_MODEL")); v != "" {
		cfg.OpenAIModel = v
	}
	cfg.OpenAIEndpoint = strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT"))
	cfg.SerpAPIKey = strings.TrimSpace(os.Getenv("SERP_API_KEY"))
	if v := strings.TrimSpace(os.Getenv("DATASMITH_SEARCH_ENGINE")); v != "" {
		cfg.SearchEngine = strings.ToLower(v)
	}
	return applyDefaults(cfg), nil
}

func applyDefaults(cfg Config) Config {
	defaults := Default()
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = defaults.ListenAddr
	}
	if cfg.PromptCharCeiling <= 0 {
		cfg.PromptCharCeiling = defaults.PromptCharCeiling
	}
	if cfg.RowSampleSize <= 0 {
		cfg.RowSampleSize = defaults.RowSampleSize
	}
	if cfg.GroupCardinalityCeiling <= 0 {
		cfg.GroupCardinalityCeiling = defaults.GroupCardinalityCeiling
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaults.CallTimeout
	}
	if cfg.SearchParallelism <= 0 {
		cfg.SearchParallelism = defaults.SearchParallelism
	}
	if cfg.SearchQueryCap <= 0 {
		cfg.SearchQueryCap = defaults.SearchQueryCap
	}
	if cfg.ProfileCacheTTL <= 0 {
		cfg.ProfileCacheTTL = defaults.ProfileCacheTTL
	}
	if strings.TrimSpace(cfg.OpenAIModel) == "" {
		cfg.OpenAIModel = defaults.OpenAIModel
	}
	return cfg
}
