package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"port"`

	// Auth for the HTTP API.
	APIKey string `mapstructure:"api_key"`

	// LLM endpoint. Setting AzureOpenAIEndpoint switches to Azure, where
	// models are deployment names.
	OpenAIAPIKey          string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL         string        `mapstructure:"openai_base_url"`
	OpenAIModel           string        `mapstructure:"openai_model"`
	VisionModel           string        `mapstructure:"vision_model"`
	AzureOpenAIEndpoint   string        `mapstructure:"azure_openai_endpoint"`
	AzureOpenAIAPIVersion string        `mapstructure:"azure_openai_api_version"`
	LLMRequestsPerMinute  int           `mapstructure:"llm_requests_per_minute"`
	LLMMaxRetries         int           `mapstructure:"llm_max_retries"`
	LLMRetryDelay         time.Duration `mapstructure:"llm_retry_delay"`
	LLMTimeout            time.Duration `mapstructure:"llm_timeout"`

	// Extraction
	MaxChunkChars     int    `mapstructure:"max_chunk_chars"`
	ChunkConcurrency  int    `mapstructure:"chunk_concurrency"`
	VisionConcurrency int    `mapstructure:"vision_concurrency"`
	WorkflowFile      string `mapstructure:"workflow_file"`

	// Grounding
	MaxCorrectionRounds      int     `mapstructure:"max_correction_rounds"`
	QuoteSimilarityThreshold float64 `mapstructure:"quote_similarity_threshold"`
	StatMatchThreshold       float64 `mapstructure:"stat_match_threshold"`

	// Figure description cache. An empty dir keeps the cache in memory.
	FigureCacheDir string        `mapstructure:"figure_cache_dir"`
	FigureCacheTTL time.Duration `mapstructure:"figure_cache_ttl"`

	// Worker pool
	WorkerCount  int           `mapstructure:"worker_count"`
	MaxQueueSize int           `mapstructure:"max_queue_size"`
	JobTTL       time.Duration `mapstructure:"job_ttl"`

	// Upload limits
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

var defaults = map[string]any{
	"port":                       "8090",
	"api_key":                    "",
	"openai_api_key":             "",
	"openai_base_url":            "",
	"openai_model":               "gpt-4o",
	"vision_model":               "",
	"azure_openai_endpoint":      "",
	"azure_openai_api_version":   "2025-01-01-preview",
	"llm_requests_per_minute":    0,
	"llm_max_retries":            3,
	"llm_retry_delay":            time.Second,
	"llm_timeout":                120 * time.Second,
	"max_chunk_chars":            30000,
	"chunk_concurrency":          4,
	"vision_concurrency":         6,
	"workflow_file":              "",
	"max_correction_rounds":      1,
	"quote_similarity_threshold": 0.60,
	"stat_match_threshold":       0.50,
	"figure_cache_dir":           "",
	"figure_cache_ttl":           time.Duration(0),
	"worker_count":               2,
	"max_queue_size":             100,
	"job_ttl":                    time.Hour,
	"max_upload_bytes":           int64(52428800), // 50MB
}

// Names the original Azure deployment used, accepted as fallbacks.
var envAliases = map[string][]string{
	"openai_api_key": {"OPENAI_API_KEY", "AZURE_OPENAI_API_KEY"},
	"openai_model":   {"OPENAI_MODEL", "AZURE_OPENAI_MODEL_DEPLOYMENT"},
	"api_key":        {"GROUNDTRUTH_API_KEY", "API_KEY"},
}

// Load reads configuration from defaults, an optional config file and the
// environment, in increasing precedence. path may be empty.
func Load(path string) (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyFloors()
	return cfg, nil
}

// applyFloors replaces non-positive sizes with defaults.
func (c *Config) applyFloors() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 100
	}
	if c.MaxChunkChars <= 0 {
		c.MaxChunkChars = 30000
	}
	if c.ChunkConcurrency <= 0 {
		c.ChunkConcurrency = 4
	}
	if c.VisionConcurrency <= 0 {
		c.VisionConcurrency = 6
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 52428800
	}
	if c.JobTTL <= 0 {
		c.JobTTL = time.Hour
	}
	if c.MaxCorrectionRounds < 0 {
		c.MaxCorrectionRounds = 1
	}
	if c.VisionModel == "" {
		c.VisionModel = c.OpenAIModel
	}
}

// Validate checks the keys needed to talk to the model.
func (c Config) Validate() error {
	var errs []error
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.OpenAIModel == "" {
		errs = append(errs, errors.New("OPENAI_MODEL is required"))
	}
	if c.QuoteSimilarityThreshold <= 0 || c.QuoteSimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("QUOTE_SIMILARITY_THRESHOLD must be in (0, 1], got %v", c.QuoteSimilarityThreshold))
	}
	if c.StatMatchThreshold <= 0 || c.StatMatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("STAT_MATCH_THRESHOLD must be in (0, 1], got %v", c.StatMatchThreshold))
	}
	return errors.Join(errs...)
}

// ValidateServer additionally requires the API bearer key.
func (c Config) ValidateServer() error {
	err := c.Validate()
	if c.APIKey == "" {
		err = errors.Join(err, errors.New("GROUNDTRUTH_API_KEY is required"))
	}
	return err
}
