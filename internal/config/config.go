package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/omalmisr/omal-responder/internal/completion"
	"github.com/omalmisr/omal-responder/internal/lifecycle"
)

const (
	// DefaultSimilarityThreshold is the minimum Jaccard score for a knowledge match.
	DefaultSimilarityThreshold = 0.4

	// DefaultRelaxedThreshold is the floor for answering from local knowledge
	// after the completion service failed.
	DefaultRelaxedThreshold = 0.3

	// DefaultRetentionDays is how long persisted turns are kept.
	DefaultRetentionDays = 90
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OMAL_RESPONDER"

// Config holds all configuration for the responder.
type Config struct {
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Completion CompletionConfig `mapstructure:"completion"`
	Comments   CommentsConfig   `mapstructure:"comments"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
	Storage    StorageConfig    `mapstructure:"storage"`
	API        APIConfig        `mapstructure:"api"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CatalogConfig points at the organization catalog. An empty path uses
// the embedded default.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig tunes the response orchestrator and dialogue flow.
type EngineConfig struct {
	SimilarityThreshold   float64 `mapstructure:"similarity_threshold"`
	RelaxedThreshold      float64 `mapstructure:"relaxed_threshold"`
	ContinuationPrompting bool    `mapstructure:"continuation_prompting"`
	NameCollection        bool    `mapstructure:"name_collection"`
	GroundingSamples      int     `mapstructure:"grounding_samples"`
	ClearOnFarewell       bool    `mapstructure:"clear_on_farewell"`
}

// CompletionConfig holds the completion-service settings.
type CompletionConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`

	FallbackProvider string `mapstructure:"fallback_provider"`
	FallbackAPIKey   string `mapstructure:"fallback_api_key"`
	FallbackBaseURL  string `mapstructure:"fallback_base_url"`
	FallbackModel    string `mapstructure:"fallback_model"`
}

// String returns a safe representation with the API keys masked.
func (c CompletionConfig) String() string {
	return fmt.Sprintf("CompletionConfig{Provider:%s, APIKey:%s, Model:%s, Fallback:%s, FallbackAPIKey:%s}",
		c.Provider, maskAPIKey(c.APIKey), c.Model, c.FallbackProvider, maskAPIKey(c.FallbackAPIKey))
}

// Primary returns the client settings for the primary provider.
func (c CompletionConfig) Primary() completion.Settings {
	return completion.Settings{
		Provider:    c.Provider,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Timeout:     c.Timeout,
	}
}

// Fallback returns the secondary provider's settings, or false when no
// fallback is configured.
func (c CompletionConfig) Fallback() (completion.Settings, bool) {
	if c.FallbackProvider == "" || c.FallbackProvider == completion.ProviderNone {
		return completion.Settings{}, false
	}
	return completion.Settings{
		Provider:    c.FallbackProvider,
		APIKey:      c.FallbackAPIKey,
		BaseURL:     c.FallbackBaseURL,
		Model:       c.FallbackModel,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Timeout:     c.Timeout,
	}, true
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if key == "" {
		return ""
	}
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// CommentsConfig holds public-comment admission settings.
type CommentsConfig struct {
	MaxPerMinute int  `mapstructure:"max_per_minute"`
	IgnorePraise bool `mapstructure:"ignore_praise"`
	MinLength    int  `mapstructure:"min_length"`
	Concurrency  int  `mapstructure:"concurrency"`
}

// DeliveryConfig holds Graph API sender settings. An empty page token
// disables outbound delivery.
type DeliveryConfig struct {
	PageToken string        `mapstructure:"page_token"`
	GraphURL  string        `mapstructure:"graph_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// String returns a safe representation with the page token masked.
func (d DeliveryConfig) String() string {
	return fmt.Sprintf("DeliveryConfig{PageToken:%s, GraphURL:%s}", maskAPIKey(d.PageToken), d.GraphURL)
}

// StorageConfig holds turn-log persistence and retention settings.
type StorageConfig struct {
	DBPath        string `mapstructure:"db_path"`
	RetentionDays int    `mapstructure:"retention_days"`
	PruneSchedule string `mapstructure:"prune_schedule"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from .env, the config file and environment
// variables, in increasing order of precedence. An empty configFile
// searches ~/.omal-responder and the working directory for config.yaml.
func Load(configFile string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(homeDir(), ".omal-responder"))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider-native variable names are honored as well.
	_ = v.BindEnv("completion.api_key", EnvPrefix+"_COMPLETION_API_KEY", "DEEPSEEK_API_KEY")
	_ = v.BindEnv("completion.fallback_api_key", EnvPrefix+"_COMPLETION_FALLBACK_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("delivery.page_token", EnvPrefix+"_DELIVERY_PAGE_TOKEN", "PAGE_ACCESS_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK: use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.path", "")

	v.SetDefault("engine.similarity_threshold", DefaultSimilarityThreshold)
	v.SetDefault("engine.relaxed_threshold", DefaultRelaxedThreshold)
	v.SetDefault("engine.continuation_prompting", true)
	v.SetDefault("engine.name_collection", true)
	v.SetDefault("engine.grounding_samples", 3)
	v.SetDefault("engine.clear_on_farewell", false)

	v.SetDefault("completion.provider", completion.ProviderDeepSeek)
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.base_url", "")
	v.SetDefault("completion.model", "")
	v.SetDefault("completion.max_tokens", completion.DefaultMaxTokens)
	v.SetDefault("completion.temperature", completion.DefaultTemperature)
	v.SetDefault("completion.timeout", completion.DefaultTimeout)
	v.SetDefault("completion.max_attempts", completion.DefaultMaxAttempts)
	v.SetDefault("completion.retry_delay", completion.DefaultRetryDelay)
	v.SetDefault("completion.fallback_provider", "")
	v.SetDefault("completion.fallback_api_key", "")
	v.SetDefault("completion.fallback_base_url", "")
	v.SetDefault("completion.fallback_model", "")

	v.SetDefault("comments.max_per_minute", 30)
	v.SetDefault("comments.ignore_praise", true)
	v.SetDefault("comments.min_length", 3)
	v.SetDefault("comments.concurrency", 4)

	v.SetDefault("delivery.page_token", "")
	v.SetDefault("delivery.graph_url", "https://graph.facebook.com/v17.0")
	v.SetDefault("delivery.timeout", 10*time.Second)

	v.SetDefault("storage.db_path", filepath.Join(homeDir(), ".omal-responder", "turns.db"))
	v.SetDefault("storage.retention_days", DefaultRetentionDays)
	v.SetDefault("storage.prune_schedule", "@daily")

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.auth_token", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.Engine.SimilarityThreshold < 0 || c.Engine.SimilarityThreshold > 1 {
		return fmt.Errorf("engine.similarity_threshold must be between 0 and 1")
	}
	if c.Engine.RelaxedThreshold < 0 || c.Engine.RelaxedThreshold > 1 {
		return fmt.Errorf("engine.relaxed_threshold must be between 0 and 1")
	}
	if c.Engine.RelaxedThreshold > c.Engine.SimilarityThreshold {
		return fmt.Errorf("engine.relaxed_threshold (%.2f) must not exceed engine.similarity_threshold (%.2f)",
			c.Engine.RelaxedThreshold, c.Engine.SimilarityThreshold)
	}
	if c.Engine.GroundingSamples < 0 {
		return fmt.Errorf("engine.grounding_samples must be >= 0")
	}
	if c.Completion.Provider != "" && !validProvider(c.Completion.Provider) {
		return fmt.Errorf("completion.provider %q is not one of %s", c.Completion.Provider, strings.Join(completion.Providers, ", "))
	}
	if c.Completion.FallbackProvider != "" && !validProvider(c.Completion.FallbackProvider) {
		return fmt.Errorf("completion.fallback_provider %q is not one of %s", c.Completion.FallbackProvider, strings.Join(completion.Providers, ", "))
	}
	if c.Completion.MaxAttempts < 1 {
		return fmt.Errorf("completion.max_attempts must be at least 1")
	}
	if c.Completion.RetryDelay < 0 {
		return fmt.Errorf("completion.retry_delay must be >= 0")
	}
	if c.Completion.Timeout < 0 {
		return fmt.Errorf("completion.timeout must be >= 0")
	}
	if c.Completion.MaxTokens < 0 {
		return fmt.Errorf("completion.max_tokens must be >= 0")
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		return fmt.Errorf("completion.temperature must be between 0 and 2")
	}
	if c.Comments.MaxPerMinute < 0 {
		return fmt.Errorf("comments.max_per_minute must be >= 0")
	}
	if c.Comments.MinLength < 0 {
		return fmt.Errorf("comments.min_length must be >= 0")
	}
	if c.Delivery.Timeout < 0 {
		return fmt.Errorf("delivery.timeout must be >= 0")
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("storage.retention_days must be >= 0")
	}
	if c.Storage.PruneSchedule != "" {
		if err := lifecycle.ValidateSchedule(c.Storage.PruneSchedule); err != nil {
			return fmt.Errorf("storage.prune_schedule: %w", err)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	return nil
}

func validProvider(p string) bool {
	return slices.Contains(completion.Providers, strings.ToLower(strings.TrimSpace(p)))
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
