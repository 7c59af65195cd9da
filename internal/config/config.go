// Package config loads service configuration from defaults, an optional
// config file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Search    SearchConfig    `mapstructure:"search"`
	Images    ImagesConfig    `mapstructure:"images"`
	Composer  ComposerConfig  `mapstructure:"composer"`
	Research  ResearchConfig  `mapstructure:"research"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// AppConfig holds process level settings.
type AppConfig struct {
	Env      string `mapstructure:"env" validate:"oneof=development staging production test"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the store. URLs starting with "sqlite:" or
// "file:" use the embedded SQLite store; anything else goes to Postgres.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// IsSQLite reports whether the URL targets the embedded store.
func (d DatabaseConfig) IsSQLite() bool {
	return strings.HasPrefix(d.URL, "sqlite:") || strings.HasPrefix(d.URL, "file:")
}

// SQLitePath strips the sqlite: scheme, leaving a DSN modernc understands.
func (d DatabaseConfig) SQLitePath() string {
	return strings.TrimPrefix(strings.TrimPrefix(d.URL, "sqlite://"), "sqlite:")
}

// AuthConfig holds identity and shared secret settings.
type AuthConfig struct {
	JWTSecret  string `mapstructure:"jwt_secret"`
	JWTIssuer  string `mapstructure:"jwt_issuer"`
	CronSecret string `mapstructure:"cron_secret"`
}

// GeminiConfig configures the text generation provider.
type GeminiConfig struct {
	APIKey        string `mapstructure:"api_key"`
	ResearchModel string `mapstructure:"research_model"`
	ComposerModel string `mapstructure:"composer_model"`
	FallbackModel string `mapstructure:"fallback_model"`
}

// SearchConfig configures Google Custom Search for citations.
type SearchConfig struct {
	APIKey     string `mapstructure:"api_key"`
	EngineID   string `mapstructure:"engine_id"`
	MaxResults int64  `mapstructure:"max_results" validate:"min=1,max=10"`
}

// ImagesConfig configures the OpenAI compatible image endpoint.
type ImagesConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	Model         string        `mapstructure:"model" validate:"required"`
	FallbackModel string        `mapstructure:"fallback_model"`
	Size          string        `mapstructure:"size"`
	MaxRetries    int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// ComposerConfig holds hook and blurb constraints.
type ComposerConfig struct {
	HookMinWords       int     `mapstructure:"hook_min_words" validate:"min=1,max=9"`
	HookMaxWords       int     `mapstructure:"hook_max_words" validate:"gtefield=HookMinWords"`
	BlurbMaxParagraphs int     `mapstructure:"blurb_max_paragraphs" validate:"min=1"`
	Temperature        float32 `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxOutputTokens    int32   `mapstructure:"max_output_tokens" validate:"min=64"`
}

// ResearchConfig bounds the research call.
type ResearchConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`

	// EnrichSources fetches cited pages to fill missing titles and snippets.
	EnrichSources bool          `mapstructure:"enrich_sources"`
	PageTimeout   time.Duration `mapstructure:"page_timeout"`
	PageCacheTTL  time.Duration `mapstructure:"page_cache_ttl"`
}

// JobsConfig controls orchestration limits.
type JobsConfig struct {
	InterestsPerGeneration int           `mapstructure:"interests_per_generation" validate:"min=1"`
	Timeout                time.Duration `mapstructure:"timeout"`
	MaxConcurrent          int64         `mapstructure:"max_concurrent" validate:"min=1"`
	DailyBatchSize         int           `mapstructure:"daily_batch_size" validate:"min=1"`
	DailyBatchPause        time.Duration `mapstructure:"daily_batch_pause"`
}

// SchedulerConfig controls the in-process cron runner.
type SchedulerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Timezone      string `mapstructure:"timezone"`
	DailySpec     string `mapstructure:"daily_spec"`
	ReconcileSpec string `mapstructure:"reconcile_spec"`
}

// RateLimitConfig bounds how often a user may start generation.
type RateLimitConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	PerMinute int  `mapstructure:"per_minute" validate:"min=1"`
	Burst     int  `mapstructure:"burst" validate:"min=1"`
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string][]string{
	"app.env":                       {"APP_ENV"},
	"app.log_level":                 {"LOG_LEVEL"},
	"server.port":                   {"PORT"},
	"database.url":                  {"DATABASE_URL"},
	"auth.jwt_secret":               {"JWT_SECRET"},
	"auth.jwt_issuer":               {"JWT_ISSUER"},
	"auth.cron_secret":              {"CRON_SECRET"},
	"gemini.api_key":                {"GEMINI_API_KEY"},
	"gemini.research_model":         {"GEMINI_RESEARCH_MODEL"},
	"gemini.composer_model":         {"GEMINI_COMPOSER_MODEL"},
	"search.api_key":                {"SEARCH_API_KEY", "GOOGLE_SEARCH_API_KEY"},
	"search.engine_id":              {"SEARCH_ENGINE_ID", "GOOGLE_SEARCH_ENGINE_ID"},
	"images.api_key":                {"IMAGE_API_KEY", "OPENROUTER_API_KEY"},
	"images.base_url":               {"IMAGE_API_BASE_URL"},
	"images.model":                  {"IMAGE_MODEL"},
	"jobs.interests_per_generation": {"INTERESTS_PER_GENERATION"},
	"jobs.timeout":                  {"JOB_TIMEOUT"},
	"scheduler.enabled":             {"SCHEDULER_ENABLED"},
	"scheduler.timezone":            {"SCHEDULER_TIMEZONE"},
	"ratelimit.per_minute":          {"RATE_LIMIT_PER_MINUTE"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("app.log_level", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("gemini.research_model", "gemini-2.5-flash")
	v.SetDefault("gemini.composer_model", "gemini-2.5-flash")
	v.SetDefault("gemini.fallback_model", "gemini-2.0-flash")

	v.SetDefault("search.max_results", 5)

	v.SetDefault("images.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("images.model", "google/gemini-2.5-flash-image")
	v.SetDefault("images.fallback_model", "black-forest-labs/flux-schnell")
	v.SetDefault("images.size", "1024x1024")
	v.SetDefault("images.max_retries", 3)
	v.SetDefault("images.retry_delay", "1s")
	v.SetDefault("images.timeout", "120s")

	v.SetDefault("composer.hook_min_words", 8)
	v.SetDefault("composer.hook_max_words", 18)
	v.SetDefault("composer.blurb_max_paragraphs", 3)
	v.SetDefault("composer.temperature", 0.85)
	v.SetDefault("composer.max_output_tokens", 2048)

	v.SetDefault("research.timeout", "30s")
	v.SetDefault("research.temperature", 0.3)
	v.SetDefault("research.enrich_sources", true)
	v.SetDefault("research.page_timeout", "8s")
	v.SetDefault("research.page_cache_ttl", "6h")

	v.SetDefault("jobs.interests_per_generation", 3)
	v.SetDefault("jobs.timeout", "10m")
	v.SetDefault("jobs.max_concurrent", 16)
	v.SetDefault("jobs.daily_batch_size", 5)
	v.SetDefault("jobs.daily_batch_pause", "1s")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.daily_spec", "0 6 * * *")
	v.SetDefault("scheduler.reconcile_spec", "@every 5m")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.per_minute", 10)
	v.SetDefault("ratelimit.burst", 3)
}

// Load builds a Config. configFile may be empty, in which case only
// defaults and the environment are consulted.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config error: %w", err)
	}

	if c.Jobs.Timeout <= 0 {
		return fmt.Errorf("config error: jobs.timeout must be positive")
	}
	if c.Research.Timeout <= 0 {
		return fmt.Errorf("config error: research.timeout must be positive")
	}
	return nil
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}
