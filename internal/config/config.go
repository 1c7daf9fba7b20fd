package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Browser    BrowserConfig    `yaml:"browser" mapstructure:"browser"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Dedup      DedupConfig      `yaml:"dedup" mapstructure:"dedup"`
	Quality    QualityConfig    `yaml:"quality" mapstructure:"quality"`
	Automation AutomationConfig `yaml:"automation" mapstructure:"automation"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the Redis job broker.
type RedisConfig struct {
	URL       string `yaml:"url" mapstructure:"url"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// QueueConfig configures job workers, retries and retention.
type QueueConfig struct {
	Broker          string `yaml:"broker" mapstructure:"broker"` // "memory" or "redis"
	Workers         int    `yaml:"workers" mapstructure:"workers"`
	MaxAttempts     int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffBaseSecs int    `yaml:"backoff_base_secs" mapstructure:"backoff_base_secs"`
	KeepCompleted   int    `yaml:"keep_completed" mapstructure:"keep_completed"`
	KeepFailed      int    `yaml:"keep_failed" mapstructure:"keep_failed"`
}

// ScheduleConfig configures recurring scrape jobs.
type ScheduleConfig struct {
	ScrapeAllCron string `yaml:"scrape_all_cron" mapstructure:"scrape_all_cron"`
	PerMerchant   bool   `yaml:"per_merchant" mapstructure:"per_merchant"`
}

// BrowserConfig configures headless Chromium sessions and navigation.
type BrowserConfig struct {
	BinPath        string `yaml:"bin_path" mapstructure:"bin_path"`
	Headless       bool   `yaml:"headless" mapstructure:"headless"`
	NoSandbox      bool   `yaml:"no_sandbox" mapstructure:"no_sandbox"`
	ViewportWidth  int    `yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height" mapstructure:"viewport_height"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	NavTimeoutSecs int    `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBaseSecs  int    `yaml:"retry_base_secs" mapstructure:"retry_base_secs"`
}

// ScrapeConfig configures merchant scraping.
type ScrapeConfig struct {
	PageDelayMs   int    `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	MerchantsFile string `yaml:"merchants_file" mapstructure:"merchants_file"`
}

// DedupConfig configures duplicate detection.
type DedupConfig struct {
	Threshold       float64 `yaml:"threshold" mapstructure:"threshold"`
	CharWeight      float64 `yaml:"char_weight" mapstructure:"char_weight"`
	ComparisonLimit int     `yaml:"comparison_limit" mapstructure:"comparison_limit"`
	VariantGuard    bool    `yaml:"variant_guard" mapstructure:"variant_guard"`
	VariantCap      float64 `yaml:"variant_cap" mapstructure:"variant_cap"`
}

// QualityWeights are the composite weights of the four sub-scores.
type QualityWeights struct {
	Value        float64 `yaml:"value" mapstructure:"value"`
	Authenticity float64 `yaml:"authenticity" mapstructure:"authenticity"`
	Urgency      float64 `yaml:"urgency" mapstructure:"urgency"`
	Social       float64 `yaml:"social" mapstructure:"social"`
}

// QualityConfig configures deal quality scoring.
type QualityConfig struct {
	Weights        QualityWeights `yaml:"weights" mapstructure:"weights"`
	NeutralScore   int            `yaml:"neutral_score" mapstructure:"neutral_score"`
	CandidatePool  int            `yaml:"candidate_pool" mapstructure:"candidate_pool"`
	MinDiscount    int            `yaml:"min_discount" mapstructure:"min_discount"`
	HistoryWindow  int            `yaml:"history_window" mapstructure:"history_window"`
	MerchantWindow int            `yaml:"merchant_window" mapstructure:"merchant_window"`
	TrendWindow    int            `yaml:"trend_window" mapstructure:"trend_window"`
	MaxBadges      int            `yaml:"max_badges" mapstructure:"max_badges"`
	Concurrency    int            `yaml:"concurrency" mapstructure:"concurrency"`
}

// AutomationConfig identifies the system user recorded as author of
// scraped deals.
type AutomationConfig struct {
	Email string `yaml:"email" mapstructure:"email"`
	Name  string `yaml:"name" mapstructure:"name"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.key_prefix", "dealpulse")
	v.SetDefault("queue.broker", "memory")
	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff_base_secs", 2)
	v.SetDefault("queue.keep_completed", 100)
	v.SetDefault("queue.keep_failed", 50)
	v.SetDefault("schedule.scrape_all_cron", "0 */6 * * *")
	v.SetDefault("schedule.per_merchant", false)
	v.SetDefault("browser.bin_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 768)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.nav_timeout_secs", 30)
	v.SetDefault("browser.max_retries", 3)
	v.SetDefault("browser.retry_base_secs", 2)
	v.SetDefault("scrape.page_delay_ms", 2000)
	v.SetDefault("scrape.merchants_file", "merchants.yaml")
	v.SetDefault("dedup.threshold", 75.0)
	v.SetDefault("dedup.char_weight", 0.5)
	v.SetDefault("dedup.comparison_limit", 500)
	v.SetDefault("dedup.variant_guard", true)
	v.SetDefault("dedup.variant_cap", 60.0)
	v.SetDefault("quality.weights.value", 0.40)
	v.SetDefault("quality.weights.authenticity", 0.25)
	v.SetDefault("quality.weights.urgency", 0.20)
	v.SetDefault("quality.weights.social", 0.15)
	v.SetDefault("quality.neutral_score", 50)
	v.SetDefault("quality.candidate_pool", 100)
	v.SetDefault("quality.min_discount", 15)
	v.SetDefault("quality.history_window", 90)
	v.SetDefault("quality.merchant_window", 50)
	v.SetDefault("quality.trend_window", 10)
	v.SetDefault("quality.max_badges", 5)
	v.SetDefault("quality.concurrency", 8)
	v.SetDefault("automation.email", "automation@dealpulse.local")
	v.SetDefault("automation.name", "DealPulse Bot")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks values the given command mode depends on. Modes: "serve",
// "worker", "scrape", "migrate"; any other mode checks only the common set.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	case "sqlite":
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}
	switch c.Queue.Broker {
	case "memory", "redis":
	default:
		errs = append(errs, "queue.broker must be memory or redis")
	}
	if c.Queue.Workers <= 0 {
		errs = append(errs, "queue.workers must be > 0")
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 100 {
		errs = append(errs, "dedup.threshold must be in (0, 100]")
	}
	if c.Dedup.CharWeight < 0 || c.Dedup.CharWeight > 1 {
		errs = append(errs, "dedup.char_weight must be in [0, 1]")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
		fallthrough
	case "worker":
		if c.Queue.Broker == "redis" && c.Redis.URL == "" {
			errs = append(errs, "redis.url is required for the redis broker")
		}
		if c.Schedule.ScrapeAllCron == "" {
			errs = append(errs, "schedule.scrape_all_cron is required")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
