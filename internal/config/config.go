package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides,
// e.g. FINADVISOR_LLM_API_KEY overrides llm.api_key
const EnvPrefix = "FINADVISOR"

// Config holds all application configuration
type Config struct {
	App             AppConfig             `mapstructure:"app"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Redis           RedisConfig           `mapstructure:"redis"`
	LLM             LLMConfig             `mapstructure:"llm"`
	Market          MarketConfig          `mapstructure:"market"`
	Analysis        AnalysisConfig        `mapstructure:"analysis"`
	Extraction      ExtractionConfig      `mapstructure:"extraction"`
	Stages          StagesConfig          `mapstructure:"stages"`
	CircuitBreakers CircuitBreakersConfig `mapstructure:"circuit_breakers"`
	API             APIConfig             `mapstructure:"api"`
	Monitoring      MonitoringConfig      `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json or console
}

// DatabaseConfig contains PostgreSQL settings for the run audit store
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings for the market outlook cache
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LLMConfig contains reasoning backend settings
type LLMConfig struct {
	Provider      string        `mapstructure:"provider"` // "gateway", "gemini" or "none"
	Endpoint      string        `mapstructure:"endpoint"` // OpenAI-compatible chat completions URL
	APIKey        string        `mapstructure:"api_key"`
	PrimaryModel  string        `mapstructure:"primary_model"`
	FallbackModel string        `mapstructure:"fallback_model"`
	Temperature   float64       `mapstructure:"temperature"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Timeout       time.Duration `mapstructure:"timeout"`
	JSONMode      bool          `mapstructure:"json_mode"`
	// Model circuit settings for the failover client
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// MarketConfig contains market data endpoint and summarization settings
type MarketConfig struct {
	Endpoint            string        `mapstructure:"endpoint"`
	APIKey              string        `mapstructure:"api_key"`
	Timeout             time.Duration `mapstructure:"timeout"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	BullishThresholdPct float64       `mapstructure:"bullish_threshold_pct"`
	WatchThresholdPct   float64       `mapstructure:"watch_threshold_pct"`
	MaxWatch            int           `mapstructure:"max_watch"`
}

// AnalysisConfig contains the recommendation rule thresholds and sector mapping
type AnalysisConfig struct {
	CategoryConcentrationPct float64 `mapstructure:"category_concentration_pct"`
	SectorConcentrationPct   float64 `mapstructure:"sector_concentration_pct"`
	SingleHoldingPct         float64 `mapstructure:"single_holding_pct"`
	MinDebtPct               float64 `mapstructure:"min_debt_pct"`
	// SectorTable is an optional YAML file of identifier -> sector
	SectorTable string `mapstructure:"sector_table"`
	// Sectors are inline entries merged over the file
	Sectors map[string]string `mapstructure:"sectors"`
}

// ExtractionConfig contains statement extraction settings
type ExtractionConfig struct {
	PasswordRule  string  `mapstructure:"password_rule"` // pan, pan_lower, pan_dob, none
	CellGap       float64 `mapstructure:"cell_gap"`
	MaxUploadSize int64   `mapstructure:"max_upload_size"`
}

// StagePolicyConfig bounds the calls of one external stage
type StagePolicyConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	Retries       int           `mapstructure:"retries"`
	Backoff       time.Duration `mapstructure:"backoff"`
	RatePerSecond float64       `mapstructure:"rate_per_second"` // 0 disables the limiter
	Burst         int           `mapstructure:"burst"`
}

// StagesConfig contains per-stage call policies
type StagesConfig struct {
	Market  StagePolicyConfig `mapstructure:"market"`
	Advisor StagePolicyConfig `mapstructure:"advisor"`
	// RunTimeout bounds a whole pipeline run
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// CircuitBreakerSettings configures one circuit breaker
type CircuitBreakerSettings struct {
	MinRequests     uint32        `mapstructure:"min_requests"`
	FailureRatio    float64       `mapstructure:"failure_ratio"`
	OpenTimeout     time.Duration `mapstructure:"open_timeout"`
	HalfOpenMaxReqs uint32        `mapstructure:"half_open_max_requests"`
	CountInterval   time.Duration `mapstructure:"count_interval"`
}

// CircuitBreakersConfig contains per-dependency breaker settings
type CircuitBreakersConfig struct {
	Market   CircuitBreakerSettings `mapstructure:"market"`
	LLM      CircuitBreakerSettings `mapstructure:"llm"`
	Database CircuitBreakerSettings `mapstructure:"database"`
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("finadvisor")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "FinAdvisor")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Database defaults (audit store is optional)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", PostgresPort)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "finadvisor")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 5)

	// Redis defaults (outlook cache is optional)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", RedisPort)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// LLM defaults
	v.SetDefault("llm.provider", "gateway")
	v.SetDefault("llm.endpoint", "http://localhost:8081/v1/chat/completions")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.primary_model", "gpt-4o-mini")
	v.SetDefault("llm.fallback_model", "")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 1500)
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.json_mode", true)
	v.SetDefault("llm.failure_threshold", 3)
	v.SetDefault("llm.cooldown", "60s")

	// Market defaults
	v.SetDefault("market.endpoint", "")
	v.SetDefault("market.api_key", "")
	v.SetDefault("market.timeout", "5s")
	v.SetDefault("market.cache_ttl", "5m")
	v.SetDefault("market.bullish_threshold_pct", 0.5)
	v.SetDefault("market.watch_threshold_pct", 1.0)
	v.SetDefault("market.max_watch", 5)

	// Analysis defaults
	v.SetDefault("analysis.category_concentration_pct", 50.0)
	v.SetDefault("analysis.sector_concentration_pct", 40.0)
	v.SetDefault("analysis.single_holding_pct", 25.0)
	v.SetDefault("analysis.min_debt_pct", 10.0)
	v.SetDefault("analysis.sector_table", "")

	// Extraction defaults
	v.SetDefault("extraction.password_rule", "pan")
	v.SetDefault("extraction.cell_gap", 6.0)
	v.SetDefault("extraction.max_upload_size", 20<<20)

	// Stage call policies
	v.SetDefault("stages.market.timeout", "5s")
	v.SetDefault("stages.market.retries", 1)
	v.SetDefault("stages.market.backoff", "200ms")
	v.SetDefault("stages.market.rate_per_second", 0)
	v.SetDefault("stages.market.burst", 1)
	v.SetDefault("stages.advisor.timeout", "30s")
	v.SetDefault("stages.advisor.retries", 1)
	v.SetDefault("stages.advisor.backoff", "1s")
	v.SetDefault("stages.advisor.rate_per_second", 2)
	v.SetDefault("stages.advisor.burst", 4)
	v.SetDefault("stages.run_timeout", "90s")

	// Circuit breaker defaults
	v.SetDefault("circuit_breakers.market.min_requests", 5)
	v.SetDefault("circuit_breakers.market.failure_ratio", 0.6)
	v.SetDefault("circuit_breakers.market.open_timeout", "30s")
	v.SetDefault("circuit_breakers.market.half_open_max_requests", 3)
	v.SetDefault("circuit_breakers.market.count_interval", "10s")
	v.SetDefault("circuit_breakers.llm.min_requests", 3)
	v.SetDefault("circuit_breakers.llm.failure_ratio", 0.6)
	v.SetDefault("circuit_breakers.llm.open_timeout", "60s")
	v.SetDefault("circuit_breakers.llm.half_open_max_requests", 2)
	v.SetDefault("circuit_breakers.llm.count_interval", "10s")
	v.SetDefault("circuit_breakers.database.min_requests", 10)
	v.SetDefault("circuit_breakers.database.failure_ratio", 0.6)
	v.SetDefault("circuit_breakers.database.open_timeout", "15s")
	v.SetDefault("circuit_breakers.database.half_open_max_requests", 5)
	v.SetDefault("circuit_breakers.database.count_interval", "10s")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", APIServerPort)
	v.SetDefault("api.allowed_origins", []string{"http://localhost:3000"})

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", MetricsPort)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
