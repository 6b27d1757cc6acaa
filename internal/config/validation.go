package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

var (
	validEnvironments  = []string{"development", "staging", "production"}
	validLogFormats    = []string{"json", "console"}
	validProviders     = []string{"gateway", "gemini", "none"}
	validPasswordRules = []string{"pan", "pan_lower", "pan_dob", "none"}
)

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateMarket()...)
	errors = append(errors, c.validateAnalysis()...)
	errors = append(errors, c.validateExtraction()...)
	errors = append(errors, c.validateStages()...)
	errors = append(errors, c.validateCircuitBreakers()...)
	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	if c.App.Environment == "" {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: "Environment is required (development, staging, or production)",
		})
	} else if !oneOf(c.App.Environment, validEnvironments) {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvironments),
		})
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	} else if _, err := zerolog.ParseLevel(strings.ToLower(c.App.LogLevel)); err != nil {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: fmt.Sprintf("Invalid log level '%s'", c.App.LogLevel),
		})
	}

	if c.App.LogFormat != "" && !oneOf(c.App.LogFormat, validLogFormats) {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be one of: %v", c.App.LogFormat, validLogFormats),
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if !c.Database.Enabled {
		return errors
	}

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
		})
	}

	errors = append(errors, validatePort("database.port", "Database", c.Database.Port)...)

	if c.Database.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "Database user is required",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	if c.Database.Password == "" && c.App.Environment != "development" {
		errors = append(errors, ValidationError{
			Field:   "database.password",
			Message: "Database password is required in non-development environments",
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: "Database pool size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if !c.Redis.Enabled {
		return errors
	}

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required",
		})
	}

	errors = append(errors, validatePort("redis.port", "Redis", c.Redis.Port)...)

	return errors
}

func (c *Config) validateLLM() ValidationErrors {
	var errors ValidationErrors

	if !oneOf(c.LLM.Provider, validProviders) {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("Invalid provider '%s'. Must be one of: %v", c.LLM.Provider, validProviders),
		})
		return errors
	}

	if c.LLM.Provider == "none" {
		return errors
	}

	switch c.LLM.Provider {
	case "gateway":
		if err := validateURL(c.LLM.Endpoint); err != "" {
			errors = append(errors, ValidationError{
				Field:   "llm.endpoint",
				Message: err,
			})
		}
	case "gemini":
		if c.LLM.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.api_key",
				Message: "API key is required for the gemini provider (set FINADVISOR_LLM_API_KEY)",
			})
		}
	}

	if c.LLM.PrimaryModel == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.primary_model",
			Message: "Primary model is required",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("Temperature %.2f out of range. Must be between 0 and 2", c.LLM.Temperature),
		})
	}

	if c.LLM.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "Max tokens must be at least 1",
		})
	}

	errors = append(errors, validatePositiveDuration("llm.timeout", c.LLM.Timeout)...)

	return errors
}

func (c *Config) validateMarket() ValidationErrors {
	var errors ValidationErrors

	if c.Market.Endpoint != "" {
		if err := validateURL(c.Market.Endpoint); err != "" {
			errors = append(errors, ValidationError{
				Field:   "market.endpoint",
				Message: err,
			})
		}
	}

	errors = append(errors, validatePositiveDuration("market.timeout", c.Market.Timeout)...)

	if c.Market.CacheTTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "market.cache_ttl",
			Message: "Cache TTL cannot be negative",
		})
	}

	if c.Market.BullishThresholdPct < 0 {
		errors = append(errors, ValidationError{
			Field:   "market.bullish_threshold_pct",
			Message: "Bullish threshold cannot be negative",
		})
	}

	if c.Market.WatchThresholdPct < 0 {
		errors = append(errors, ValidationError{
			Field:   "market.watch_threshold_pct",
			Message: "Watch threshold cannot be negative",
		})
	}

	if c.Market.MaxWatch < 0 {
		errors = append(errors, ValidationError{
			Field:   "market.max_watch",
			Message: "Max watch cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateAnalysis() ValidationErrors {
	var errors ValidationErrors

	pcts := []struct {
		field string
		value float64
	}{
		{"analysis.category_concentration_pct", c.Analysis.CategoryConcentrationPct},
		{"analysis.sector_concentration_pct", c.Analysis.SectorConcentrationPct},
		{"analysis.single_holding_pct", c.Analysis.SingleHoldingPct},
	}
	for _, p := range pcts {
		if p.value <= 0 || p.value > 100 {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Message: fmt.Sprintf("Threshold %.2f out of range. Must be between 0 (exclusive) and 100", p.value),
			})
		}
	}

	if c.Analysis.MinDebtPct < 0 || c.Analysis.MinDebtPct > 100 {
		errors = append(errors, ValidationError{
			Field:   "analysis.min_debt_pct",
			Message: fmt.Sprintf("Threshold %.2f out of range. Must be between 0 and 100", c.Analysis.MinDebtPct),
		})
	}

	return errors
}

func (c *Config) validateExtraction() ValidationErrors {
	var errors ValidationErrors

	rule := strings.ToLower(strings.TrimSpace(c.Extraction.PasswordRule))
	if rule != "" && !oneOf(rule, validPasswordRules) {
		errors = append(errors, ValidationError{
			Field:   "extraction.password_rule",
			Message: fmt.Sprintf("Invalid password rule '%s'. Must be one of: %v", c.Extraction.PasswordRule, validPasswordRules),
		})
	}

	if c.Extraction.CellGap < 0 {
		errors = append(errors, ValidationError{
			Field:   "extraction.cell_gap",
			Message: "Cell gap cannot be negative",
		})
	}

	if c.Extraction.MaxUploadSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "extraction.max_upload_size",
			Message: "Max upload size cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateStages() ValidationErrors {
	var errors ValidationErrors

	for _, stage := range []struct {
		name   string
		policy StagePolicyConfig
	}{
		{"market", c.Stages.Market},
		{"advisor", c.Stages.Advisor},
	} {
		prefix := "stages." + stage.name
		p := stage.policy
		errors = append(errors, validatePositiveDuration(prefix+".timeout", p.Timeout)...)

		if p.Retries < 0 || p.Retries > 5 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".retries",
				Message: fmt.Sprintf("Retries %d out of range. Must be between 0 and 5", p.Retries),
			})
		}
		if p.Backoff < 0 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".backoff",
				Message: "Backoff cannot be negative",
			})
		}
		if p.RatePerSecond < 0 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".rate_per_second",
				Message: "Rate cannot be negative",
			})
		}
		if p.RatePerSecond > 0 && p.Burst < 1 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".burst",
				Message: "Burst must be at least 1 when a rate is set",
			})
		}
	}

	if c.Stages.RunTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "stages.run_timeout",
			Message: "Run timeout cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateCircuitBreakers() ValidationErrors {
	var errors ValidationErrors

	for _, b := range []struct {
		name     string
		settings CircuitBreakerSettings
	}{
		{"market", c.CircuitBreakers.Market},
		{"llm", c.CircuitBreakers.LLM},
		{"database", c.CircuitBreakers.Database},
	} {
		prefix := "circuit_breakers." + b.name
		if b.settings.FailureRatio <= 0 || b.settings.FailureRatio > 1 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".failure_ratio",
				Message: fmt.Sprintf("Failure ratio %.2f out of range. Must be between 0 (exclusive) and 1", b.settings.FailureRatio),
			})
		}
		if b.settings.MinRequests < 1 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".min_requests",
				Message: "Minimum requests must be at least 1",
			})
		}
		errors = append(errors, validatePositiveDuration(prefix+".open_timeout", b.settings.OpenTimeout)...)
	}

	return errors
}

func (c *Config) validateAPI() ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, validatePort("api.port", "API", c.API.Port)...)

	if c.Monitoring.EnableMetrics {
		errors = append(errors, validatePort("monitoring.prometheus_port", "Metrics", c.Monitoring.PrometheusPort)...)
		if c.Monitoring.PrometheusPort == c.API.Port {
			errors = append(errors, ValidationError{
				Field:   "monitoring.prometheus_port",
				Message: "Metrics port must differ from the API port",
			})
		}
	}

	return errors
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors

	if c.App.Environment != "production" {
		return errors
	}

	if c.LLM.Provider != "none" && (c.LLM.APIKey == "" || isPlaceholderValue(c.LLM.APIKey)) {
		errors = append(errors, ValidationError{
			Field:   "llm.api_key",
			Message: "A real LLM API key is required in production",
		})
	}

	if c.Database.Enabled && c.Database.SSLMode == "disable" {
		errors = append(errors, ValidationError{
			Field:   "database.ssl_mode",
			Message: "SSL must be enabled for database in production",
		})
	}

	if c.App.LogLevel == "debug" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Debug logging must be disabled in production",
		})
	}

	return errors
}

// ValidateAndLoad loads and validates configuration.
// configPath can be empty to use default config locations
func ValidateAndLoad(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func validatePort(field, label string, port int) ValidationErrors {
	if port == 0 {
		return ValidationErrors{{Field: field, Message: label + " port is required"}}
	}
	if port < 1 || port > 65535 {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", port)}}
	}
	return nil
}

func validatePositiveDuration(field string, d time.Duration) ValidationErrors {
	if d <= 0 {
		return ValidationErrors{{Field: field, Message: "Duration must be positive"}}
	}
	return nil
}

// validateURL returns an error message, or "" for a usable http(s) URL
func validateURL(raw string) string {
	if raw == "" {
		return "URL is required"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("Invalid URL '%s': %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("Invalid URL '%s'. Scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Sprintf("Invalid URL '%s'. Host is required", raw)
	}
	return ""
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
