package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ValidatorOptions contains options for startup validation
type ValidatorOptions struct {
	VerifyConnectivity bool // Check database/Redis connectivity
	Timeout            time.Duration
}

// DefaultValidatorOptions returns default validator options for startup
func DefaultValidatorOptions() ValidatorOptions {
	return ValidatorOptions{
		VerifyConnectivity: true,
		Timeout:            5 * time.Second,
	}
}

// Validator checks that the configured dependencies are reachable at startup
type Validator struct {
	config  *Config
	options ValidatorOptions
}

// NewValidator creates a new startup validator
func NewValidator(config *Config, options ValidatorOptions) *Validator {
	if options.Timeout == 0 {
		options.Timeout = 5 * time.Second
	}
	return &Validator{
		config:  config,
		options: options,
	}
}

// ValidateStartup performs startup validation.
// This should be called before starting any services
func (v *Validator) ValidateStartup(ctx context.Context) error {
	log.Info().Msg("Validating configuration...")

	if err := v.validateAPIKeysPresence(); err != nil {
		return fmt.Errorf("API key validation failed: %w", err)
	}

	if v.options.VerifyConnectivity && v.config.Database.Enabled {
		if err := v.checkDatabaseConnectivity(ctx); err != nil {
			return fmt.Errorf("database connectivity check failed: %w", err)
		}
	}

	if v.options.VerifyConnectivity && v.config.Redis.Enabled {
		if err := v.checkRedisConnectivity(ctx); err != nil {
			return fmt.Errorf("redis connectivity check failed: %w", err)
		}
	}

	log.Info().Msg("Configuration validation completed successfully")
	return nil
}

// validateAPIKeysPresence checks keys exist; degraded stages are allowed
// but logged so operators know recommendations will be rule-derived.
func (v *Validator) validateAPIKeysPresence() error {
	var errors []string

	switch v.config.LLM.Provider {
	case "gemini":
		if v.config.LLM.APIKey == "" {
			errors = append(errors, "llm.api_key is required for the gemini provider")
		}
	case "none":
		log.Warn().Msg("No reasoning backend configured; advisor will use fallback recommendations")
	}

	if v.config.LLM.APIKey != "" && isPlaceholderValue(v.config.LLM.APIKey) {
		log.Warn().
			Str("field", "llm.api_key").
			Msg("API key looks like a placeholder")
	}

	if v.config.Market.Endpoint == "" {
		log.Warn().Msg("No market endpoint configured; market outlook will be neutral")
	}

	if len(errors) > 0 {
		var errMsg strings.Builder
		errMsg.WriteString("API key validation failed:\n\n")
		for _, err := range errors {
			errMsg.WriteString(fmt.Sprintf("  - %s\n", err))
		}
		errMsg.WriteString("\nPlease provide valid API keys and try again.\n")
		return fmt.Errorf("%s", errMsg.String())
	}

	log.Info().Msg("API key presence validation passed")
	return nil
}

// checkDatabaseConnectivity tests the audit store connection with timeout
func (v *Validator) checkDatabaseConnectivity(ctx context.Context) error {
	log.Info().Msg("Checking database connectivity...")

	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	connString := v.config.Database.GetDSN()
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		connString = dbURL
	}

	pool, err := pgxpool.New(connCtx, connString)
	if err != nil {
		return fmt.Errorf("failed to create database connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(connCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", v.config.Database.Host).
		Int("port", v.config.Database.Port).
		Msg("Database connectivity check passed")

	return nil
}

// checkRedisConnectivity tests Redis connection with timeout
func (v *Validator) checkRedisConnectivity(ctx context.Context) error {
	log.Info().Msg("Checking Redis connectivity...")

	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     v.config.Redis.GetRedisAddr(),
		Password: v.config.Redis.Password,
		DB:       v.config.Redis.DB,
	})
	defer client.Close()

	if err := client.Ping(connCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().
		Str("addr", v.config.Redis.GetRedisAddr()).
		Int("db", v.config.Redis.DB).
		Msg("Redis connectivity check passed")

	return nil
}

// isPlaceholderValue checks if a value is likely a placeholder
func isPlaceholderValue(value string) bool {
	lowerValue := strings.ToLower(value)
	placeholders := []string{
		"your_api_key",
		"your_secret",
		"changeme",
		"placeholder",
		"example",
		"sample",
		"demo",
	}

	for _, placeholder := range placeholders {
		if strings.Contains(lowerValue, placeholder) {
			return true
		}
	}

	return false
}
