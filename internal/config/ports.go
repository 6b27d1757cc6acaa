// Package config provides configuration management for FinAdvisor.
// This file centralizes the default ports used by the service and its dependencies.
package config

// Service ports
const (
	// APIServerPort is the port for the REST API server.
	APIServerPort = 8080

	// MetricsPort is the port the Prometheus metrics server listens on.
	MetricsPort = 9100
)

// Infrastructure ports
const (
	// PostgresPort is the default port for PostgreSQL.
	PostgresPort = 5432

	// RedisPort is the default port for Redis.
	RedisPort = 6379
)
