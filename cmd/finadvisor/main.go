// FinAdvisor API server: statement upload, portfolio analysis and advice
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/finadvisor/internal/api"
	"github.com/ajitpratap0/finadvisor/internal/config"
	"github.com/ajitpratap0/finadvisor/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./configs/finadvisor.yaml)")
	verifyKeys := flag.Bool("verify-keys", false, "Validate configuration and connectivity, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		config.InitLogger("info", "console")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	validator := config.NewValidator(cfg, config.DefaultValidatorOptions())
	if err := validator.ValidateStartup(ctx); err != nil {
		log.Error().Err(err).Msg("Startup validation failed")
		os.Exit(1)
	}
	if *verifyKeys {
		log.Info().Msg("Configuration verified")
		return
	}

	log.Info().
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Msg("Starting FinAdvisor")

	svc, err := wire(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer svc.close()

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, cfg.App.Version, config.NewLogger("metrics"))
		for name, check := range svc.healthChecks {
			metricsServer.AddHealthCheck(name, check)
		}
		if err := metricsServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
	}

	if svc.updater != nil {
		go svc.updater.Start(ctx)
	}

	server := api.NewServer(api.Config{
		Host:           cfg.API.Host,
		Port:           cfg.API.Port,
		AllowedOrigins: cfg.API.AllowedOrigins,
		MaxUploadSize:  cfg.Extraction.MaxUploadSize,
		Version:        cfg.App.Version,
		Pipeline:       svc.pipeline,
		Extractor:      svc.extractor,
		Breakers:       svc.breakers,
		Runs:           svc.runs,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("Server error")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	log.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop API server gracefully")
	}
	if svc.updater != nil {
		svc.updater.Stop()
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop metrics server gracefully")
		}
	}

	log.Info().Msg("FinAdvisor stopped")
}
