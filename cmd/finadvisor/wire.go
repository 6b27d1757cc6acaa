package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/finadvisor/internal/advisor"
	"github.com/ajitpratap0/finadvisor/internal/api"
	"github.com/ajitpratap0/finadvisor/internal/config"
	"github.com/ajitpratap0/finadvisor/internal/db"
	"github.com/ajitpratap0/finadvisor/internal/extractor"
	"github.com/ajitpratap0/finadvisor/internal/llm"
	"github.com/ajitpratap0/finadvisor/internal/market"
	"github.com/ajitpratap0/finadvisor/internal/metrics"
	"github.com/ajitpratap0/finadvisor/internal/orchestrator"
	"github.com/ajitpratap0/finadvisor/internal/portfolio"
	"github.com/ajitpratap0/finadvisor/internal/risk"
	"github.com/ajitpratap0/finadvisor/internal/stage"
)

// services holds everything main starts and stops
type services struct {
	pipeline     *orchestrator.Pipeline
	extractor    *extractor.Extractor
	breakers     *risk.BreakerManager
	runs         api.RunStore
	updater      *metrics.Updater
	healthChecks map[string]metrics.HealthCheck
	closers      []func()
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func wire(ctx context.Context, cfg *config.Config) (*services, error) {
	svc := &services{healthChecks: make(map[string]metrics.HealthCheck)}

	svc.breakers = risk.NewBreakerManagerWithSettings(
		breakerSettings(cfg.CircuitBreakers.Market),
		breakerSettings(cfg.CircuitBreakers.LLM),
		breakerSettings(cfg.CircuitBreakers.Database),
	)

	rule, err := extractor.ParsePasswordRule(cfg.Extraction.PasswordRule)
	if err != nil {
		return nil, err
	}
	svc.extractor = extractor.New(rule, extractor.WithPDFRowReader(extractor.PDFRowReader{CellGap: cfg.Extraction.CellGap}))

	sectors := portfolio.NewSectorTable(nil)
	if cfg.Analysis.SectorTable != "" {
		sectors, err = portfolio.LoadSectorTable(cfg.Analysis.SectorTable)
		if err != nil {
			return nil, fmt.Errorf("failed to load sector table: %w", err)
		}
	}
	sectors.Merge(cfg.Analysis.Sectors)
	log.Info().Int("entries", sectors.Len()).Msg("Sector table loaded")

	analyzer := portfolio.NewAnalyzer(sectors, portfolio.Thresholds{
		CategoryConcentrationPct: cfg.Analysis.CategoryConcentrationPct,
		SectorConcentrationPct:   cfg.Analysis.SectorConcentrationPct,
		SingleHoldingPct:         cfg.Analysis.SingleHoldingPct,
		MinDebtPct:               cfg.Analysis.MinDebtPct,
	})

	var cache *market.OutlookCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		svc.closers = append(svc.closers, func() { _ = client.Close() })
		cache = market.NewOutlookCache(client, cfg.Market.CacheTTL)
		svc.healthChecks["redis"] = cache.Health
	}

	marketStage := market.NewOutlookStage(
		market.NewClient(market.ClientConfig{
			Endpoint: cfg.Market.Endpoint,
			APIKey:   cfg.Market.APIKey,
			Timeout:  cfg.Market.Timeout,
		}),
		cache,
		market.Settings{
			BullishThresholdPct: cfg.Market.BullishThresholdPct,
			WatchThresholdPct:   cfg.Market.WatchThresholdPct,
			MaxWatch:            cfg.Market.MaxWatch,
		},
	)

	reasoner, err := newReasoner(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	deps := orchestrator.Dependencies{
		Extractor: svc.extractor,
		Analyzer:  analyzer,
		Market:    marketStage,
		Advisor:   advisor.New(reasoner),
	}

	if cfg.Database.Enabled {
		dsn := cfg.Database.GetDSN()
		if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
			dsn = dbURL
		}
		database, err := db.New(ctx, dsn, cfg.Database.PoolSize)
		if err != nil {
			return nil, fmt.Errorf("failed to connect audit store: %w", err)
		}
		svc.closers = append(svc.closers, database.Close)

		runs := db.NewRunRepository(database.Pool())
		svc.runs = runs
		deps.Audit = runs
		deps.AuditBreaker = svc.breakers.Database()
		svc.healthChecks["database"] = database.Health
		svc.updater = metrics.NewUpdater(func() metrics.PoolStats {
			active, idle := database.Stats()
			return metrics.PoolStats{Active: active, Idle: idle}
		}, 0)
	}

	svc.pipeline = orchestrator.New(orchestrator.Config{
		MarketPolicy:  stagePolicy(cfg.Stages.Market, svc.breakers.Market()),
		AdvisorPolicy: stagePolicy(cfg.Stages.Advisor, svc.breakers.LLM()),
		RunTimeout:    cfg.Stages.RunTimeout,
	}, deps)

	log.Info().
		Str("password_rule", string(rule)).
		Str("model", deps.Advisor.Model()).
		Bool("cache", cache != nil).
		Bool("audit", deps.Audit != nil).
		Msg("Pipeline configured")

	return svc, nil
}

// newReasoner builds the advisor backend; a nil Reasoner makes the advisor
// always fall back to rule-derived recommendations
func newReasoner(ctx context.Context, cfg config.LLMConfig) (llm.Reasoner, error) {
	circuits := llm.ModelCircuitConfig{
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.Cooldown,
	}

	switch cfg.Provider {
	case "none":
		return nil, nil
	case "gemini":
		newGemini := func(model string) (llm.Reasoner, error) {
			return llm.NewGeminiClient(ctx, llm.GeminiConfig{
				APIKey:      cfg.APIKey,
				Model:       model,
				Temperature: cfg.Temperature,
				MaxTokens:   cfg.MaxTokens,
				Timeout:     cfg.Timeout,
				JSONMode:    cfg.JSONMode,
			})
		}
		primary, err := newGemini(cfg.PrimaryModel)
		if err != nil {
			return nil, err
		}
		if cfg.FallbackModel == "" {
			return primary, nil
		}
		fallback, err := newGemini(cfg.FallbackModel)
		if err != nil {
			return nil, err
		}
		return llm.NewFallbackClient(circuits, primary, fallback), nil
	default:
		newGateway := func(model string) llm.Reasoner {
			return llm.NewClient(llm.ClientConfig{
				Endpoint:    cfg.Endpoint,
				APIKey:      cfg.APIKey,
				Model:       model,
				Temperature: cfg.Temperature,
				MaxTokens:   cfg.MaxTokens,
				Timeout:     cfg.Timeout,
				JSONMode:    cfg.JSONMode,
			})
		}
		if cfg.FallbackModel == "" {
			return newGateway(cfg.PrimaryModel), nil
		}
		return llm.NewFallbackClient(circuits, newGateway(cfg.PrimaryModel), newGateway(cfg.FallbackModel)), nil
	}
}

func breakerSettings(c config.CircuitBreakerSettings) *risk.ServiceSettings {
	return &risk.ServiceSettings{
		MinRequests:     c.MinRequests,
		FailureRatio:    c.FailureRatio,
		OpenTimeout:     c.OpenTimeout,
		HalfOpenMaxReqs: c.HalfOpenMaxReqs,
		CountInterval:   c.CountInterval,
	}
}

func stagePolicy(c config.StagePolicyConfig, breaker *gobreaker.CircuitBreaker) stage.Policy {
	policy := stage.Policy{
		Timeout: c.Timeout,
		Retries: c.Retries,
		Backoff: c.Backoff,
		Breaker: breaker,
	}
	if c.RatePerSecond > 0 {
		burst := c.Burst
		if burst <= 0 {
			burst = 1
		}
		policy.Limiter = rate.NewLimiter(rate.Limit(c.RatePerSecond), burst)
	}
	return policy
}
