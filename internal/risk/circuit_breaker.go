package risk

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Circuit breaker states for Prometheus metrics
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"

	// Metric result labels
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Breaker names, one per external dependency
const (
	BreakerMarket   = "market"
	BreakerLLM      = "llm"
	BreakerDatabase = "database"
)

// Circuit breaker thresholds - configurable per dependency
const (
	// Market data settings
	MarketMinRequests     = 5
	MarketFailureRatio    = 0.6
	MarketOpenTimeout     = 30 * time.Second
	MarketHalfOpenMaxReqs = 3
	MarketCountInterval   = 10 * time.Second

	// LLM settings (longer timeouts for reasoning calls)
	LLMMinRequests     = 3
	LLMFailureRatio    = 0.6
	LLMOpenTimeout     = 60 * time.Second
	LLMHalfOpenMaxReqs = 2
	LLMCountInterval   = 10 * time.Second

	// Audit store settings (faster recovery)
	DBMinRequests     = 10
	DBFailureRatio    = 0.6
	DBOpenTimeout     = 15 * time.Second
	DBHalfOpenMaxReqs = 5
	DBCountInterval   = 10 * time.Second
)

// BreakerManager owns the circuit breakers guarding external stages
type BreakerManager struct {
	market   *gobreaker.CircuitBreaker
	llm      *gobreaker.CircuitBreaker
	database *gobreaker.CircuitBreaker
	metrics  *BreakerMetrics
}

// BreakerMetrics holds Prometheus metrics for circuit breakers
type BreakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	// Global metrics instance (singleton)
	globalMetrics *BreakerMetrics
	metricsOnce   sync.Once
)

// initMetrics initializes the global metrics instance exactly once
func initMetrics() {
	metricsOnce.Do(func() {
		globalMetrics = &BreakerMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "finadvisor_circuit_breaker_state",
					Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"service"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "finadvisor_circuit_breaker_requests_total",
					Help: "Total number of requests through circuit breaker",
				},
				[]string{"service", "result"},
			),
			failures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "finadvisor_circuit_breaker_failures_total",
					Help: "Total number of failures tracked by circuit breaker",
				},
				[]string{"service"},
			),
		}
	})
}

// ServiceSettings holds circuit breaker configuration for a single dependency
type ServiceSettings struct {
	MinRequests     uint32        `mapstructure:"min_requests"`
	FailureRatio    float64       `mapstructure:"failure_ratio"`
	OpenTimeout     time.Duration `mapstructure:"open_timeout"`
	HalfOpenMaxReqs uint32        `mapstructure:"half_open_max_requests"`
	CountInterval   time.Duration `mapstructure:"count_interval"`
}

// DefaultMarketSettings returns the market breaker defaults
func DefaultMarketSettings() ServiceSettings {
	return ServiceSettings{
		MinRequests:     MarketMinRequests,
		FailureRatio:    MarketFailureRatio,
		OpenTimeout:     MarketOpenTimeout,
		HalfOpenMaxReqs: MarketHalfOpenMaxReqs,
		CountInterval:   MarketCountInterval,
	}
}

// DefaultLLMSettings returns the LLM breaker defaults
func DefaultLLMSettings() ServiceSettings {
	return ServiceSettings{
		MinRequests:     LLMMinRequests,
		FailureRatio:    LLMFailureRatio,
		OpenTimeout:     LLMOpenTimeout,
		HalfOpenMaxReqs: LLMHalfOpenMaxReqs,
		CountInterval:   LLMCountInterval,
	}
}

// DefaultDBSettings returns the audit store breaker defaults
func DefaultDBSettings() ServiceSettings {
	return ServiceSettings{
		MinRequests:     DBMinRequests,
		FailureRatio:    DBFailureRatio,
		OpenTimeout:     DBOpenTimeout,
		HalfOpenMaxReqs: DBHalfOpenMaxReqs,
		CountInterval:   DBCountInterval,
	}
}

// NewBreakerManager creates a manager with default settings
func NewBreakerManager() *BreakerManager {
	return NewBreakerManagerWithSettings(nil, nil, nil)
}

// NewBreakerManagerWithSettings creates a breaker manager with Prometheus metrics.
// Nil settings fall back to the defaults above.
func NewBreakerManagerWithSettings(marketSettings, llmSettings, dbSettings *ServiceSettings) *BreakerManager {
	initMetrics()

	manager := &BreakerManager{
		metrics: globalMetrics,
	}

	if marketSettings == nil {
		s := DefaultMarketSettings()
		marketSettings = &s
	}
	if llmSettings == nil {
		s := DefaultLLMSettings()
		llmSettings = &s
	}
	if dbSettings == nil {
		s := DefaultDBSettings()
		dbSettings = &s
	}

	manager.market = manager.newBreaker(BreakerMarket, *marketSettings)
	manager.llm = manager.newBreaker(BreakerLLM, *llmSettings)
	manager.database = manager.newBreaker(BreakerDatabase, *dbSettings)

	manager.updateMetrics(BreakerMarket, manager.market.State())
	manager.updateMetrics(BreakerLLM, manager.llm.State())
	manager.updateMetrics(BreakerDatabase, manager.database.State())

	return manager
}

func (m *BreakerManager) newBreaker(name string, settings ServiceSettings) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.HalfOpenMaxReqs,
		Interval:    settings.CountInterval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= settings.MinRequests && failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			m.updateMetrics(name, to)
		},
		IsSuccessful: func(err error) bool {
			m.metrics.RecordRequest(name, err == nil)
			return err == nil
		},
	})
}

// NewPassthroughBreakerManager creates a manager whose breakers never trip.
// Tests use it to exercise stages without breaker interference.
func NewPassthroughBreakerManager() *BreakerManager {
	initMetrics()

	neverTrip := func(counts gobreaker.Counts) bool {
		return false
	}
	passthrough := func(name string) *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name + "_passthrough",
			MaxRequests: 1000,
			Timeout:     1 * time.Millisecond,
			ReadyToTrip: neverTrip,
		})
	}

	return &BreakerManager{
		market:   passthrough(BreakerMarket),
		llm:      passthrough(BreakerLLM),
		database: passthrough(BreakerDatabase),
		metrics:  globalMetrics,
	}
}

// Market returns the market data circuit breaker
func (m *BreakerManager) Market() *gobreaker.CircuitBreaker {
	return m.market
}

// LLM returns the reasoning call circuit breaker
func (m *BreakerManager) LLM() *gobreaker.CircuitBreaker {
	return m.llm
}

// Database returns the audit store circuit breaker
func (m *BreakerManager) Database() *gobreaker.CircuitBreaker {
	return m.database
}

// States reports every breaker's current state by name
func (m *BreakerManager) States() map[string]string {
	return map[string]string{
		BreakerMarket:   stateLabel(m.market.State()),
		BreakerLLM:      stateLabel(m.llm.State()),
		BreakerDatabase: stateLabel(m.database.State()),
	}
}

func stateLabel(state gobreaker.State) string {
	switch state {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// updateMetrics updates Prometheus metrics for a circuit breaker state change
func (m *BreakerManager) updateMetrics(service string, state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateOpen:
		stateValue = 1
	case gobreaker.StateHalfOpen:
		stateValue = 2
	}
	m.metrics.state.WithLabelValues(service).Set(stateValue)
}

// RecordRequest records a request result for metrics
func (m *BreakerMetrics) RecordRequest(service string, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
		m.failures.WithLabelValues(service).Inc()
	}
	m.requests.WithLabelValues(service, result).Inc()
}

// Metrics returns the metrics instance for manual recording
func (m *BreakerManager) Metrics() *BreakerMetrics {
	return m.metrics
}
