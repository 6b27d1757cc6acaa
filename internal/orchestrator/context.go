package orchestrator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ajitpratap0/finadvisor/internal/portfolio"
	"github.com/ajitpratap0/finadvisor/internal/stage"
)

// Stage names used in the status map
const (
	StageExtraction = "extraction"
	StageAnalysis   = "analysis"
	StageMarket     = "market"
	StageRisk       = "risk"
	StageAdvisor    = "advisor"
)

// errAlreadyWritten is returned when a stage output is written twice
var errAlreadyWritten = errors.New("run context field already written")

// RunContext is the per-run aggregate threaded through the state machine.
// Every output field is written once by the stage that owns it; the status
// map and recommendation list only grow.
type RunContext struct {
	RunID string

	Portfolio       *portfolio.Portfolio
	Allocation      portfolio.AllocationBreakdown
	Sectors         portfolio.SectorBreakdown
	FiredRules      []string
	Outlook         portfolio.MarketOutlook
	Risk            portfolio.RiskProfile
	Recommendations []portfolio.Recommendation

	mu          sync.RWMutex
	written     map[string]bool
	status      map[string]stage.Status
	stageErrors map[string]string
	completed   []string
}

// NewRunContext creates an empty context for one run
func NewRunContext(runID string) *RunContext {
	return &RunContext{
		RunID:           runID,
		Recommendations: []portfolio.Recommendation{},
		written:         make(map[string]bool),
		status:          make(map[string]stage.Status),
		stageErrors:     make(map[string]string),
		completed:       []string{},
	}
}

func (rc *RunContext) claim(field string) error {
	if rc.written[field] {
		return fmt.Errorf("%w: %s", errAlreadyWritten, field)
	}
	rc.written[field] = true
	return nil
}

// SetPortfolio records the extracted portfolio
func (rc *RunContext) SetPortfolio(p *portfolio.Portfolio) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.claim("portfolio"); err != nil {
		return err
	}
	rc.Portfolio = p
	return nil
}

// SetAnalysis records the analyzer output and appends its recommendations
func (rc *RunContext) SetAnalysis(a portfolio.Analysis) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.claim("analysis"); err != nil {
		return err
	}
	rc.Allocation = a.Allocation
	rc.Sectors = a.Sectors
	rc.FiredRules = a.FiredRules
	for _, text := range a.Recommendations {
		rc.Recommendations = append(rc.Recommendations, portfolio.Recommendation{
			Goal:      text,
			Rationale: "Portfolio rule check",
			Source:    portfolio.SourceAnalyzer,
		})
	}
	return nil
}

// SetOutlook records the market stage output
func (rc *RunContext) SetOutlook(o portfolio.MarketOutlook) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.claim("outlook"); err != nil {
		return err
	}
	rc.Outlook = o
	return nil
}

// SetRisk records the risk stage output
func (rc *RunContext) SetRisk(r portfolio.RiskProfile) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.claim("risk"); err != nil {
		return err
	}
	rc.Risk = r
	return nil
}

// AppendAdvice appends the advisor stage output
func (rc *RunContext) AppendAdvice(recs []portfolio.Recommendation) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.claim("advice"); err != nil {
		return err
	}
	rc.Recommendations = append(rc.Recommendations, recs...)
	return nil
}

// Record sets the outcome of a stage. A non-nil err is kept as the stage's
// degradation reason.
func (rc *RunContext) Record(name string, status stage.Status, err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.status[name] = status
	if err != nil {
		rc.stageErrors[name] = err.Error()
	}
	if status != stage.StatusFailed {
		rc.completed = append(rc.completed, name)
	}
}

// Status returns a copy of the per-stage status map
func (rc *RunContext) Status() map[string]stage.Status {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make(map[string]stage.Status, len(rc.status))
	for k, v := range rc.status {
		out[k] = v
	}
	return out
}

// StageErrors returns a copy of the recorded degradation reasons
func (rc *RunContext) StageErrors() map[string]string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make(map[string]string, len(rc.stageErrors))
	for k, v := range rc.stageErrors {
		out[k] = v
	}
	return out
}

// Completed returns the stages that resolved, in completion order
func (rc *RunContext) Completed() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]string, len(rc.completed))
	copy(out, rc.completed)
	return out
}
