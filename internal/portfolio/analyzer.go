package portfolio

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Thresholds configures the concentration rules, all in percent
type Thresholds struct {
	CategoryConcentrationPct float64 `mapstructure:"category_concentration_pct"`
	SectorConcentrationPct   float64 `mapstructure:"sector_concentration_pct"`
	SingleHoldingPct         float64 `mapstructure:"single_holding_pct"`
	MinDebtPct               float64 `mapstructure:"min_debt_pct"`
}

// DefaultThresholds returns the thresholds used when none are configured
func DefaultThresholds() Thresholds {
	return Thresholds{
		CategoryConcentrationPct: 50,
		SectorConcentrationPct:   40,
		SingleHoldingPct:         25,
		MinDebtPct:               10,
	}
}

// Analysis is the analyzer output for one portfolio
type Analysis struct {
	Allocation      AllocationBreakdown `json:"allocation"`
	Sectors         SectorBreakdown     `json:"sector_breakdown"`
	Recommendations []string            `json:"recommendations"`
	// FiredRules lists the names of rules that produced recommendations, in order
	FiredRules []string `json:"fired_rules"`
}

// Analyzer computes breakdowns and evaluates recommendation rules
type Analyzer struct {
	sectors    *SectorTable
	thresholds Thresholds
	rules      []Rule
}

// NewAnalyzer creates an analyzer; with no rules given it uses DefaultRules
func NewAnalyzer(sectors *SectorTable, thresholds Thresholds, rules ...Rule) *Analyzer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if sectors == nil {
		sectors = NewSectorTable(nil)
	}
	return &Analyzer{
		sectors:    sectors,
		thresholds: thresholds,
		rules:      rules,
	}
}

// Rules returns the rules in evaluation order
func (a *Analyzer) Rules() []Rule {
	out := make([]Rule, len(a.rules))
	copy(out, a.rules)
	return out
}

// Analyze derives the allocation and sector breakdowns from the full portfolio
// and evaluates every rule independently in declaration order.
func (a *Analyzer) Analyze(p *Portfolio) Analysis {
	if p == nil {
		p = New(nil, nil)
	}

	in := RuleInput{
		Portfolio:  p,
		Allocation: Allocation(p),
		Sectors:    Sectors(p, a.sectors),
		Thresholds: a.thresholds,
	}

	result := Analysis{
		Allocation:      in.Allocation,
		Sectors:         in.Sectors,
		Recommendations: []string{},
		FiredRules:      []string{},
	}

	for _, rule := range a.rules {
		if rule.When != nil && !rule.When(in) {
			continue
		}
		recs := rule.Then(in)
		if len(recs) == 0 {
			continue
		}
		result.Recommendations = append(result.Recommendations, recs...)
		result.FiredRules = append(result.FiredRules, rule.Name)
	}

	log.Debug().
		Int("holdings", len(p.Holdings)).
		Int("categories", len(result.Allocation)).
		Int("sectors", len(result.Sectors)).
		Strs("fired_rules", result.FiredRules).
		Msg("Portfolio analyzed")

	return result
}

// Allocation groups holdings by category as a percentage of total value.
// Every category present in the portfolio gets an entry. A zero total, which
// includes an empty or nil portfolio, yields every known category at zero.
func Allocation(p *Portfolio) AllocationBreakdown {
	out := make(AllocationBreakdown)
	if p == nil {
		return zeroAllocation(out)
	}

	subtotals := make(map[Category]decimal.Decimal)
	total := decimal.Zero
	for _, h := range p.Holdings {
		cat := h.Category
		if !cat.Valid() {
			cat = CategoryOther
		}
		subtotals[cat] = subtotals[cat].Add(h.CurrentValue)
		total = total.Add(h.CurrentValue)
	}

	if total.Sign() <= 0 {
		return zeroAllocation(out)
	}
	for cat, sub := range subtotals {
		out[cat] = percentOf(sub, total)
	}
	return out
}

func zeroAllocation(out AllocationBreakdown) AllocationBreakdown {
	for _, cat := range Categories {
		out[cat] = 0
	}
	return out
}

// Sectors computes the sector breakdown over equity holdings only, relative to
// total equity value. Unmapped holdings are grouped under UnknownSector.
func Sectors(p *Portfolio, table *SectorTable) SectorBreakdown {
	out := make(SectorBreakdown)
	if p == nil {
		return out
	}

	subtotals := make(map[string]decimal.Decimal)
	equityTotal := decimal.Zero
	for _, h := range p.Holdings {
		if h.Category != CategoryEquity {
			continue
		}
		sector, ok := table.Lookup(h)
		if !ok {
			sector = UnknownSector
		}
		subtotals[sector] = subtotals[sector].Add(h.CurrentValue)
		equityTotal = equityTotal.Add(h.CurrentValue)
	}

	for sector, sub := range subtotals {
		out[sector] = percentOf(sub, equityTotal)
	}
	return out
}

// HoldingShare returns a holding's share of the portfolio total in percent
func HoldingShare(p *Portfolio, h Holding) float64 {
	if p == nil {
		return 0
	}
	return percentOf(h.CurrentValue, p.TotalValue)
}

func percentOf(part, total decimal.Decimal) float64 {
	if total.Sign() <= 0 {
		return 0
	}
	return part.Mul(hundred).Div(total).InexactFloat64()
}
