// Package portfolio holds the holding model extracted from statements and the
// rule-based analyzer that derives allocation and sector breakdowns from it.
package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Category is the coarse asset class of a holding
type Category string

const (
	CategoryEquity     Category = "equity"
	CategoryMutualFund Category = "mutual_fund"
	CategoryDebt       Category = "debt"
	CategoryOther      Category = "other"
)

// UnknownSector groups equity holdings without a sector mapping
const UnknownSector = "Unknown"

// Categories lists every category in reporting order
var Categories = []Category{CategoryEquity, CategoryMutualFund, CategoryDebt, CategoryOther}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryEquity, CategoryMutualFund, CategoryDebt, CategoryOther:
		return true
	}
	return false
}

// Holding is a single line-item position taken from a statement.
// Values are exact decimals; percentages derived from them are float64.
type Holding struct {
	Category     Category        `json:"category"`
	Identifier   string          `json:"identifier"`
	Name         string          `json:"name,omitempty"`
	Units        decimal.Decimal `json:"units"`
	CurrentValue decimal.Decimal `json:"current_value"`
}

// SkippedRow records a table row that could not be normalized into a Holding
type SkippedRow struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Portfolio is the ordered list of holdings produced by one extraction
type Portfolio struct {
	Holdings    []Holding       `json:"holdings"`
	TotalValue  decimal.Decimal `json:"total_value"`
	SkippedRows int             `json:"skipped_rows"`
	Skipped     []SkippedRow    `json:"skipped,omitempty"`
}

// New builds a Portfolio from holdings in source order and computes the total
func New(holdings []Holding, skipped []SkippedRow) *Portfolio {
	if holdings == nil {
		holdings = []Holding{}
	}
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(h.CurrentValue)
	}
	return &Portfolio{
		Holdings:    holdings,
		TotalValue:  total,
		SkippedRows: len(skipped),
		Skipped:     skipped,
	}
}

// Recompute returns a copy of p whose total is re-derived from its holdings.
// Portfolios submitted over the wire go through this so a stale or forged
// total never leaks into percentages.
func (p *Portfolio) Recompute() *Portfolio {
	holdings := make([]Holding, len(p.Holdings))
	copy(holdings, p.Holdings)
	out := New(holdings, p.Skipped)
	if p.SkippedRows > out.SkippedRows {
		out.SkippedRows = p.SkippedRows
	}
	return out
}

// IsEmpty reports whether the portfolio has no holdings
func (p *Portfolio) IsEmpty() bool {
	return p == nil || len(p.Holdings) == 0
}

// TopHoldings returns up to n holdings ordered by value descending, ties by identifier
func (p *Portfolio) TopHoldings(n int) []Holding {
	if p == nil {
		return nil
	}
	sorted := make([]Holding, len(p.Holdings))
	copy(sorted, p.Holdings)
	sort.SliceStable(sorted, func(i, j int) bool {
		cmp := sorted[i].CurrentValue.Cmp(sorted[j].CurrentValue)
		if cmp != 0 {
			return cmp > 0
		}
		return sorted[i].Identifier < sorted[j].Identifier
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// AllocationBreakdown maps a category to its share of total value, in percent
type AllocationBreakdown map[Category]float64

// SectorBreakdown maps a sector label to its share of equity value, in percent
type SectorBreakdown map[string]float64

// SortedKeys returns the allocation categories in reporting order
func (a AllocationBreakdown) SortedKeys() []Category {
	keys := make([]Category, 0, len(a))
	for _, c := range Categories {
		if _, ok := a[c]; ok {
			keys = append(keys, c)
		}
	}
	return keys
}

// SortedKeys returns sector labels alphabetically
func (s SectorBreakdown) SortedKeys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sentiment is the overall market mood
type Sentiment string

const (
	SentimentBullish Sentiment = "Bullish"
	SentimentBearish Sentiment = "Bearish"
	SentimentNeutral Sentiment = "Neutral"
)

// MarketOutlook is the compact market summary consumed by the advisor
type MarketOutlook struct {
	Sentiment Sentiment `json:"sentiment"`
	Watch     []string  `json:"watch"`
}

// NeutralOutlook is the deterministic outlook used when market data is unavailable
func NeutralOutlook() MarketOutlook {
	return MarketOutlook{Sentiment: SentimentNeutral, Watch: []string{}}
}

// RiskCategory is the questionnaire outcome
type RiskCategory string

const (
	RiskConservative RiskCategory = "conservative"
	RiskModerate     RiskCategory = "moderate"
	RiskAggressive   RiskCategory = "aggressive"
)

// RiskProfile is the scored questionnaire
type RiskProfile struct {
	Category RiskCategory `json:"category"`
	Score    int          `json:"score"`
}

// RecommendationSource tells which stage produced a recommendation
type RecommendationSource string

const (
	SourceAnalyzer RecommendationSource = "analyzer"
	SourceAdvisor  RecommendationSource = "advisor"
	SourceFallback RecommendationSource = "fallback"
)

// Recommendation is a single goal with its reasoning
type Recommendation struct {
	Goal      string               `json:"goal"`
	Rationale string               `json:"rationale"`
	Action    string               `json:"action,omitempty"`
	Source    RecommendationSource `json:"source"`
}
