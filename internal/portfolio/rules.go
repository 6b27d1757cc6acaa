package portfolio

import (
	"fmt"
	"strings"
)

// RuleInput is everything a rule may inspect. Rules must not mutate it.
type RuleInput struct {
	Portfolio  *Portfolio
	Allocation AllocationBreakdown
	Sectors    SectorBreakdown
	Thresholds Thresholds
}

// Rule is a named predicate/action pair. Then may return several
// recommendations when more than one key triggers.
type Rule struct {
	Name string
	When func(in RuleInput) bool
	Then func(in RuleInput) []string
}

// Rule names
const (
	RuleCategoryConcentration = "category_concentration"
	RuleSectorConcentration   = "sector_concentration"
	RuleSingleHolding         = "single_holding"
	RuleMissingDebt           = "missing_debt"
	RuleNoHoldings            = "no_holdings"
)

// DefaultRules returns the built-in rules in evaluation order
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: RuleCategoryConcentration,
			When: hasHoldings,
			Then: categoryConcentration,
		},
		{
			Name: RuleSectorConcentration,
			When: hasHoldings,
			Then: sectorConcentration,
		},
		{
			Name: RuleSingleHolding,
			When: hasHoldings,
			Then: singleHoldingConcentration,
		},
		{
			Name: RuleMissingDebt,
			When: func(in RuleInput) bool {
				return hasHoldings(in) && in.Portfolio.TotalValue.Sign() > 0
			},
			Then: missingDebt,
		},
		{
			Name: RuleNoHoldings,
			When: func(in RuleInput) bool { return in.Portfolio.IsEmpty() },
			Then: func(RuleInput) []string {
				return []string{"No holdings found in the statement; upload a statement that lists your positions to get recommendations."}
			},
		},
	}
}

func hasHoldings(in RuleInput) bool {
	return !in.Portfolio.IsEmpty()
}

func categoryConcentration(in RuleInput) []string {
	var out []string
	for _, cat := range in.Allocation.SortedKeys() {
		pct := in.Allocation[cat]
		if pct > in.Thresholds.CategoryConcentrationPct {
			out = append(out, fmt.Sprintf(
				"Your portfolio is %.1f%% %s, above the %.0f%% concentration limit; diversify into other asset classes.",
				pct, categoryLabel(cat), in.Thresholds.CategoryConcentrationPct))
		}
	}
	return out
}

func sectorConcentration(in RuleInput) []string {
	var out []string
	for _, sector := range in.Sectors.SortedKeys() {
		if sector == UnknownSector {
			continue
		}
		pct := in.Sectors[sector]
		if pct > in.Thresholds.SectorConcentrationPct {
			out = append(out, fmt.Sprintf(
				"%.1f%% of your equity is in the %s sector, above the %.0f%% limit; spread equity across more sectors.",
				pct, sector, in.Thresholds.SectorConcentrationPct))
		}
	}
	return out
}

func singleHoldingConcentration(in RuleInput) []string {
	var out []string
	seen := make(map[string]bool)
	for _, h := range in.Portfolio.Holdings {
		pct := HoldingShare(in.Portfolio, h)
		if pct <= in.Thresholds.SingleHoldingPct || seen[h.Identifier] {
			continue
		}
		seen[h.Identifier] = true
		out = append(out, fmt.Sprintf(
			"%s makes up %.1f%% of your portfolio, above the %.0f%% single-holding limit; consider trimming it.",
			holdingLabel(h), pct, in.Thresholds.SingleHoldingPct))
	}
	return out
}

func missingDebt(in RuleInput) []string {
	pct := in.Allocation[CategoryDebt]
	if pct >= in.Thresholds.MinDebtPct {
		return nil
	}
	return []string{fmt.Sprintf(
		"Debt is only %.1f%% of your portfolio; add debt instruments to reach at least %.0f%% for stability.",
		pct, in.Thresholds.MinDebtPct)}
}

func categoryLabel(c Category) string {
	return strings.ReplaceAll(string(c), "_", " ")
}

func holdingLabel(h Holding) string {
	if h.Name != "" && !strings.EqualFold(h.Name, h.Identifier) {
		return fmt.Sprintf("%s (%s)", h.Name, h.Identifier)
	}
	return h.Identifier
}
