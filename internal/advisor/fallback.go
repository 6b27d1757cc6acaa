package advisor

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/finadvisor/internal/portfolio"
)

// Equity bands considered suitable for each risk category, in percent
var equityBands = map[portfolio.RiskCategory][2]float64{
	portfolio.RiskConservative: {0, 40},
	portfolio.RiskModerate:     {30, 70},
	portfolio.RiskAggressive:   {60, 100},
}

// DefaultRecommendations derives a fixed set of recommendations from the
// input without any external call. The result is never empty.
func DefaultRecommendations(in Input) []portfolio.Recommendation {
	return []portfolio.Recommendation{
		allocationFit(in),
		watchListTracking(in.Outlook),
		{
			Goal:      "Review your portfolio periodically",
			Rationale: "Allocations drift as markets move and goals change.",
			Action:    "Rebalance at least once every six months.",
			Source:    portfolio.SourceFallback,
		},
	}
}

func allocationFit(in Input) portfolio.Recommendation {
	equity := in.Allocation[portfolio.CategoryEquity] + in.Allocation[portfolio.CategoryMutualFund]
	band, ok := equityBands[in.Risk.Category]
	if !ok {
		band = equityBands[portfolio.RiskModerate]
	}
	category := in.Risk.Category
	if category == "" {
		category = portfolio.RiskModerate
	}

	switch {
	case in.Portfolio.IsEmpty():
		return portfolio.Recommendation{
			Goal:      "Start building a diversified portfolio",
			Rationale: fmt.Sprintf("No holdings were found; a %s investor typically holds %.0f-%.0f%% in growth assets.", category, band[0], band[1]),
			Action:    "Begin with a diversified index fund and a short-term debt fund.",
			Source:    portfolio.SourceFallback,
		}
	case equity > band[1]:
		return portfolio.Recommendation{
			Goal:      "Reduce growth asset exposure",
			Rationale: fmt.Sprintf("Equity and equity funds make up %.1f%% of the portfolio, above the %.0f%% suited to a %s profile.", equity, band[1], category),
			Action:    "Shift new investments toward debt until the allocation is back within range.",
			Source:    portfolio.SourceFallback,
		}
	case equity < band[0]:
		return portfolio.Recommendation{
			Goal:      "Increase growth asset exposure",
			Rationale: fmt.Sprintf("Equity and equity funds make up %.1f%% of the portfolio, below the %.0f%% suited to a %s profile.", equity, band[0], category),
			Action:    "Start a systematic investment plan in a diversified equity fund.",
			Source:    portfolio.SourceFallback,
		}
	default:
		return portfolio.Recommendation{
			Goal:      "Maintain your current allocation",
			Rationale: fmt.Sprintf("Growth assets at %.1f%% fit a %s profile.", equity, category),
			Source:    portfolio.SourceFallback,
		}
	}
}

func watchListTracking(outlook portfolio.MarketOutlook) portfolio.Recommendation {
	if len(outlook.Watch) == 0 {
		return portfolio.Recommendation{
			Goal:      "Monitor market conditions",
			Rationale: "No sector is moving sharply right now.",
			Action:    "Check sector performance monthly.",
			Source:    portfolio.SourceFallback,
		}
	}
	return portfolio.Recommendation{
		Goal:      "Track volatile sectors",
		Rationale: fmt.Sprintf("These sectors are moving sharply: %s.", strings.Join(outlook.Watch, ", ")),
		Action:    "Review holdings in these sectors before adding to them.",
		Source:    portfolio.SourceFallback,
	}
}
