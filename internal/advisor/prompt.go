// Package advisor turns the analyzed portfolio, market outlook and risk
// profile into ranked recommendations through a reasoning call.
package advisor

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/finadvisor/internal/portfolio"
)

// MaxPromptHoldings bounds how many holdings are listed in the prompt
const MaxPromptHoldings = 10

// Input is everything the advisor reasons over
type Input struct {
	Portfolio  *portfolio.Portfolio
	Allocation portfolio.AllocationBreakdown
	Sectors    portfolio.SectorBreakdown
	Outlook    portfolio.MarketOutlook
	Risk       portfolio.RiskProfile
}

// SystemPrompt frames the reasoning call
const SystemPrompt = `You are a certified financial advisor for Indian retail investors.
You receive a summarized portfolio, its asset allocation and equity sector split,
the current market outlook and the investor's risk profile.

Produce specific, actionable recommendations ordered from most to least important.
Never invent holdings that are not listed.

Respond with JSON only, in exactly this format:
{
  "recommendations": [
    {"goal": "short goal", "rationale": "why it matters for this investor", "action": "concrete next step"}
  ]
}`

// BuildPrompt renders the user prompt. Holdings are ordered by value then
// identifier, map keys are sorted and floats use fixed precision, so the
// same input always yields the same bytes.
func BuildPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("Generate personalized financial recommendations for this investor.\n\n")

	b.WriteString("PORTFOLIO:\n")
	total := "0.00"
	count := 0
	if in.Portfolio != nil {
		total = in.Portfolio.TotalValue.StringFixed(2)
		count = len(in.Portfolio.Holdings)
	}
	fmt.Fprintf(&b, "- Total Value: %s\n", total)
	fmt.Fprintf(&b, "- Holdings: %d\n", count)
	b.WriteString(formatHoldings(in.Portfolio.TopHoldings(MaxPromptHoldings)))

	b.WriteString("\nASSET ALLOCATION:\n")
	b.WriteString(formatAllocation(in.Allocation))

	b.WriteString("\nEQUITY SECTORS:\n")
	b.WriteString(formatSectors(in.Sectors))

	b.WriteString("\nMARKET OUTLOOK:\n")
	sentiment := in.Outlook.Sentiment
	if sentiment == "" {
		sentiment = portfolio.SentimentNeutral
	}
	fmt.Fprintf(&b, "- Sentiment: %s\n", sentiment)
	if len(in.Outlook.Watch) == 0 {
		b.WriteString("- Watch: none\n")
	} else {
		fmt.Fprintf(&b, "- Watch: %s\n", strings.Join(in.Outlook.Watch, ", "))
	}

	b.WriteString("\nRISK PROFILE:\n")
	fmt.Fprintf(&b, "- Category: %s\n", in.Risk.Category)
	fmt.Fprintf(&b, "- Score: %d\n", in.Risk.Score)

	return b.String()
}

func formatHoldings(holdings []portfolio.Holding) string {
	if len(holdings) == 0 {
		return "  No holdings\n"
	}

	var b strings.Builder
	for i, h := range holdings {
		name := h.Name
		if name == "" {
			name = h.Identifier
		}
		fmt.Fprintf(&b, "  %d. %s (%s, %s): units %s, value %s\n",
			i+1, name, h.Identifier, h.Category, h.Units.StringFixed(3), h.CurrentValue.StringFixed(2))
	}
	return b.String()
}

func formatAllocation(allocation portfolio.AllocationBreakdown) string {
	if len(allocation) == 0 {
		return "  No allocation available\n"
	}

	var b strings.Builder
	for _, c := range allocation.SortedKeys() {
		fmt.Fprintf(&b, "  %s: %.2f%%\n", c, allocation[c])
	}
	return b.String()
}

func formatSectors(sectors portfolio.SectorBreakdown) string {
	if len(sectors) == 0 {
		return "  No equity holdings\n"
	}

	var b strings.Builder
	for _, name := range sectors.SortedKeys() {
		fmt.Fprintf(&b, "  %s: %.2f%%\n", name, sectors[name])
	}
	return b.String()
}
