package extractor

import (
	"strings"

	"github.com/ajitpratap0/finadvisor/internal/portfolio"
)

// sectionVocabulary is checked in order; more specific categories come first
// so "Equity Mutual Fund" classifies as a mutual fund.
var sectionVocabulary = []struct {
	category portfolio.Category
	keywords []string
}{
	{portfolio.CategoryMutualFund, []string{"mutual fund", "mf folio", "scheme"}},
	{portfolio.CategoryDebt, []string{"bond", "debenture", "debt", "government securities", "g-sec"}},
	{portfolio.CategoryEquity, []string{"equity", "equities", "shares", "demat"}},
}

// classifySection maps a section title to a category
func classifySection(title string) (portfolio.Category, bool) {
	lower := strings.ToLower(title)
	for _, entry := range sectionVocabulary {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.category, true
			}
		}
	}
	return "", false
}

// column roles found in a header row
type columnRole int

const (
	roleNone columnRole = iota
	roleIdentifier
	roleName
	roleUnits
	roleValue
	rolePrice
)

// columns records where each field sits in a table; -1 means absent
type columns struct {
	identifier int
	name       int
	units      int
	value      int
}

func noColumns() columns {
	return columns{identifier: -1, name: -1, units: -1, value: -1}
}

func classifyColumn(cell string) columnRole {
	c := strings.ToLower(strings.TrimSpace(cell))
	switch {
	case c == "":
		return roleNone
	case strings.Contains(c, "isin"), c == "symbol", c == "ticker", strings.Contains(c, "scrip"):
		return roleIdentifier
	case strings.Contains(c, "cost"), strings.Contains(c, "invested"), strings.Contains(c, "purchase"):
		return roleNone
	case strings.Contains(c, "value"), strings.Contains(c, "valuation"):
		return roleValue
	case c == "nav", strings.HasPrefix(c, "nav "), strings.Contains(c, "price"), c == "rate":
		return rolePrice
	case strings.Contains(c, "units"), strings.Contains(c, "quantity"), c == "qty", strings.HasPrefix(c, "qty"),
		strings.Contains(c, "no. of shares"), strings.Contains(c, "balance"):
		return roleUnits
	case strings.Contains(c, "name"), strings.Contains(c, "description"), strings.Contains(c, "security"),
		strings.Contains(c, "scheme"), strings.Contains(c, "company"):
		return roleName
	}
	return roleNone
}

// detectHeader recognizes a column header row. It needs a value column plus
// at least one of identifier or units, and no numeric cells.
func detectHeader(cells []string) (columns, bool) {
	if len(cells) < 2 {
		return columns{}, false
	}
	cols := noColumns()
	for i, cell := range cells {
		if IsNumeric(cell) {
			return columns{}, false
		}
		switch classifyColumn(cell) {
		case roleIdentifier:
			if cols.identifier < 0 {
				cols.identifier = i
			}
		case roleName:
			if cols.name < 0 {
				cols.name = i
			}
		case roleUnits:
			if cols.units < 0 {
				cols.units = i
			}
		case roleValue:
			// the right-most value column is the current one
			cols.value = i
		}
	}
	if cols.value < 0 || (cols.identifier < 0 && cols.units < 0) {
		return columns{}, false
	}
	return cols, true
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

var subtotalPrefixes = []string{"total", "grand total", "sub total", "sub-total", "subtotal"}

// isSubtotal reports a Total/Grand Total/Sub Total row
func isSubtotal(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(cells[0]))
	for _, prefix := range subtotalPrefixes {
		if !strings.HasPrefix(first, prefix) {
			continue
		}
		rest := first[len(prefix):]
		// "TotalEnergies" is a holding, "Total:" and "Total Equity" are not
		if rest == "" || !isLetter(rest[0]) {
			return true
		}
	}
	return false
}
