package extractor

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	errBlankAmount   = errors.New("blank amount")
	errInvalidAmount = errors.New("invalid amount")
)

// currencyMarks are stripped before parsing; longer marks first so "Rs." wins over "Rs"
var currencyMarks = []string{"INR", "RS.", "RS", "₹", "$", "€", "£"}

// ParseAmount parses a statement number: currency marks, spaces and
// Indian or Western digit grouping are tolerated, as is the European
// "1.234,56" form. "(123)" reads as -123. Dashes and blanks are rejected.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" || isDashes(s) {
		return decimal.Zero, errBlankAmount
	}

	s = stripCurrency(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	if s == "" || isDashes(s) {
		return decimal.Zero, errBlankAmount
	}

	for _, r := range s {
		if !unicode.IsDigit(r) && r != ',' && r != '.' {
			return decimal.Zero, errInvalidAmount
		}
	}

	d, err := decimal.NewFromString(canonicalDigits(s))
	if err != nil {
		return decimal.Zero, errInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// IsNumeric reports whether raw parses as an amount
func IsNumeric(raw string) bool {
	_, err := ParseAmount(raw)
	return err == nil
}

// canonicalDigits resolves grouping and decimal separators into "1234.56" form
func canonicalDigits(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		// 1,23,456.78 or 1,234.56
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || len(s)-lastComma-1 == 3 {
			return strings.ReplaceAll(s, ",", "")
		}
		// 12,5
		return strings.Replace(s, ",", ".", 1)
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		// 1.234.567
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

func stripCurrency(s string) string {
	for _, mark := range currencyMarks {
		for {
			idx := indexFold(s, mark)
			if idx < 0 {
				break
			}
			s = s[:idx] + s[idx+len(mark):]
		}
	}
	return s
}

func indexFold(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

func isDashes(s string) bool {
	for _, r := range s {
		if r != '-' && r != '–' && r != '—' {
			return false
		}
	}
	return true
}
