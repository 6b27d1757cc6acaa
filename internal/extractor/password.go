package extractor

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// PasswordRule derives the well-known default password from the account holder's identity
type PasswordRule string

const (
	// RulePAN uses the PAN in upper case
	RulePAN PasswordRule = "pan"
	// RulePANLower uses the PAN in lower case
	RulePANLower PasswordRule = "pan_lower"
	// RulePANDOB concatenates the upper-case PAN and the date of birth as DDMMYYYY
	RulePANDOB PasswordRule = "pan_dob"
	// RuleNone disables the default password attempt
	RuleNone PasswordRule = "none"
)

// ParsePasswordRule validates a configured rule name
func ParsePasswordRule(s string) (PasswordRule, error) {
	switch r := PasswordRule(strings.ToLower(strings.TrimSpace(s))); r {
	case RulePAN, RulePANLower, RulePANDOB, RuleNone:
		return r, nil
	case "":
		return RulePAN, nil
	default:
		return "", fmt.Errorf("unknown default password rule %q", s)
	}
}

// Identity is the account holder data a default password is derived from.
// It is never logged or persisted.
type Identity struct {
	PAN         string
	DateOfBirth string
}

// Derive returns the default password for id, or false when the rule
// cannot produce one.
func (r PasswordRule) Derive(id Identity) (string, bool) {
	pan := strings.TrimSpace(id.PAN)
	if pan == "" {
		return "", false
	}

	switch r {
	case RulePAN:
		return strings.ToUpper(pan), true
	case RulePANLower:
		return strings.ToLower(pan), true
	case RulePANDOB:
		dob, ok := normalizeDOB(id.DateOfBirth)
		if !ok {
			return "", false
		}
		return strings.ToUpper(pan) + dob, true
	default:
		return "", false
	}
}

var dobLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006", "02.01.2006"}

// normalizeDOB renders a date of birth as DDMMYYYY
func normalizeDOB(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02012006"), true
		}
	}
	if len(s) == 8 && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return s, true
	}
	return "", false
}

// candidatePasswords lists the credentials to try, in order. A supplied
// password is the only attempt; otherwise the derived default then the empty password.
func candidatePasswords(doc Document, rule PasswordRule) []string {
	if doc.Password != "" {
		return []string{doc.Password}
	}
	candidates := make([]string, 0, 2)
	if pw, ok := rule.Derive(doc.Identity); ok && pw != "" {
		candidates = append(candidates, pw)
	}
	return append(candidates, "")
}
