package models

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	dotThousands   = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
	commaThousands = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)
)

// ParseAmount parses money written as "119.000", "1.234,56", "1,234.56", "$ 18000" or "18000.5".
// A lone separator followed by exactly three digit groups is read as thousands.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "CLP")
	s = strings.NewReplacer("$", "", " ", "", "\u00a0", "").Replace(s)
	if s == "" {
		return decimal.Zero, false
	}

	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if dotThousands.MatchString(s) {
			s = strings.ReplaceAll(s, ".", "")
		}
	case lastComma >= 0:
		if commaThousands.MatchString(s) {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// AmountFromJSON converts a decoded JSON value (number or string) into a decimal.
// The boolean is false when the value is absent or unparseable.
func AmountFromJSON(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case json.Number:
		d, err := decimal.NewFromString(string(val))
		if err != nil {
			return ParseAmount(string(val))
		}
		return d, true
	case string:
		return ParseAmount(val)
	default:
		return decimal.Zero, false
	}
}

