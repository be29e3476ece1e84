package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

// Money amounts must carry a currency marker on one side so that years,
// phone numbers and counts in the same sentence are not mistaken for amounts.
var (
	amountPrefixed = regexp.MustCompile(`(?i)(us\$|\$|€|£|\busd\s?|\beur\s?|\bgbp\s?)\s?(\d[\d,\.]*)(\s?(?:million|mil|mm|m|thousand|k|billion|bn)\b)?`)
	amountSuffixed = regexp.MustCompile(`(?i)\b(\d[\d,\.]*)(\s?(?:million|thousand|k|billion))?\s?(usd|eur|gbp|dollars|euros|pounds)\b`)
)

// ParseAmount extracts a min/max range and currency from free text. It
// returns zeros when no currency-marked amount is present. A single amount is
// treated as a maximum unless the text says "minimum" or "at least".
func ParseAmount(text string, defaultCurrency string) (float64, float64, string) {
	lower := strings.ToLower(text)
	currency := detectCurrency(lower, defaultCurrency)

	var amounts []float64
	for _, m := range amountPrefixed.FindAllStringSubmatch(text, -1) {
		if v, ok := parseNumber(m[2], m[3]); ok {
			amounts = append(amounts, v)
		}
	}
	for _, m := range amountSuffixed.FindAllStringSubmatch(text, -1) {
		if v, ok := parseNumber(m[1], m[2]); ok {
			amounts = append(amounts, v)
		}
	}

	if len(amounts) == 0 {
		return 0, 0, ""
	}

	if len(amounts) == 1 {
		if strings.Contains(lower, "minimum") || strings.Contains(lower, "at least") {
			return amounts[0], 0, currency
		}
		return 0, amounts[0], currency
	}

	min, max := amounts[0], amounts[0]
	for _, a := range amounts[1:] {
		if a < min {
			min = a
		}
		if a > max {
			max = a
		}
	}
	if min == max {
		return 0, max, currency
	}
	return min, max, currency
}

func detectCurrency(lower, def string) string {
	switch {
	case strings.Contains(lower, "£") || strings.Contains(lower, "gbp") || strings.Contains(lower, "pound"):
		return "GBP"
	case strings.Contains(lower, "€") || strings.Contains(lower, "eur"):
		return "EUR"
	case strings.Contains(lower, "$") || strings.Contains(lower, "usd") || strings.Contains(lower, "dollar"):
		return "USD"
	case def != "":
		return def
	default:
		return "USD"
	}
}

func parseNumber(num, scale string) (float64, bool) {
	num = strings.TrimRight(num, ".,")
	if num == "" {
		return 0, false
	}

	clean := num
	switch {
	case strings.Count(num, ",") > 0 && strings.Count(num, ".") == 0:
		// 1,000,000 vs 1,5 (decimal comma)
		if len(num)-strings.LastIndex(num, ",") == 4 {
			clean = strings.ReplaceAll(num, ",", "")
		} else {
			clean = strings.ReplaceAll(num, ",", ".")
		}
	case strings.Count(num, ".") > 1:
		// 1.000.000
		clean = strings.ReplaceAll(num, ".", "")
	case strings.Count(num, ",") > 0 && strings.Count(num, ".") == 1:
		if strings.LastIndex(num, ".") > strings.LastIndex(num, ",") {
			clean = strings.ReplaceAll(num, ",", "")
		} else {
			clean = strings.ReplaceAll(strings.ReplaceAll(num, ".", ""), ",", ".")
		}
	}

	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || v <= 0 {
		return 0, false
	}

	switch strings.ToLower(strings.TrimSpace(scale)) {
	case "k", "thousand":
		v *= 1_000
	case "m", "mm", "mil", "million":
		v *= 1_000_000
	case "bn", "billion":
		v *= 1_000_000_000
	}
	return v, true
}
