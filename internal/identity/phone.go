package identity

import (
	"strings"
)

// NormalizePhone canonicalizes a raw phone into E.164-ish form: strip
// whitespace and hyphens, then add a leading + for numbers already in
// international form, or prefix the default country code for bare
// national numbers. Webhook wa_ids arrive in international format
// without the plus, so a number starting with the country code digits
// at international length only gets the plus. Already-normalized input
// passes through unchanged, so normalizing twice is a no-op.
func NormalizePhone(raw, defaultCountryCode string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '(', ')':
			return -1
		}
		return r
	}, raw)

	if cleaned == "" || strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	if len(cleaned) < 6 || !isDigits(cleaned) || defaultCountryCode == "" {
		return cleaned
	}

	cc := strings.TrimPrefix(defaultCountryCode, "+")
	if cc != "" && strings.HasPrefix(cleaned, cc) && len(cleaned) >= len(cc)+9 {
		return "+" + cleaned
	}

	return defaultCountryCode + cleaned
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
