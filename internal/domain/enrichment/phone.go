package enrichment

import "strings"

// NormalizePhone canonicalizes German, Austrian and Swiss phone
// numbers: non-digits are stripped (keeping a leading +), the 00
// international prefix becomes +, a bare national 0 prefix is assumed
// German, and the known country codes get canonical spacing. Anything
// else is returned digit-stripped but otherwise unchanged. The function
// is idempotent.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + cleaned[2:]
	}
	if strings.HasPrefix(cleaned, "0") {
		// No country code: assume Germany.
		cleaned = "+49" + cleaned[1:]
	}

	switch {
	case strings.HasPrefix(cleaned, "+49") && len(cleaned) >= 12:
		// +49 xxx xxxxxxx
		return cleaned[:3] + " " + cleaned[3:6] + " " + cleaned[6:]
	case strings.HasPrefix(cleaned, "+43") && len(cleaned) >= 11:
		return cleaned[:3] + " " + cleaned[3:]
	case strings.HasPrefix(cleaned, "+41") && len(cleaned) >= 11:
		return cleaned[:3] + " " + cleaned[3:]
	}
	return cleaned
}
