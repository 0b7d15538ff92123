package reminder

import (
	"regexp"
	"strings"
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// NormalizePhone canonicalizes a destination into E.164 when it can tell how:
// ten digits get the default country code, longer numbers get a leading '+'.
// Anything else is returned trimmed but otherwise unchanged.
func NormalizePhone(raw, countryCode string) string {
	raw = strings.TrimSpace(raw)
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if cc == "" {
		cc = "1"
	}
	switch {
	case len(digits) == 10:
		return "+" + cc + digits
	case len(digits) > 10:
		return "+" + digits
	default:
		return raw
	}
}

func ValidatePhone(s string) bool { return e164.MatchString(s) }
