package whatsapp

import "strings"

// NormalizePhone reduces a raw phone number to a canonical digit string.
// Formatting characters are stripped; a leading international 00 prefix is
// dropped; numbers written in national form (leading zero, or short with
// no country code) get defaultCountryCode prefixed. Pure function, no I/O.
func NormalizePhone(raw, defaultCountryCode string) string {
	hasPlus := strings.HasPrefix(strings.TrimSpace(raw), "+")

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	number := digits.String()
	if number == "" {
		return ""
	}

	if hasPlus {
		return number
	}
	if strings.HasPrefix(number, "00") {
		return number[2:]
	}
	if strings.HasPrefix(number, "0") {
		return defaultCountryCode + number[1:]
	}
	// Ten digits or fewer without an explicit country marker is treated
	// as a national number for the default region.
	if len(number) <= 10 && !strings.HasPrefix(number, defaultCountryCode) {
		return defaultCountryCode + number
	}
	return number
}
