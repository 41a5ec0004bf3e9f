package resolver

import (
	"regexp"
	"strings"
)

// Operators type phone numbers with stray spaces and hyphens; registrations may
// store either the local form or the full international one. Normalization
// strips the noise and the shape gates below keep the phone index from being
// probed with arbitrary text.
var (
	localPhoneRe = regexp.MustCompile(`^[0-9]{8,11}$`)
	// International mobile form: +, country and area codes, then a subscriber
	// part whose leading digit is 9.
	e164MobileRe = regexp.MustCompile(`^\+[0-9]{2,4}9[0-9]{8,9}$`)
)

// NormalizePhone strips spaces and hyphens from a typed phone number.
func NormalizePhone(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r == ' ' || r == '-' || r == '(' || r == ')' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LooksLikePhone reports whether the normalized input has an accepted phone
// shape: a local number or an E.164 mobile number with a leading 9.
func LooksLikePhone(normalized string) bool {
	return localPhoneRe.MatchString(normalized) || e164MobileRe.MatchString(normalized)
}
