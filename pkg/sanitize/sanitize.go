// Package sanitize cleans handset input and provides the pattern checks shared by the
// built-in validators.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxInputLength is the longest input, in characters, a USSD answer may carry.
const MaxInputLength = 160

// Input strips ASCII control characters (0x00-0x1F and 0x7F), drops invalid UTF-8,
// trims surrounding whitespace and truncates to MaxInputLength characters.
// truncated reports whether characters were cut off.
func Input(raw string) (clean string, truncated bool) {
	if !utf8.ValidString(raw) {
		raw = strings.ToValidUTF8(raw, "")
	}

	// Fast path: nothing to strip.
	if strings.IndexFunc(raw, isControl) >= 0 {
		var b strings.Builder
		b.Grow(len(raw))
		for _, r := range raw {
			if !isControl(r) {
				b.WriteRune(r)
			}
		}
		raw = b.String()
	}

	clean = strings.TrimSpace(raw)
	if utf8.RuneCountInString(clean) <= MaxInputLength {
		return clean, false
	}
	runes := []rune(clean)
	return string(runes[:MaxInputLength]), true
}

func isControl(r rune) bool {
	return r <= 0x1F || r == 0x7F
}

var (
	numeric      = regexp.MustCompile(`^[0-9]+$`)
	alphanumeric = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	phoneNumber  = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	moneyAmount  = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)
	pin          = regexp.MustCompile(`^[0-9]{4}$`)
)

// IsNumeric reports whether s contains only digits.
func IsNumeric(s string) bool { return numeric.MatchString(s) }

// IsAlphanumeric reports whether s contains only ASCII letters and digits.
func IsAlphanumeric(s string) bool { return alphanumeric.MatchString(s) }

// IsPhoneNumber accepts 10 to 15 digits with an optional leading plus sign.
func IsPhoneNumber(s string) bool { return phoneNumber.MatchString(s) }

// IsMoneyAmount accepts whole numbers or numbers with one or two decimals.
func IsMoneyAmount(s string) bool { return moneyAmount.MatchString(s) }

// IsPIN accepts exactly four digits.
func IsPIN(s string) bool { return pin.MatchString(s) }

// Match reports whether the whole of s matches pattern.
// An invalid pattern never matches.
func Match(s, pattern string) bool {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
