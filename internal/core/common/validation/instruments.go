package validation

import (
	"regexp"
	"strings"
	"time"
)

// Structural checks for payment instruments. These are pure helpers: no
// network, no provider knowledge. Carrier classification lives with the
// payment validator because the prefix tables are provider business data.

var (
	cardNumberPattern = regexp.MustCompile(`^\d{13,19}$`)
	cvvPattern        = regexp.MustCompile(`^\d{3,4}$`)
	e164Pattern       = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	digitsPattern     = regexp.MustCompile(`^\d+$`)
)

// NormalizeCardNumber strips spaces and hyphens so formatted input like
// "4242 4242 4242 4242" validates the same as the bare digits.
func NormalizeCardNumber(number string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, number)
}

func CardNumberFormatOK(number string) bool {
	return cardNumberPattern.MatchString(number)
}

// PassesLuhn runs the standard mod-10 checksum over a digit string.
func PassesLuhn(number string) bool {
	if !digitsPattern.MatchString(number) {
		return false
	}
	var sum int
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ExpiryInFuture accepts a present-or-future (year, month) pair relative
// to now. Two-digit years are interpreted in the 2000s.
func ExpiryInFuture(month, year int, now time.Time) bool {
	if month < 1 || month > 12 {
		return false
	}
	if year < 100 {
		year += 2000
	}
	if year > now.Year()+50 {
		return false
	}
	if year != now.Year() {
		return year > now.Year()
	}
	return time.Month(month) >= now.Month()
}

func CVVFormatOK(cvv string) bool {
	return cvvPattern.MatchString(cvv)
}

// E164OK checks the +<country><subscriber> shape with at most 15 digits.
func E164OK(phone string) bool {
	return e164Pattern.MatchString(phone)
}

// AllDigits reports whether s is numeric and at least minLen long.
func AllDigits(s string, minLen int) bool {
	return len(s) >= minLen && digitsPattern.MatchString(s)
}
