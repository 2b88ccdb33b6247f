package sources

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	reNumber  = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	reHours   = regexp.MustCompile(`(?i)(\d+)\s*(?:hrs?|hours?|std|stunden?|h)\b`)
	reMinutes = regexp.MustCompile(`(?i)(\d+)\s*(?:mins?|minutes?|minuten|m)\b`)
	reYear    = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`)
	reShortUS = regexp.MustCompile(`^\d{1,2}-\d{1,2}-(\d{2})$`)
)

// ParseRating reads a rating on the 0.1–5.0 scale. Commas are decimal
// separators. Out-of-range or unparsable values return nil.
func ParseRating(value string) *float64 {
	match := reNumber.FindString(strings.TrimSpace(value))
	if match == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
	if err != nil || f < 0.1 || f > 5.0 {
		return nil
	}
	return &f
}

// ParseCount reads a rating count, ignoring thousands separators.
// Returns nil when no digits are present.
func ParseCount(value string) *int {
	var digits strings.Builder
	started := false
scan:
	for _, r := range value {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
			started = true
		case started && isGroupSeparator(r):
		case started:
			break scan
		}
	}
	if digits.Len() == 0 {
		return nil
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return nil
	}
	return &n
}

func isGroupSeparator(r rune) bool {
	switch r {
	case '.', ',', ' ', '\u00a0', '\u202f', '\'':
		return true
	default:
		return false
	}
}

// ParseRuntime converts runtime labels such as "7 hrs and 5 mins" or
// "7 Std. 5 Min." to seconds. Returns 0 when nothing matches.
func ParseRuntime(label string) int {
	seconds := 0
	if m := reHours.FindStringSubmatch(label); m != nil {
		h, _ := strconv.Atoi(m[1])
		seconds += h * 3600
	}
	if m := reMinutes.FindStringSubmatch(label); m != nil {
		mins, _ := strconv.Atoi(m[1])
		seconds += mins * 60
	}
	return seconds
}

// ParseYear extracts a four digit year from dates such as "2019-04-02",
// "02.04.2019", or the US short form "04-02-19".
func ParseYear(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if m := reYear.FindString(value); m != "" {
		return m
	}
	if m := reShortUS.FindStringSubmatch(value); m != nil {
		yy, _ := strconv.Atoi(m[1])
		century := 2000
		if yy > time.Now().Year()%100+1 {
			century = 1900
		}
		return strconv.Itoa(century + yy)
	}
	return ""
}

// NormalizeISBN strips separators and validates the ISBN-10 or ISBN-13
// checksum.
func NormalizeISBN(value string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.ToUpper(value) {
		if unicode.IsDigit(r) || r == 'X' {
			b.WriteRune(r)
		}
	}
	isbn := b.String()
	switch len(isbn) {
	case 10:
		sum := 0
		for i, r := range isbn {
			var d int
			switch {
			case r == 'X' && i == 9:
				d = 10
			case r >= '0' && r <= '9':
				d = int(r - '0')
			default:
				return "", false
			}
			sum += d * (10 - i)
		}
		return isbn, sum%11 == 0
	case 13:
		sum := 0
		for i, r := range isbn {
			if r < '0' || r > '9' {
				return "", false
			}
			d := int(r - '0')
			if i%2 == 1 {
				d *= 3
			}
			sum += d
		}
		return isbn, sum%10 == 0
	default:
		return "", false
	}
}

// IsASIN reports whether value looks like an Audible ASIN.
func IsASIN(value string) bool {
	if len(value) != 10 {
		return false
	}
	for _, r := range value {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// CleanText collapses whitespace in scraped text.
func CleanText(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
