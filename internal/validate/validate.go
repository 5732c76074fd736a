package validate

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// library card / staff number: one letter then 4-8 digits
	reCode   = regexp.MustCompile(`^[A-Z][0-9]{4,8}$`)
	reEmail  = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	reQ      = regexp.MustCompile(`^[\p{L}0-9 _'.&:-]{1,50}$`)
	reID     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reStatus = regexp.MustCompile(`^(ACTIVE|RETURNED|OVERDUE)$`)
)

// Code validates a reader card code as typed at the desk (case-folded).
func Code(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) == 0 || len(s) > 9 {
		return "", false
	}
	return s, reCode.MatchString(s)
}

func Email(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 50 {
		return "", false
	}
	return s, reEmail.MatchString(s)
}

// Keyword validates a listing search term; empty is allowed and means "no filter".
func Keyword(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	if len(s) > 50 {
		s = s[:50]
	}
	return s, reQ.MatchString(s)
}

// Total parses a book's owned copy count.
func Total(n int) (int, bool) {
	return n, n >= 0 && n <= 10000
}

// Fine validates a fine amount; nil means no fine.
func Fine(f *float64) bool {
	if f == nil {
		return true
	}
	return !math.IsNaN(*f) && !math.IsInf(*f, 0) && *f >= 0 && *f <= 100000
}

// Page parses a 1-based page number, defaulting to 1.
func Page(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// ID validates a resource identifier (book, record, user ids).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// Status validates a loan status filter; empty means all.
func Status(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	return s, s == "" || reStatus.MatchString(s)
}

// Password enforces a simple length window for login checks.
func Password(s string) bool {
	l := len(s)
	if l < 8 || l > 20 {
		return false
	}
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range s {
		switch {
		case 'a' <= r && r <= 'z':
			hasLower = true
		case 'A' <= r && r <= 'Z':
			hasUpper = true
		case '0' <= r && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	return hasLower && hasUpper && hasDigit && hasSymbol
}
