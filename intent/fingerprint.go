package intent

import (
	"regexp"
	"strings"
)

// =============================================================================
// SHARED VOCABULARY
// =============================================================================

var (
	payTokens    = []string{"pay", "payment", "ödeme", "öde"}
	unpaidTokens = []string{"unpaid", "outstanding", "ödenmemiş", "borç"}

	subjectTokenPattern = regexp.MustCompile(`\b\d{4,7}\b`)
	termPattern         = regexp.MustCompile(`(?i)\b\d{4}-(spring|summer|fall|winter|spr|sum|fal|win)\b`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

const (
	bucketPay    = "pay"
	bucketUnpaid = "unpaid"
	bucketQuery  = "query"
)

// =============================================================================
// FINGERPRINT
// =============================================================================

// Fingerprint derives the cache key of text as bucket:subject:term.
// Messages that agree on all three collapse to the same key, so
// "Check balance for 2023001" and "balance check 2023001 please" share an
// entry. It never fails.
func Fingerprint(text string) string {
	norm := normalize(text)
	return bucket(norm) + ":" + subjectTokenPattern.FindString(norm) + ":" + termPattern.FindString(norm)
}

func normalize(text string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(strings.ToLower(text), " "))
}

// bucket checks payment tokens before unpaid tokens. Substring matching
// means "ödenmemiş" lands in the pay bucket through "öde".
func bucket(lower string) string {
	if containsAny(lower, payTokens) {
		return bucketPay
	}
	if containsAny(lower, unpaidTokens) {
		return bucketUnpaid
	}
	return bucketQuery
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
