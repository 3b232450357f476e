package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	studentPhrasePattern = regexp.MustCompile(`(?i)\bstudent\s*(?:no|number|id)?\.?\s*[:#]?\s*(\d{4,8})\b`)
	longNumberPattern    = regexp.MustCompile(`\b\d{6,8}\b`)

	explicitAmountPattern = regexp.MustCompile(`(?i)\b(?:pay|paying|payment|amount)\s+(?:of\s+)?(?:[$€₺]\s*|(?:tl|try|usd|eur)\s+)?(\d+(?:\.\d+)?)`)
	currencyPrefixPattern = regexp.MustCompile(`[$€₺]\s*(\d+(?:\.\d+)?)`)
	currencySuffixPattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:tl|try|usd|eur|lira|dollars)\b`)
)

// Years a bare 4-7 digit run is not taken as a subject number.
const (
	plausibleYearMin = 2020
	plausibleYearMax = 2030
)

// FallbackClassify extracts a classification with regular expressions
// only. It backs the cache whenever the collaborator cannot be used.
func FallbackClassify(text string) Result {
	if strings.TrimSpace(text) == "" {
		return unknown(text)
	}

	res := Result{RawText: text}
	switch bucket(normalize(text)) {
	case bucketPay:
		res.Intent = KindPay
	case bucketUnpaid:
		res.Intent = KindListUnpaid
	default:
		res.Intent = KindQueryBalance
	}

	// The year inside a term must not be read as a subject number or an
	// amount, so both are searched with every term removed.
	stripped := text
	if term := termPattern.FindString(text); term != "" {
		res.Term = strings.ToUpper(term)
		stripped = termPattern.ReplaceAllString(text, " ")
	}

	res.SubjectID = extractSubject(stripped)
	if amount, ok := extractAmount(stripped, res.SubjectID); ok {
		res.Amount = decimal.NewNullDecimal(amount)
	}
	return res
}

func extractSubject(text string) string {
	if m := studentPhrasePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := longNumberPattern.FindString(text); m != "" {
		return m
	}
	for _, m := range subjectTokenPattern.FindAllString(text, -1) {
		if !isPlausibleYear(m) {
			return m
		}
	}
	return ""
}

func isPlausibleYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= plausibleYearMin && n <= plausibleYearMax
}

// extractAmount prefers "pay 500" style phrases over currency-marked
// numbers. A phrase whose number is the subject itself is skipped.
func extractAmount(text, subject string) (decimal.Decimal, bool) {
	for _, m := range explicitAmountPattern.FindAllStringSubmatch(text, -1) {
		if m[1] == subject {
			continue
		}
		if d, ok := positiveDecimal(m[1]); ok {
			return d, true
		}
	}
	for _, p := range []*regexp.Regexp{currencyPrefixPattern, currencySuffixPattern} {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			if d, ok := positiveDecimal(m[1]); ok {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

func positiveDecimal(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}
