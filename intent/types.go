/*
Package intent turns free-text requests into structured classifications.

PURPOSE:
  A chat message like "I want to pay 500 for student 2023001 for 2025-SUMMER"
  becomes a ClassificationResult the request layer can dispatch on.

KEY CONCEPTS:
  - Fingerprint: A lossy key (bucket:subject:term) grouping similar messages
  - Cache: Memoizes classifications per fingerprint for a TTL
  - Collaborator: The external classifier consulted on a cache miss
  - Fallback: Deterministic rule extraction used when the collaborator
    fails, times out or replies with something unparsable

SEE ALSO:
  - fingerprint.go: Key derivation and the shared token patterns
  - cache.go: The cache and its miss path
  - fallback.go: Rule-based classifier
  - gemini/: HTTP collaborator
*/
package intent

import (
	"github.com/shopspring/decimal"
)

// Kind is the classified intent of a message.
type Kind string

const (
	KindQueryBalance Kind = "QUERY_BALANCE"
	KindPay          Kind = "PAY"
	KindListUnpaid   Kind = "LIST_UNPAID"
	KindUnknown      Kind = "UNKNOWN"
)

// Result is the outcome of classifying one message. It is treated as
// immutable once produced; the cache hands out copies.
type Result struct {
	Intent    Kind                `json:"intent"`
	SubjectID string              `json:"studentNo,omitempty"`
	Term      string              `json:"term,omitempty"`
	Amount    decimal.NullDecimal `json:"amount"`
	RawText   string              `json:"rawText"`
}

// HasSubject reports whether a subject number was extracted.
func (r Result) HasSubject() bool { return r.SubjectID != "" }

// HasTerm reports whether a term was extracted.
func (r Result) HasTerm() bool { return r.Term != "" }

// HasAmount reports whether a positive amount was extracted.
func (r Result) HasAmount() bool { return r.Amount.Valid && r.Amount.Decimal.IsPositive() }

func unknown(text string) Result {
	return Result{Intent: KindUnknown, RawText: text}
}
