package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnparsableReply is returned when a collaborator reply holds no JSON
// object.
var ErrUnparsableReply = errors.New("collaborator reply holds no JSON object")

// intentAliases maps the labels collaborators answer with to Kind.
var intentAliases = map[string]Kind{
	"QUERY_BALANCE":  KindQueryBalance,
	"QUERY_TUITION":  KindQueryBalance,
	"PAY":            KindPay,
	"PAY_TUITION":    KindPay,
	"LIST_UNPAID":    KindListUnpaid,
	"UNPAID_TUITION": KindListUnpaid,
	"UNKNOWN":        KindUnknown,
}

// ParseReply decodes the first JSON object embedded in a collaborator reply.
// Models wrap their JSON in prose or code fences, so every '{' is tried as a
// starting point. Missing or unrecognized fields become absent values.
func ParseReply(reply, text string) (Result, error) {
	fields, err := firstObject(reply)
	if err != nil {
		return Result{}, err
	}

	res := Result{Intent: KindUnknown, RawText: text}
	if s, ok := stringField(fields["intent"]); ok {
		if k, known := intentAliases[strings.ToUpper(s)]; known {
			res.Intent = k
		}
	}
	if s, ok := stringField(fields["studentNo"]); ok {
		res.SubjectID = s
	}
	if s, ok := stringField(fields["term"]); ok {
		res.Term = strings.ToUpper(s)
	}
	if d, ok := amountField(fields["amount"]); ok {
		res.Amount = decimal.NewNullDecimal(d)
	}
	return res, nil
}

func firstObject(reply string) (map[string]any, error) {
	for i := strings.IndexByte(reply, '{'); i >= 0; {
		dec := json.NewDecoder(strings.NewReader(reply[i:]))
		dec.UseNumber()
		var fields map[string]any
		if err := dec.Decode(&fields); err == nil {
			return fields, nil
		}
		next := strings.IndexByte(reply[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, fmt.Errorf("%w: %.80q", ErrUnparsableReply, reply)
}

// stringField accepts strings and numbers. Blank values and the literal
// "null" are absent.
func stringField(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case json.Number:
		s = t.String()
	default:
		return "", false
	}
	if s == "" || strings.EqualFold(s, "null") {
		return "", false
	}
	return s, true
}

func amountField(v any) (decimal.Decimal, bool) {
	s, ok := stringField(v)
	if !ok {
		return decimal.Zero, false
	}
	return positiveDecimal(s)
}
