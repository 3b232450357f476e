package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/intent"
	"github.com/warp/tuition-engine/tuition"
)

// chatPageSize bounds the unpaid list rendered in a chat reply.
const chatPageSize = 10

const helpReply = "I can check a tuition balance, pay tuition, or list unpaid tuition for a term. " +
	"Please include your student number, and the term (e.g. 2025-SUMMER) for payments."

// answer dispatches a classification to the tuition service and renders
// the outcome as text. Domain errors become part of the reply.
func (h *Handler) answer(ctx context.Context, res intent.Result) string {
	switch res.Intent {
	case intent.KindQueryBalance:
		return h.answerQuery(ctx, res)
	case intent.KindPay:
		return h.answerPay(ctx, res)
	case intent.KindListUnpaid:
		return h.answerUnpaid(ctx, res)
	default:
		return helpReply
	}
}

func (h *Handler) answerQuery(ctx context.Context, res intent.Result) string {
	if !res.HasSubject() {
		return "To check your tuition balance, I need your student number. Please provide it in your message."
	}
	status, err := h.Service.QueryTuition(ctx, tuition.SubjectID(res.SubjectID))
	if err != nil {
		return h.failureReply("I couldn't retrieve your tuition information", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tuition status for student %s:\n", status.SubjectID)
	fmt.Fprintf(&b, "Total tuition amount: %s\n", money(status.TotalAmount))
	fmt.Fprintf(&b, "Current balance: %s\n", money(status.Balance))
	if status.HasOutstanding() {
		b.WriteString("You have an outstanding balance. Would you like to make a payment?")
	} else {
		b.WriteString("You have no outstanding balance.")
	}
	return b.String()
}

func (h *Handler) answerPay(ctx context.Context, res intent.Result) string {
	switch {
	case !res.HasSubject():
		return "To process a payment, I need your student number. Please provide it."
	case !res.HasTerm():
		return "To process a payment, I need the term (e.g. 2025-SUMMER). Please provide it."
	case !res.HasAmount():
		return "To process a payment, I need the payment amount. Please specify how much you want to pay."
	}

	paid, err := h.Service.Pay(ctx, tuition.SubjectID(res.SubjectID), tuition.Term(res.Term), res.Amount.Decimal)
	if err != nil {
		return h.failureReply("I couldn't process your payment", err)
	}

	var b strings.Builder
	b.WriteString("Payment processed successfully!\n")
	fmt.Fprintf(&b, "Student: %s\n", paid.Entry.SubjectID)
	fmt.Fprintf(&b, "Term: %s\n", paid.Entry.Term)
	fmt.Fprintf(&b, "Amount paid: %s\n", money(paid.Entry.AmountRequested))
	if paid.Overpaid() {
		fmt.Fprintf(&b, "Note: %s exceeded the outstanding balance.\n", money(paid.Remaining))
	}
	fmt.Fprintf(&b, "Payment reference: %s", paid.Entry.ID)
	return b.String()
}

func (h *Handler) answerUnpaid(ctx context.Context, res intent.Result) string {
	if !res.HasTerm() {
		return "To view unpaid tuition, I need the term (e.g. 2025-SUMMER). Please provide it."
	}
	page, err := h.Service.UnpaidTuitions(ctx, tuition.Term(res.Term), 0, chatPageSize)
	if err != nil {
		return h.failureReply("I couldn't retrieve unpaid tuition", err)
	}
	if len(page.Records) == 0 {
		return fmt.Sprintf("No unpaid tuition found for term %s.", res.Term)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Unpaid tuition for term %s:\n\n", res.Term)
	for _, r := range page.Records {
		fmt.Fprintf(&b, "Student: %s | Amount: %s | Balance: %s\n", r.SubjectID, money(r.TotalAmount), money(r.Balance))
	}
	fmt.Fprintf(&b, "\nTotal records: %d", page.Total)
	return b.String()
}

// failureReply explains client-side failures and hides internal ones.
func (h *Handler) failureReply(prefix string, err error) string {
	if tuition.IsClientError(err) || tuition.IsNotFound(err) || tuition.IsConflict(err) {
		return fmt.Sprintf("%s: %v.", prefix, err)
	}
	h.Logger.Error("chat request failed", zap.Error(err))
	return prefix + ". Please try again later."
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
