/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, keeping the tuition
  domain types out of the wire contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator tags, checked in decodeAndValidate.
  Amount rules (> 0) stay in the tuition package so every caller gets them.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/intent"
	"github.com/warp/tuition-engine/tuition"
)

// =============================================================================
// REQUESTS
// =============================================================================

type PaymentRequest struct {
	StudentNo string          `json:"studentNo" validate:"required,max=32"`
	Term      string          `json:"term" validate:"required,max=32"`
	Amount    decimal.Decimal `json:"amount"`
}

type CreateSubjectRequest struct {
	StudentNo string `json:"studentNo" validate:"required,max=32"`
	Name      string `json:"name" validate:"max=200"`
}

type AddTuitionRequest struct {
	StudentNo string          `json:"studentNo" validate:"required,max=32"`
	Term      string          `json:"term" validate:"required,max=32"`
	Amount    decimal.Decimal `json:"amount"`
}

type ChatRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type TuitionStatusDTO struct {
	StudentNo      string          `json:"studentNo"`
	TotalAmount    decimal.Decimal `json:"totalTuitionAmount"`
	Balance        decimal.Decimal `json:"currentBalance"`
	HasOutstanding bool            `json:"hasOutstanding"`
}

type SubjectDTO struct {
	StudentNo string    `json:"studentNo"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type BalanceRecordDTO struct {
	ID          int64           `json:"id"`
	StudentNo   string          `json:"studentNo"`
	Term        string          `json:"term"`
	TotalAmount decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
	Paid        decimal.Decimal `json:"paid"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type UnpaidPageDTO struct {
	Records []BalanceRecordDTO `json:"records"`
	Total   int                `json:"total"`
	Page    int                `json:"page"`
	Size    int                `json:"size"`
}

// PaymentResponse reports an allocation. Remaining is the overpaid part of
// the request that no record absorbed.
type PaymentResponse struct {
	Status         string          `json:"status"`
	PaymentID      string          `json:"paymentId"`
	StudentNo      string          `json:"studentNo"`
	Term           string          `json:"term"`
	Amount         decimal.Decimal `json:"amount"`
	Allocated      decimal.Decimal `json:"allocated"`
	Remaining      decimal.Decimal `json:"remaining"`
	RecordsTouched int             `json:"recordsTouched"`
	RecordedAt     time.Time       `json:"recordedAt"`
}

type PaymentEntryDTO struct {
	PaymentID  string          `json:"paymentId"`
	StudentNo  string          `json:"studentNo"`
	Term       string          `json:"term"`
	Amount     decimal.Decimal `json:"amount"`
	RecordedAt time.Time       `json:"recordedAt"`
}

type ChatResponse struct {
	Reply  string        `json:"reply"`
	Intent intent.Result `json:"intent"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTuitionStatusDTO(s tuition.TuitionStatus) TuitionStatusDTO {
	return TuitionStatusDTO{
		StudentNo:      string(s.SubjectID),
		TotalAmount:    s.TotalAmount,
		Balance:        s.Balance,
		HasOutstanding: s.HasOutstanding(),
	}
}

func toBalanceRecordDTO(r tuition.BalanceRecord) BalanceRecordDTO {
	return BalanceRecordDTO{
		ID:          int64(r.ID),
		StudentNo:   string(r.SubjectID),
		Term:        string(r.Term),
		TotalAmount: r.TotalAmount,
		Balance:     r.Balance,
		Paid:        r.Paid(),
		CreatedAt:   r.CreatedAt,
	}
}

func toPaymentResponse(res tuition.AllocationResult) PaymentResponse {
	return PaymentResponse{
		Status:         "SUCCESSFUL",
		PaymentID:      string(res.Entry.ID),
		StudentNo:      string(res.Entry.SubjectID),
		Term:           string(res.Entry.Term),
		Amount:         res.Entry.AmountRequested,
		Allocated:      res.Allocated,
		Remaining:      res.Remaining,
		RecordsTouched: res.RecordsTouched,
		RecordedAt:     res.Entry.RecordedAt,
	}
}

func toPaymentEntryDTOs(entries []tuition.PaymentLedgerEntry) []PaymentEntryDTO {
	dtos := make([]PaymentEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = PaymentEntryDTO{
			PaymentID:  string(e.ID),
			StudentNo:  string(e.SubjectID),
			Term:       string(e.Term),
			Amount:     e.AmountRequested,
			RecordedAt: e.RecordedAt,
		}
	}
	return dtos
}
