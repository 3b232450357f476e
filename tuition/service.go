package tuition

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Service groups the tuition operations exposed to the request layer.
// Payments go through the Allocator; everything else is read or
// append-style bookkeeping.
type Service struct {
	store     Store
	allocator *Allocator
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store Store, allocator *Allocator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, allocator: allocator, logger: logger, now: time.Now}
}

// QueryTuition totals every record of a subject. An unknown subject yields
// zero totals rather than an error.
func (s *Service) QueryTuition(ctx context.Context, subjectID SubjectID) (TuitionStatus, error) {
	records, err := s.store.SubjectRecords(ctx, subjectID)
	if err != nil {
		return TuitionStatus{}, fmt.Errorf("load records: %w", err)
	}
	status := TuitionStatus{SubjectID: subjectID, TotalAmount: decimal.Zero, Balance: decimal.Zero}
	for _, r := range records {
		status.TotalAmount = status.TotalAmount.Add(r.TotalAmount)
		status.Balance = status.Balance.Add(r.Balance)
	}
	return status, nil
}

// CreateSubject registers a new subject.
func (s *Service) CreateSubject(ctx context.Context, id SubjectID, name string) (Subject, error) {
	id = SubjectID(strings.TrimSpace(string(id)))
	if id == "" {
		return Subject{}, fmt.Errorf("%w: subject id is required", ErrValidation)
	}
	subj := Subject{ID: id, Name: strings.TrimSpace(name), CreatedAt: s.now()}
	if err := s.store.SaveSubject(ctx, subj); err != nil {
		return Subject{}, err
	}
	return subj, nil
}

// AddTuition charges a subject for a term. The new record starts fully
// outstanding.
func (s *Service) AddTuition(ctx context.Context, subjectID SubjectID, term Term, amount decimal.Decimal) (BalanceRecord, error) {
	subjectID = SubjectID(strings.TrimSpace(string(subjectID)))
	term = NormalizeTerm(string(term))
	if subjectID == "" || term == "" {
		return BalanceRecord{}, ErrInvalidRequest
	}
	if !amount.IsPositive() {
		return BalanceRecord{}, ErrInvalidAmount
	}
	exists, err := s.store.SubjectExists(ctx, subjectID)
	if err != nil {
		return BalanceRecord{}, fmt.Errorf("check subject: %w", err)
	}
	if !exists {
		return BalanceRecord{}, fmt.Errorf("%w: %s", ErrSubjectNotFound, subjectID)
	}
	return s.store.AddBalanceRecord(ctx, BalanceRecord{
		SubjectID:   subjectID,
		Term:        term,
		TotalAmount: amount,
		Balance:     amount,
		CreatedAt:   s.now(),
	})
}

// UnpaidTuitions returns a page of records of term that still carry a
// balance. page is 0-based.
func (s *Service) UnpaidTuitions(ctx context.Context, term Term, page, size int) (UnpaidPage, error) {
	term = NormalizeTerm(string(term))
	if term == "" {
		return UnpaidPage{}, fmt.Errorf("%w: term is required", ErrValidation)
	}
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if page > math.MaxInt/size {
		return UnpaidPage{}, fmt.Errorf("%w: page %d out of range", ErrValidation, page)
	}
	records, total, err := s.store.UnpaidRecords(ctx, term, size, page*size)
	if err != nil {
		return UnpaidPage{}, fmt.Errorf("load unpaid records: %w", err)
	}
	return UnpaidPage{Records: records, Total: total, Page: page, Size: size}, nil
}

// Pay allocates a payment. See Allocator.Allocate.
func (s *Service) Pay(ctx context.Context, subjectID SubjectID, term Term, amount decimal.Decimal) (AllocationResult, error) {
	return s.allocator.Allocate(ctx, subjectID, term, amount)
}

// PaymentHistory lists ledger entries of a subject, optionally for one term.
func (s *Service) PaymentHistory(ctx context.Context, subjectID SubjectID, term Term) ([]PaymentLedgerEntry, error) {
	return s.allocator.Ledger().History(ctx, subjectID, NormalizeTerm(string(term)))
}

// Seed loads the demo subjects and their 2024-FALL tuition when the store
// holds no subjects yet. Returns true if anything was written.
func (s *Service) Seed(ctx context.Context) (bool, error) {
	n, err := s.store.CountSubjects(ctx)
	if err != nil {
		return false, fmt.Errorf("count subjects: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	seed := []struct {
		id     SubjectID
		name   string
		amount int64
	}{
		{"2023001", "Ali Veli", 15000},
		{"2023002", "Ayşe Yılmaz", 20000},
	}
	for _, sd := range seed {
		if _, err := s.CreateSubject(ctx, sd.id, sd.name); err != nil {
			return false, fmt.Errorf("seed subject %s: %w", sd.id, err)
		}
		if _, err := s.AddTuition(ctx, sd.id, "2024-FALL", decimal.NewFromInt(sd.amount)); err != nil {
			return false, fmt.Errorf("seed tuition %s: %w", sd.id, err)
		}
	}
	s.logger.Info("seeded demo data", zap.Int("subjects", len(seed)))
	return true, nil
}
