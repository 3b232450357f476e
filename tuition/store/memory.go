// Package store provides tuition.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/tuition"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	subjects map[tuition.SubjectID]tuition.Subject
	records  map[tuition.RecordID]*tuition.BalanceRecord
	byKey    map[key][]tuition.RecordID
	payments []tuition.PaymentLedgerEntry
	nextID   tuition.RecordID
}

type key struct {
	SubjectID tuition.SubjectID
	Term      tuition.Term
}

func NewMemory() *Memory {
	return &Memory{
		subjects: make(map[tuition.SubjectID]tuition.Subject),
		records:  make(map[tuition.RecordID]*tuition.BalanceRecord),
		byKey:    make(map[key][]tuition.RecordID),
	}
}

func (m *Memory) SaveSubject(_ context.Context, s tuition.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subjects[s.ID]; ok {
		return tuition.ErrSubjectExists
	}
	m.subjects[s.ID] = s
	return nil
}

func (m *Memory) GetSubject(_ context.Context, id tuition.SubjectID) (*tuition.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) SubjectExists(_ context.Context, id tuition.SubjectID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.subjects[id]
	return ok, nil
}

func (m *Memory) CountSubjects(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subjects), nil
}

// AddBalanceRecord assigns the next ID. IDs only grow, so ID order is
// creation order.
func (m *Memory) AddBalanceRecord(_ context.Context, r tuition.BalanceRecord) (tuition.BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	stored := r
	m.records[r.ID] = &stored
	k := key{SubjectID: r.SubjectID, Term: r.Term}
	m.byKey[k] = append(m.byKey[k], r.ID)
	return r, nil
}

func (m *Memory) BalanceRecords(_ context.Context, subjectID tuition.SubjectID, term tuition.Term) ([]tuition.BalanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byKey[key{SubjectID: subjectID, Term: term}]
	result := make([]tuition.BalanceRecord, 0, len(ids))
	for _, id := range ids {
		result = append(result, *m.records[id])
	}
	return result, nil
}

func (m *Memory) SubjectRecords(_ context.Context, subjectID tuition.SubjectID) ([]tuition.BalanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []tuition.BalanceRecord
	for _, r := range m.records {
		if r.SubjectID == subjectID {
			result = append(result, *r)
		}
	}
	sortByID(result)
	return result, nil
}

func (m *Memory) UpdateBalance(_ context.Context, id tuition.RecordID, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return tuition.ErrRecordNotFound
	}
	r.Balance = balance
	return nil
}

func (m *Memory) UnpaidRecords(_ context.Context, term tuition.Term, limit, offset int) ([]tuition.BalanceRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []tuition.BalanceRecord
	for _, r := range m.records {
		if r.Term == term && r.IsOutstanding() {
			all = append(all, *r)
		}
	}
	sortByID(all)
	total := len(all)
	if offset < 0 || offset >= total {
		return []tuition.BalanceRecord{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *Memory) AppendPayment(_ context.Context, e tuition.PaymentLedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, e)
	return nil
}

func (m *Memory) Payments(_ context.Context, subjectID tuition.SubjectID, term tuition.Term) ([]tuition.PaymentLedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []tuition.PaymentLedgerEntry
	for _, e := range m.payments {
		if e.SubjectID != subjectID {
			continue
		}
		if term != "" && e.Term != term {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func sortByID(records []tuition.BalanceRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}
