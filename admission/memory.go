package admission

import (
	"context"
	"sync"
	"time"
)

// MemoryHistory keeps request history in process memory. Subjects are never
// evicted: every subject ever seen keeps one entry for the life of the
// process. RedisHistory is the bounded alternative.
type MemoryHistory struct {
	subjects sync.Map // string -> *subjectHistory
}

type subjectHistory struct {
	mu     sync.Mutex
	stamps []time.Time
}

var _ HistoryStore = (*MemoryHistory)(nil)

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

// Admit locks only the subject's own history, so different subjects never
// contend.
func (m *MemoryHistory) Admit(_ context.Context, subjectID string, now, dayStart time.Time, quota int) (bool, error) {
	v, _ := m.subjects.LoadOrStore(subjectID, &subjectHistory{})
	h := v.(*subjectHistory)

	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.stamps[:0]
	for _, ts := range h.stamps {
		if !ts.Before(dayStart) {
			kept = append(kept, ts)
		}
	}
	h.stamps = kept

	if len(h.stamps) >= quota {
		return false, nil
	}
	h.stamps = append(h.stamps, now)
	return true, nil
}

// Len returns how many subjects have history.
func (m *MemoryHistory) Len() int {
	n := 0
	m.subjects.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
