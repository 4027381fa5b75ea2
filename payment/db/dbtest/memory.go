// Package dbtest provides an in-memory db.Store for tests.
package dbtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"go-cryptopay/payment/db"
)

// Memory is a concurrency safe db.Store. Status transitions are check-and-set
// under a single lock, matching the conditional updates of the real stores.
type Memory struct {
	mu      sync.Mutex
	records map[string]*db.PaymentRequest
	nextID  uint

	// DuplicateOnCreate makes the next n Create calls fail with
	// db.ErrDuplicateReference, as a racing writer would.
	DuplicateOnCreate int
	// PingErr is returned by Ping.
	PingErr error

	creates int
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]*db.PaymentRequest)}
}

// Put stores p as is, bypassing the duplicate check. Used to seed fixtures.
func (m *Memory) Put(p db.PaymentRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	m.records[p.Reference] = &p
}

// Get returns a copy of the record for reference.
func (m *Memory) Get(reference string) (db.PaymentRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[reference]
	if !ok {
		return db.PaymentRequest{}, false
	}
	return *p, true
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Creates counts Create calls, including failed ones.
func (m *Memory) Creates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

func (m *Memory) Create(_ context.Context, p *db.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.DuplicateOnCreate > 0 {
		m.DuplicateOnCreate--
		return db.ErrDuplicateReference
	}
	if _, ok := m.records[p.Reference]; ok {
		return db.ErrDuplicateReference
	}
	m.nextID++
	p.ID = m.nextID
	if p.Status == "" {
		p.Status = db.StatusPending
	}
	cp := *p
	m.records[p.Reference] = &cp
	return nil
}

func (m *Memory) ReferenceExists(_ context.Context, reference string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[reference]
	return ok, nil
}

func (m *Memory) FindByReference(_ context.Context, reference string) (*db.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[reference]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListByStatus(_ context.Context, status db.Status, limit int) ([]db.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []db.PaymentRequest
	for _, p := range m.records {
		if p.Status == status {
			list = append(list, *p)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *Memory) ExpirePending(_ context.Context, cutoff, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.records {
		if p.Status == db.StatusPending && p.CreatedAt.Before(cutoff) {
			p.Status = db.StatusCancelled
			p.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (m *Memory) MarkVerified(_ context.Context, reference, signature string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[reference]
	if !ok || p.Status != db.StatusPending {
		return false, nil
	}
	p.Status = db.StatusVerified
	p.Signature = signature
	p.VerifiedAt = &at
	p.UpdatedAt = at
	return true, nil
}

func (m *Memory) Ping(context.Context) error {
	return m.PingErr
}
