package commitment_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-groupbuy/internal/commitment"
)

type memoryStore struct {
	mu          sync.Mutex
	rows        map[uuid.UUID]commitment.Commitment
	failIDs     map[uuid.UUID]error
	listErr     error
	listCalls   int
	writeCalls  map[uuid.UUID]int
	writeDelay  time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newMemoryStore(rows ...commitment.Commitment) *memoryStore {
	m := &memoryStore{
		rows:       make(map[uuid.UUID]commitment.Commitment),
		failIDs:    make(map[uuid.UUID]error),
		writeCalls: make(map[uuid.UUID]int),
	}
	for _, row := range rows {
		m.rows[row.ID] = row
	}
	return m
}

func (m *memoryStore) ListLapsed(_ context.Context, now time.Time, after commitment.Cursor, limit int) ([]commitment.Commitment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []commitment.Commitment
	for _, row := range m.rows {
		if !row.Lapsed(now) || !after.After(*row.PaymentDeadline, row.ID) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		return commitment.Cursor{Deadline: *a.PaymentDeadline, ID: a.ID}.After(*b.PaymentDeadline, b.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) MarkExpired(_ context.Context, id uuid.UUID) (bool, error) {
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		prev := m.maxInFlight.Load()
		if cur <= prev || m.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	if m.writeDelay > 0 {
		time.Sleep(m.writeDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls[id]++
	if err, ok := m.failIDs[id]; ok {
		return false, err
	}
	row, ok := m.rows[id]
	if !ok || row.Status != commitment.StatusCommittedUnpaid {
		return false, nil
	}
	row.Status = commitment.StatusPaymentWindowExpired
	m.rows[id] = row
	return true, nil
}

func (m *memoryStore) status(id uuid.UUID) commitment.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

func (m *memoryStore) setStatus(id uuid.UUID, status commitment.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	row.Status = status
	m.rows[id] = row
}

var errWriteFailed = errors.New("connection reset by peer")

func newCommitment(status commitment.Status, deadline *time.Time) commitment.Commitment {
	return commitment.Commitment{
		ID:              uuid.New(),
		CampaignID:      uuid.New(),
		UserID:          uuid.New(),
		Status:          status,
		PaymentDeadline: deadline,
		CreatedAt:       time.Date(2019, 12, 1, 0, 0, 0, 0, time.UTC),
	}
}

func at(t time.Time) *time.Time { return &t }
