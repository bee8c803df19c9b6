package orders

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/outcome"
)

// expiryItem indexa uma ordem pelo vencimento
type expiryItem struct {
	orderID   string
	expiresAt time.Time
}

// expiryHeap é um min-heap por expires_at: evita varrer todas as ordens
// ativas a cada tick do liquidador.
type expiryHeap []expiryItem

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)         { *h = append(*h, x.(expiryItem)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Memory implementa o Store em memória, com histórico append-only
type Memory struct {
	mu     sync.Mutex
	rules  Rules
	now    func() time.Time
	byID   map[string]*Order
	byUser map[string][]string
	expiry expiryHeap
}

func NewMemory(rules Rules, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		rules:  rules,
		now:    now,
		byID:   make(map[string]*Order),
		byUser: make(map[string][]string),
	}
}

func clone(o *Order) *Order {
	cp := *o
	if o.ExitPrice != nil {
		v := *o.ExitPrice
		cp.ExitPrice = &v
	}
	if o.ProfitLossCents != nil {
		v := *o.ProfitLossCents
		cp.ProfitLossCents = &v
	}
	if o.SettledAt != nil {
		v := *o.SettledAt
		cp.SettledAt = &v
	}
	if o.ActualDirection != nil {
		v := *o.ActualDirection
		cp.ActualDirection = &v
	}
	return &cp
}

func (m *Memory) Create(_ context.Context, o *Order) error {
	if err := m.rules.Validate(o.AmountCents, o.DurationSec); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	o.ID = uuid.NewString()
	o.Status = StatusActive
	o.CreatedAt = now
	o.ExpiresAt = now.Add(time.Duration(o.DurationSec) * time.Second)

	m.byID[o.ID] = clone(o)
	m.byUser[o.UserID] = append(m.byUser[o.UserID], o.ID)
	heap.Push(&m.expiry, expiryItem{orderID: o.ID, expiresAt: o.ExpiresAt})
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(o), nil
}

func (m *Memory) ListByUser(_ context.Context, userID string) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byUser[userID]
	out := make([]*Order, 0, len(ids))
	// mais recentes primeiro
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, clone(m.byID[ids[i]]))
	}
	return out, nil
}

func (m *Memory) FindExpiredActive(_ context.Context, now time.Time, limit int) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Order
	var keep []expiryItem
	for m.expiry.Len() > 0 && !m.expiry[0].expiresAt.After(now) {
		it := heap.Pop(&m.expiry).(expiryItem)
		o := m.byID[it.orderID]
		if o == nil || o.Status != StatusActive {
			continue // liquidada: índice descartado
		}
		if limit <= 0 || len(out) < limit {
			out = append(out, clone(o))
		}
		// permanece no índice até ser liquidada, pra nova tentativa no próximo tick
		keep = append(keep, it)
	}
	for _, it := range keep {
		heap.Push(&m.expiry, it)
	}
	return out, nil
}

func (m *Memory) Settle(_ context.Context, id string, exitPrice float64, profitLossCents int64, effective outcome.Direction, settledAt time.Time) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.Status != StatusActive {
		return nil, ErrAlreadySettled
	}

	o.Status = StatusCompleted
	o.ExitPrice = &exitPrice
	o.ProfitLossCents = &profitLossCents
	o.EffectiveDirection = effective
	ts := settledAt.UTC()
	o.SettledAt = &ts
	return clone(o), nil
}
