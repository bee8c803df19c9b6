package settler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Discrepancy registra uma liquidação cujo lançamento no ledger falhou
// depois da ordem já ter sido marcada COMPLETED. O delta devido nunca é
// descartado: fica pendente até o retry aplicar.
type Discrepancy struct {
	ID              string
	OrderID         string
	UserID          string
	StakeCents      int64
	ProfitLossCents int64
	Attempts        int
	CreatedAt       time.Time
}

// Discrepancies é a fila de reconciliação
type Discrepancies interface {
	// Record registra a pendência; idempotente por orderID
	Record(ctx context.Context, d Discrepancy) error
	ListPending(ctx context.Context, limit int) ([]Discrepancy, error)
	MarkResolved(ctx context.Context, id string) error
	IncAttempts(ctx context.Context, id string) error
}

// MemoryDiscrepancies guarda as pendências em memória (testes/local)
type MemoryDiscrepancies struct {
	mu      sync.Mutex
	byOrder map[string]string
	items   map[string]*Discrepancy
	order   []string
}

func NewMemoryDiscrepancies() *MemoryDiscrepancies {
	return &MemoryDiscrepancies{
		byOrder: make(map[string]string),
		items:   make(map[string]*Discrepancy),
	}
}

func (m *MemoryDiscrepancies) Record(_ context.Context, d Discrepancy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byOrder[d.OrderID]; ok {
		return nil
	}
	d.ID = uuid.NewString()
	d.CreatedAt = time.Now().UTC()
	m.byOrder[d.OrderID] = d.ID
	m.items[d.ID] = &d
	m.order = append(m.order, d.ID)
	return nil
}

func (m *MemoryDiscrepancies) ListPending(_ context.Context, limit int) ([]Discrepancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Discrepancy
	for _, id := range m.order {
		if d, ok := m.items[id]; ok {
			out = append(out, *d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryDiscrepancies) MarkResolved(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.items[id]; ok {
		delete(m.byOrder, d.OrderID)
		delete(m.items, id)
	}
	return nil
}

func (m *MemoryDiscrepancies) IncAttempts(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.items[id]; ok {
		d.Attempts++
	}
	return nil
}
