package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/outcome"
)

// Entry é um lançamento do histórico de auditoria da conta
type Entry struct {
	UserID        string
	OperationType string // CREDIT | RESERVE | RELEASE | SETTLE
	AmountCents   int64
	CreatedAt     time.Time
}

type memAccount struct {
	mu        sync.Mutex
	balance   int64
	available int64
	frozen    int64
	bias      outcome.Bias
}

// Memory implementa Ledger em memória. Usada em testes e como referência
// de semântica pra implementação Postgres.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]*memAccount

	auditMu sync.Mutex
	audit   []Entry
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]*memAccount)}
}

func (m *Memory) account(userID string, create bool) (*memAccount, bool) {
	m.mu.RLock()
	a, ok := m.accounts[userID]
	m.mu.RUnlock()
	if ok || !create {
		return a, ok
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok = m.accounts[userID]; ok {
		return a, true
	}
	a = &memAccount{bias: outcome.BiasActual}
	m.accounts[userID] = a
	return a, true
}

func (m *Memory) record(userID, op string, amount int64) {
	m.auditMu.Lock()
	m.audit = append(m.audit, Entry{UserID: userID, OperationType: op, AmountCents: amount, CreatedAt: time.Now().UTC()})
	m.auditMu.Unlock()
}

func snapshot(userID string, a *memAccount) Account {
	return Account{
		UserID:         userID,
		BalanceCents:   a.balance,
		AvailableCents: a.available,
		FrozenCents:    a.frozen,
		Bias:           a.bias,
	}
}

func (m *Memory) GetOrCreate(_ context.Context, userID string) (Account, error) {
	a, _ := m.account(userID, true)
	a.mu.Lock()
	defer a.mu.Unlock()
	return snapshot(userID, a), nil
}

func (m *Memory) Get(_ context.Context, userID string) (Account, error) {
	a, ok := m.account(userID, false)
	if !ok {
		return Account{}, ErrNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return snapshot(userID, a), nil
}

func (m *Memory) Deposit(_ context.Context, userID string, amountCents int64) (Account, error) {
	if amountCents <= 0 {
		return Account{}, ErrBadAmount
	}
	a, _ := m.account(userID, true)
	a.mu.Lock()
	defer a.mu.Unlock()

	a.available += amountCents
	a.balance += amountCents
	m.record(userID, "CREDIT", amountCents)
	return snapshot(userID, a), nil
}

func (m *Memory) Reserve(_ context.Context, userID string, amountCents int64) error {
	if amountCents <= 0 {
		return ErrBadAmount
	}
	a, _ := m.account(userID, true)
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.available < amountCents {
		return ErrInsufficientFunds
	}
	a.available -= amountCents
	a.frozen += amountCents
	m.record(userID, "RESERVE", amountCents)
	return nil
}

func (m *Memory) Release(_ context.Context, userID string, amountCents int64) error {
	if amountCents <= 0 {
		return ErrBadAmount
	}
	a, ok := m.account(userID, false)
	if !ok {
		return ErrNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen < amountCents {
		return fmt.Errorf("%w: frozen %d < release %d", ErrInvariantViolation, a.frozen, amountCents)
	}
	a.frozen -= amountCents
	a.available += amountCents
	m.record(userID, "RELEASE", amountCents)
	return nil
}

func (m *Memory) Settle(_ context.Context, userID string, stakeCents, profitLossCents int64) (Account, error) {
	if stakeCents <= 0 {
		return Account{}, ErrBadAmount
	}
	a, ok := m.account(userID, false)
	if !ok {
		return Account{}, ErrNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	// valida o estado final antes de mutar: ou aplica tudo, ou nada
	if a.frozen < stakeCents {
		return Account{}, fmt.Errorf("%w: frozen %d < stake %d", ErrInvariantViolation, a.frozen, stakeCents)
	}
	if a.available+stakeCents+profitLossCents < 0 {
		return Account{}, fmt.Errorf("%w: settle would drive available negative", ErrInvariantViolation)
	}

	a.frozen -= stakeCents
	a.available += stakeCents + profitLossCents
	a.balance += profitLossCents
	m.record(userID, "SETTLE", profitLossCents)
	return snapshot(userID, a), nil
}

func (m *Memory) SetBias(_ context.Context, userID string, bias outcome.Bias) error {
	a, _ := m.account(userID, true)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bias = bias
	return nil
}

// AuditTrail expõe o histórico de lançamentos (usado em testes)
func (m *Memory) AuditTrail() []Entry {
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	out := make([]Entry, len(m.audit))
	copy(out, m.audit)
	return out
}
