package ledger

import (
	"context"
	"errors"

	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/outcome"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvariantViolation = errors.New("balance invariant violation")
	ErrNotFound           = errors.New("account not found")
	ErrBadAmount          = errors.New("amount must be positive")
)

// Account é a visão externa do saldo de um usuário.
// Invariante: BalanceCents == AvailableCents + FrozenCents, ambos >= 0.
type Account struct {
	UserID         string
	BalanceCents   int64
	AvailableCents int64
	FrozenCents    int64
	Bias           outcome.Bias
}

// Ledger mantém os saldos por usuário. Toda mutação é serializada por
// usuário (lock pessimista no Postgres, mutex por conta em memória).
type Ledger interface {
	// GetOrCreate retorna a conta do usuário, provisionando saldo zero se necessário
	GetOrCreate(ctx context.Context, userID string) (Account, error)

	// Get retorna a conta; ErrNotFound se não existir
	Get(ctx context.Context, userID string) (Account, error)

	// Deposit credita saldo disponível (e total)
	Deposit(ctx context.Context, userID string, amountCents int64) (Account, error)

	// Reserve move amountCents de disponível pra congelado.
	// ErrInsufficientFunds sem nenhuma mutação se o disponível não cobre.
	Reserve(ctx context.Context, userID string, amountCents int64) error

	// Release devolve amountCents de congelado pra disponível.
	// ErrInvariantViolation se o congelado ficaria negativo (erro de contrato).
	Release(ctx context.Context, userID string, amountCents int64) error

	// Settle libera o stake do congelado e aplica o P/L assinado no
	// disponível e no total, como uma unidade atômica.
	Settle(ctx context.Context, userID string, stakeCents, profitLossCents int64) (Account, error)

	// SetBias define o override administrativo de resultado do usuário
	SetBias(ctx context.Context, userID string, bias outcome.Bias) error
}
