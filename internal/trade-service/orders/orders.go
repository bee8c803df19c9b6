package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/outcome"
)

var (
	ErrValidation     = errors.New("invalid order")
	ErrAlreadySettled = errors.New("order already settled")
	ErrNotFound       = errors.New("order not found")
)

const (
	StatusActive    = "ACTIVE"
	StatusCompleted = "COMPLETED"
)

// Order é uma ordem de aposta direcional com prazo fixo.
// Ciclo de vida: ACTIVE --liquidação--> COMPLETED; nunca é removida.
// ExitPrice/ProfitLossCents/SettledAt são nulos até a liquidação.
type Order struct {
	ID                 string
	UserID             string
	Symbol             string
	AmountCents        int64
	RequestedDirection outcome.Direction
	EffectiveDirection outcome.Direction  // vazia até a liquidação
	ActualDirection    *outcome.Direction // direção "real" declarada no intake, opcional
	DurationSec        int
	EntryPrice         float64
	ExitPrice          *float64
	ProfitLossCents    *int64
	Status             string
	CreatedAt          time.Time
	ExpiresAt          time.Time
	SettledAt          *time.Time
}

// Rules são as regras de validação de intake
type Rules struct {
	MinStakeCents int64
	Durations     map[int]int // conjunto enumerado de durações (s) -> taxa (%)
}

// Validate rejeita stake abaixo do mínimo e duração fora do conjunto.
// Não tem efeito colateral: é chamada antes de qualquer reserva de saldo.
func (r Rules) Validate(amountCents int64, durationSec int) error {
	if amountCents < r.MinStakeCents {
		return fmt.Errorf("%w: amount %d below min stake %d", ErrValidation, amountCents, r.MinStakeCents)
	}
	if _, ok := r.Durations[durationSec]; !ok {
		return fmt.Errorf("%w: duration %ds not allowed", ErrValidation, durationSec)
	}
	return nil
}

// Store é a máquina de estados autoritativa das ordens
type Store interface {
	// Create insere a ordem como ACTIVE, preenchendo ID, CreatedAt e
	// ExpiresAt (CreatedAt + duração). Não toca no ledger.
	Create(ctx context.Context, o *Order) error

	Get(ctx context.Context, id string) (*Order, error)

	ListByUser(ctx context.Context, userID string) ([]*Order, error)

	// FindExpiredActive retorna ordens ACTIVE com expires_at <= now.
	// Seguro chamar repetidas vezes; ordens liquidadas nunca reaparecem.
	FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]*Order, error)

	// Settle faz a transição condicional ACTIVE -> COMPLETED.
	// Quem perde a corrida recebe ErrAlreadySettled (benigno).
	Settle(ctx context.Context, id string, exitPrice float64, profitLossCents int64, effective outcome.Direction, settledAt time.Time) (*Order, error)
}
