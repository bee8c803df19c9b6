package intake

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/ledger"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/orders"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/outcome"
	"github.com/radieske/crypto-options-platform-poc/pkg/contracts/events"
)

// PriceSource fornece o preço corrente de um símbolo
type PriceSource interface {
	Current(ctx context.Context, symbol string) (float64, error)
}

// Publisher emite o evento de ordem criada (fire-and-forget no intake)
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, e events.OrderPlaced) error
}

// PlaceOrderParams são os parâmetros já decodificados da API
type PlaceOrderParams struct {
	UserID          string
	Symbol          string
	Direction       string
	AmountCents     int64
	DurationSec     int
	EntryPrice      float64 // <= 0 usa o cache de preço
	ActualDirection string  // opcional
}

// Service orquestra a criação de ordens: valida, reserva saldo e cria o
// registro. Se a criação falhar depois da reserva, devolve o saldo antes
// de retornar o erro (compensação obrigatória).
type Service struct {
	Log    *zap.Logger
	Ledger ledger.Ledger
	Store  orders.Store
	Prices PriceSource // opcional quando EntryPrice sempre vem na requisição
	Publ   Publisher   // opcional
	Rules  orders.Rules
}

func (s *Service) PlaceOrder(ctx context.Context, p PlaceOrderParams) (*orders.Order, error) {
	// 1) validação sem efeito colateral
	dir, err := outcome.ParseDirection(p.Direction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orders.ErrValidation, err)
	}
	var actual *outcome.Direction
	if p.ActualDirection != "" {
		d, err := outcome.ParseDirection(p.ActualDirection)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", orders.ErrValidation, err)
		}
		actual = &d
	}
	if p.UserID == "" || p.Symbol == "" {
		return nil, fmt.Errorf("%w: userId and symbol required", orders.ErrValidation)
	}
	if err := s.Rules.Validate(p.AmountCents, p.DurationSec); err != nil {
		return nil, err
	}

	entry := p.EntryPrice
	if entry <= 0 {
		if s.Prices == nil {
			return nil, fmt.Errorf("%w: entry price required", orders.ErrValidation)
		}
		entry, err = s.Prices.Current(ctx, p.Symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: no price for %s", orders.ErrValidation, p.Symbol)
		}
	}

	// 2) reserva o stake; nada é criado se o saldo não cobre
	if err := s.Ledger.Reserve(ctx, p.UserID, p.AmountCents); err != nil {
		return nil, err
	}

	// 3) cria a ordem ACTIVE
	o := &orders.Order{
		UserID:             p.UserID,
		Symbol:             p.Symbol,
		AmountCents:        p.AmountCents,
		RequestedDirection: dir,
		ActualDirection:    actual,
		DurationSec:        p.DurationSec,
		EntryPrice:         entry,
	}
	if err := s.Store.Create(ctx, o); err != nil {
		// 4) compensação: devolve a reserva antes de propagar o erro
		if rerr := s.Ledger.Release(ctx, p.UserID, p.AmountCents); rerr != nil {
			s.Log.Error("reserve rollback failed",
				zap.String("userId", p.UserID),
				zap.Int64("amountCents", p.AmountCents),
				zap.Error(rerr),
			)
		}
		return nil, err
	}

	if s.Publ != nil {
		if perr := s.Publ.PublishOrderPlaced(ctx, events.OrderPlaced{
			OrderID:     o.ID,
			UserID:      o.UserID,
			Symbol:      o.Symbol,
			Direction:   string(o.RequestedDirection),
			AmountCents: o.AmountCents,
			DurationSec: o.DurationSec,
			EntryPrice:  o.EntryPrice,
			ExpiresAtMs: o.ExpiresAt.UnixMilli(),
		}); perr != nil {
			s.Log.Warn("publish order_placed", zap.String("orderId", o.ID), zap.Error(perr))
		}
	}

	return o, nil
}

// IsUserFacing diz se o erro deve voltar com motivo claro pro chamador
func IsUserFacing(err error) bool {
	return errors.Is(err, orders.ErrValidation) || errors.Is(err, ledger.ErrInsufficientFunds)
}
