package settler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/ledger"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/orders"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/outcome"
	"github.com/radieske/crypto-options-platform-poc/pkg/contracts/events"
)

// PriceSource fornece o preço corrente pra apurar o exit price
type PriceSource interface {
	Current(ctx context.Context, symbol string) (float64, error)
}

// Publisher emite eventos order_settled (fire-and-forget)
type Publisher interface {
	PublishOrderSettled(ctx context.Context, e events.OrderSettled) error
}

// Settler varre ordens vencidas e dirige cada uma por exatamente uma
// liquidação: Outcome Policy -> Order Store -> Balance Ledger.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa.
type Settler struct {
	Log    *zap.Logger
	Store  orders.Store
	Ledger ledger.Ledger
	Policy *outcome.Policy
	Prices PriceSource // opcional: sem feed, exit price = entry price
	Publ   Publisher   // opcional
	Disc   Discrepancies

	Interval       time.Duration // período do tick
	BatchSize      int           // máximo de ordens por tick
	AttemptTimeout time.Duration // limite por ordem, pra uma ordem ruim não travar o tick
	Now            func() time.Time

	OnSettled     func(won bool) // métricas (counter++)
	OnSkipped     func()         // métricas: corrida benigna
	OnError       func(string)   // métricas por fase
	OnDiscrepancy func()         // métricas: pendência de reconciliação
}

func (s *Settler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run executa o loop de liquidação até o contexto ser cancelado
func (s *Settler) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick processa um ciclo completo: primeiro reaplica pendências de
// reconciliação, depois liquida as ordens vencidas.
func (s *Settler) Tick(ctx context.Context) {
	s.retryDiscrepancies(ctx)

	now := s.now()
	expired, err := s.Store.FindExpiredActive(ctx, now, s.BatchSize)
	if err != nil {
		s.Log.Warn("find expired orders", zap.Error(err))
		s.fireError("scan")
		return
	}

	for _, o := range expired {
		attemptCtx := ctx
		cancel := func() {}
		if s.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.AttemptTimeout)
		}
		s.settleOne(attemptCtx, o)
		cancel()
	}
}

// settleOne liquida uma ordem vencida.
// Falha antes da transição no Store deixa a ordem ACTIVE pro próximo
// tick; falha no ledger depois da transição vira pendência de
// reconciliação (o delta devido nunca se perde).
func (s *Settler) settleOne(ctx context.Context, o *orders.Order) {
	// bias lido no momento da liquidação, não da criação
	acc, err := s.Ledger.Get(ctx, o.UserID)
	if err != nil {
		s.Log.Error("load account for settlement",
			zap.String("orderId", o.ID),
			zap.String("userId", o.UserID),
			zap.Error(err),
		)
		s.fireError("account")
		return
	}

	exit := s.exitPrice(ctx, o)

	res, err := s.Policy.Compute(outcome.Input{
		AmountCents:     o.AmountCents,
		DurationSec:     o.DurationSec,
		Requested:       o.RequestedDirection,
		ActualDirection: o.ActualDirection,
		EntryPrice:      o.EntryPrice,
		ExitPrice:       exit,
	}, acc.Bias)
	if err != nil {
		// duração fora da tabela só acontece por violação de contrato no intake
		s.Log.Error("compute outcome",
			zap.String("orderId", o.ID),
			zap.Int("durationSec", o.DurationSec),
			zap.Error(err),
		)
		s.fireError("outcome")
		return
	}

	settled, err := s.Store.Settle(ctx, o.ID, exit, res.ProfitLossCents, res.EffectiveDirection, s.now())
	if err != nil {
		if errors.Is(err, orders.ErrAlreadySettled) {
			// outro tick (ou outra instância) chegou primeiro
			s.Log.Debug("order already settled", zap.String("orderId", o.ID))
			if s.OnSkipped != nil {
				s.OnSkipped()
			}
			return
		}
		s.Log.Error("settle order", zap.String("orderId", o.ID), zap.Error(err))
		s.fireError("store")
		return
	}

	if _, err := s.Ledger.Settle(ctx, o.UserID, o.AmountCents, res.ProfitLossCents); err != nil {
		// ordem COMPLETED sem lançamento no ledger: registra a pendência
		s.Log.Error("ledger settlement failed after order completion",
			zap.String("orderId", o.ID),
			zap.String("userId", o.UserID),
			zap.Int64("stakeCents", o.AmountCents),
			zap.Int64("profitLossCents", res.ProfitLossCents),
			zap.Error(err),
		)
		if derr := s.Disc.Record(ctx, Discrepancy{
			OrderID:         o.ID,
			UserID:          o.UserID,
			StakeCents:      o.AmountCents,
			ProfitLossCents: res.ProfitLossCents,
		}); derr != nil {
			s.Log.Error("record discrepancy", zap.String("orderId", o.ID), zap.Error(derr))
		}
		if s.OnDiscrepancy != nil {
			s.OnDiscrepancy()
		}
		return
	}

	if s.OnSettled != nil {
		s.OnSettled(res.Won)
	}
	s.publish(ctx, settled, res)
}

func (s *Settler) publish(ctx context.Context, o *orders.Order, res outcome.Result) {
	if s.Publ == nil {
		return
	}
	out := "LOSS"
	if res.Won {
		out = "WIN"
	}
	exit := o.EntryPrice
	if o.ExitPrice != nil {
		exit = *o.ExitPrice
	}
	if err := s.Publ.PublishOrderSettled(ctx, events.OrderSettled{
		OrderID:         o.ID,
		UserID:          o.UserID,
		Outcome:         out,
		ProfitLossCents: res.ProfitLossCents,
		ExitPrice:       exit,
		Ts:              s.now().UTC(),
	}); err != nil {
		s.Log.Warn("publish order_settled", zap.String("orderId", o.ID), zap.Error(err))
	}
}

// exitPrice apura o preço de saída no cache; sem feed disponível, a
// ordem liquida no próprio entry price (sem movimento)
func (s *Settler) exitPrice(ctx context.Context, o *orders.Order) float64 {
	if s.Prices == nil {
		return o.EntryPrice
	}
	p, err := s.Prices.Current(ctx, o.Symbol)
	if err != nil || p <= 0 {
		s.Log.Warn("exit price unavailable, falling back to entry",
			zap.String("orderId", o.ID),
			zap.String("symbol", o.Symbol),
		)
		return o.EntryPrice
	}
	return p
}

// retryDiscrepancies reaplica lançamentos devidos de ticks anteriores
func (s *Settler) retryDiscrepancies(ctx context.Context) {
	if s.Disc == nil {
		return
	}
	pending, err := s.Disc.ListPending(ctx, s.BatchSize)
	if err != nil {
		s.Log.Warn("list discrepancies", zap.Error(err))
		s.fireError("reconcile_scan")
		return
	}

	for _, d := range pending {
		if _, err := s.Ledger.Settle(ctx, d.UserID, d.StakeCents, d.ProfitLossCents); err != nil {
			s.Log.Error("reconcile ledger settlement",
				zap.String("orderId", d.OrderID),
				zap.String("userId", d.UserID),
				zap.Int("attempts", d.Attempts),
				zap.Error(err),
			)
			_ = s.Disc.IncAttempts(ctx, d.ID)
			s.fireError("reconcile")
			continue
		}
		if err := s.Disc.MarkResolved(ctx, d.ID); err != nil {
			s.Log.Error("mark discrepancy resolved", zap.String("orderId", d.OrderID), zap.Error(err))
		}
		s.Log.Info("reconciled settlement discrepancy",
			zap.String("orderId", d.OrderID),
			zap.String("userId", d.UserID),
			zap.Int64("profitLossCents", d.ProfitLossCents),
		)
	}
}

func (s *Settler) fireError(stage string) {
	if s.OnError != nil {
		s.OnError(stage)
	}
}
