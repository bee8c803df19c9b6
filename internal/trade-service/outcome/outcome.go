package outcome

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownDuration = errors.New("unknown duration")
	ErrBadDirection    = errors.New("invalid direction")
	ErrBadBias         = errors.New("invalid bias")
)

// Direction é o palpite direcional da ordem (preço sobe ou desce)
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// ParseDirection valida e normaliza a direção vinda da API
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionUp, DirectionDown:
		return Direction(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadDirection, s)
}

// Opposite retorna a direção contrária
func (d Direction) Opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

// Bias é o override administrativo de resultado por usuário.
// ACTUAL deixa o resultado por conta do mercado; FORCE_WIN/FORCE_LOSS
// determinam o resultado incondicionalmente.
type Bias string

const (
	BiasActual    Bias = "ACTUAL"
	BiasForceWin  Bias = "FORCE_WIN"
	BiasForceLoss Bias = "FORCE_LOSS"
)

func ParseBias(s string) (Bias, error) {
	switch Bias(s) {
	case BiasActual, BiasForceWin, BiasForceLoss:
		return Bias(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadBias, s)
}

// Input carrega os campos congelados da ordem necessários pro cálculo.
// ActualDirection é a direção "real" declarada no intake, quando houver.
type Input struct {
	AmountCents     int64
	DurationSec     int
	Requested       Direction
	ActualDirection *Direction
	EntryPrice      float64
	ExitPrice       float64
}

// Result é o desfecho calculado de uma ordem
type Result struct {
	Won                bool
	EffectiveDirection Direction
	RatePct            int
	ProfitLossCents    int64
}

// Resolver decide vitória/derrota quando o bias do usuário é ACTUAL.
// Implementações: resolução por preço (padrão) ou estratégias de teste.
type Resolver interface {
	Wins(in Input) bool
}

// MarketResolver é a estratégia padrão: direção declarada no intake tem
// precedência; na ausência dela compara preço de saída contra o de entrada.
// Sem movimento de preço e sem direção declarada, a ordem vence.
type MarketResolver struct{}

func (MarketResolver) Wins(in Input) bool {
	if in.ActualDirection != nil {
		return *in.ActualDirection == in.Requested
	}
	if in.ExitPrice != in.EntryPrice && in.EntryPrice > 0 && in.ExitPrice > 0 {
		if in.Requested == DirectionUp {
			return in.ExitPrice > in.EntryPrice
		}
		return in.ExitPrice < in.EntryPrice
	}
	return true
}

// Policy calcula o desfecho de uma ordem: função pura e determinística
// sobre os campos da ordem e o bias do usuário no momento da liquidação.
type Policy struct {
	rates    map[int]int // duração (s) -> taxa de lucro (%)
	resolver Resolver
}

// NewPolicy cria a política com a tabela de taxas por duração.
// resolver pode ser nil; nesse caso usa MarketResolver.
func NewPolicy(rates map[int]int, resolver Resolver) *Policy {
	if resolver == nil {
		resolver = MarketResolver{}
	}
	cp := make(map[int]int, len(rates))
	for d, p := range rates {
		cp[d] = p
	}
	return &Policy{rates: cp, resolver: resolver}
}

// ValidDuration informa se a duração pertence ao conjunto enumerado
func (p *Policy) ValidDuration(durationSec int) bool {
	_, ok := p.rates[durationSec]
	return ok
}

// Compute determina o desfecho da ordem.
// Duração fora da tabela indica violação de contrato (deveria ter sido
// barrada no intake) e retorna ErrUnknownDuration.
func (p *Policy) Compute(in Input, bias Bias) (Result, error) {
	rate, ok := p.rates[in.DurationSec]
	if !ok {
		return Result{}, fmt.Errorf("%w: %ds", ErrUnknownDuration, in.DurationSec)
	}

	base := in.AmountCents * int64(rate) / 100

	won := false
	switch bias {
	case BiasForceWin:
		won = true
	case BiasForceLoss:
		won = false
	default:
		won = p.resolver.Wins(in)
	}

	res := Result{Won: won, RatePct: rate}
	if won {
		res.EffectiveDirection = in.Requested
		res.ProfitLossCents = base
	} else {
		res.EffectiveDirection = in.Requested.Opposite()
		res.ProfitLossCents = -base
	}
	return res, nil
}
