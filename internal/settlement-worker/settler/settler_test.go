package settler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/crypto-options-platform-poc/internal/settlement-worker/settler"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/intake"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/ledger"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/orders"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/outcome"
	"github.com/radieske/crypto-options-platform-poc/pkg/contracts/events"
)

var rates = map[int]int{30: 20, 60: 30, 120: 40, 180: 50, 240: 60}

var testRules = orders.Rules{MinStakeCents: 100, Durations: rates}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakePrices struct{ price float64 }

func (f fakePrices) Current(context.Context, string) (float64, error) {
	if f.price <= 0 {
		return 0, errors.New("unavailable")
	}
	return f.price, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.OrderSettled
}

func (f *fakePublisher) PublishOrderSettled(_ context.Context, e events.OrderSettled) error {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
	return nil
}

// flakyLedger falha as primeiras N liquidações no ledger, pra exercitar
// a fila de reconciliação
type flakyLedger struct {
	ledger.Ledger
	mu       sync.Mutex
	failures int
}

func (f *flakyLedger) Settle(ctx context.Context, userID string, stake, pl int64) (ledger.Account, error) {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return ledger.Account{}, errors.New("ledger db down")
	}
	return f.Ledger.Settle(ctx, userID, stake, pl)
}

type fixture struct {
	clock  *fakeClock
	ledger *ledger.Memory
	store  *orders.Memory
	disc   *settler.MemoryDiscrepancies
	publ   *fakePublisher
	s      *settler.Settler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock()
	l := ledger.NewMemory()
	store := orders.NewMemory(testRules, clock.Now)
	disc := settler.NewMemoryDiscrepancies()
	publ := &fakePublisher{}
	return &fixture{
		clock:  clock,
		ledger: l,
		store:  store,
		disc:   disc,
		publ:   publ,
		s: &settler.Settler{
			Log:    zap.NewNop(),
			Store:  store,
			Ledger: l,
			Policy: outcome.NewPolicy(rates, nil),
			Publ:   publ,
			Disc:   disc,
			Now:    clock.Now,
		},
	}
}

func (fx *fixture) placeOrder(t *testing.T, userID string, amount int64, dur int) *orders.Order {
	t.Helper()
	svc := &intake.Service{Log: zap.NewNop(), Ledger: fx.ledger, Store: fx.store, Rules: testRules}
	o, err := svc.PlaceOrder(context.Background(), intake.PlaceOrderParams{
		UserID:      userID,
		Symbol:      "BTCUSDT",
		Direction:   "UP",
		AmountCents: amount,
		DurationSec: dur,
		EntryPrice:  64000,
	})
	require.NoError(t, err)
	return o
}

// Cenário fim-a-fim do usuário com FORCE_WIN:
// depósito 10000, ordem de 1000 por 60s -> taxa 30% -> +300
func TestEndToEndForceWin(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.ledger.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)
	require.NoError(t, fx.ledger.SetBias(ctx, "u1", outcome.BiasForceWin))

	o := fx.placeOrder(t, "u1", 1000, 60)

	acc, err := fx.ledger.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(9000), acc.AvailableCents)
	assert.Equal(t, int64(1000), acc.FrozenCents)

	fx.clock.Advance(61 * time.Second)
	fx.s.Tick(ctx)

	acc, err = fx.ledger.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.FrozenCents)
	assert.Equal(t, int64(10300), acc.AvailableCents)
	assert.Equal(t, int64(10300), acc.BalanceCents)

	settled, err := fx.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, settled.Status)
	require.NotNil(t, settled.ProfitLossCents)
	assert.Equal(t, int64(300), *settled.ProfitLossCents)
	assert.Equal(t, outcome.DirectionUp, settled.EffectiveDirection)

	require.Len(t, fx.publ.events, 1)
	assert.Equal(t, "WIN", fx.publ.events[0].Outcome)
}

// Mesmo cenário com FORCE_LOSS -> -300
func TestEndToEndForceLoss(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.ledger.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)
	require.NoError(t, fx.ledger.SetBias(ctx, "u1", outcome.BiasForceLoss))

	o := fx.placeOrder(t, "u1", 1000, 60)

	fx.clock.Advance(61 * time.Second)
	fx.s.Tick(ctx)

	acc, err := fx.ledger.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.FrozenCents)
	assert.Equal(t, int64(9700), acc.AvailableCents)
	assert.Equal(t, int64(9700), acc.BalanceCents)

	settled, err := fx.store.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, settled.ProfitLossCents)
	assert.Equal(t, int64(-300), *settled.ProfitLossCents)
	assert.Equal(t, outcome.DirectionDown, settled.EffectiveDirection)
}

// bias é lido na liquidação, não na criação da ordem
func TestBiasReadAtSettlementTime(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.ledger.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)

	fx.placeOrder(t, "u1", 1000, 60)

	// admin muda o bias depois da ordem criada
	require.NoError(t, fx.ledger.SetBias(ctx, "u1", outcome.BiasForceLoss))

	fx.clock.Advance(61 * time.Second)
	fx.s.Tick(ctx)

	acc, err := fx.ledger.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(9700), acc.BalanceCents)
}

// Rodar o tick duas vezes seguidas produz o mesmo saldo final
func TestDuplicateTickIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.ledger.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)
	require.NoError(t, fx.ledger.SetBias(ctx, "u1", outcome.BiasForceWin))
	fx.placeOrder(t, "u1", 1000, 60)

	fx.clock.Advance(61 * time.Second)
	fx.s.Tick(ctx)
	fx.s.Tick(ctx)

	acc, err := fx.ledger.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10300), acc.BalanceCents)
	assert.Equal(t, int64(0), acc.FrozenCents)

	// só um evento publicado
	assert.Len(t, fx.publ.events, 1)
}

// Dois liquidadores concorrentes sobre o mesmo lote: exatamente uma
// liquidação efetiva por ordem
func TestConcurrentTicksSettleOnce(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.ledger.Deposit(ctx, "u1", 100000)
	require.NoError(t, err)
	require.NoError(t, fx.ledger.SetBias(ctx, "u1", outcome.BiasForceWin))

	for i := 0; i < 10; i++ {
		fx.placeOrder(t, "u1", 1000, 30)
	}
	fx.clock.Advance(31 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fx.s.Tick(ctx)
		}()
	}
	wg.Wait()

	// 10 ordens, stake 1000, taxa 20% -> +200 cada
	acc, err := fx.ledger.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.FrozenCents)
	assert.Equal(t, int64(102000), acc.BalanceCents)
	assert.Equal(t, acc.BalanceCents, acc.AvailableCents)
}

// Falha no ledger depois do COMPLETED vira pendência e converge via retry
func TestLedgerFailureGoesToReconciliationQueue(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	flaky := &flakyLedger{Ledger: fx.ledger, failures: 1}
	fx.s.Ledger = flaky

	var discrepancies int
	fx.s.OnDiscrepancy = func() { discrepancies++ }

	_, err := fx.ledger.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)
	require.NoError(t, fx.ledger.SetBias(ctx, "u1", outcome.BiasForceWin))
	o := fx.placeOrder(t, "u1", 1000, 60)

	fx.clock.Advance(61 * time.Second)
	fx.s.Tick(ctx)

	// ordem completou, mas o saldo ainda não refletiu
	settled, err := fx.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, settled.Status)
	assert.Equal(t, 1, discrepancies)

	acc, err := fx.ledger.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), acc.FrozenCents)

	pending, err := fx.disc.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, o.ID, pending[0].OrderID)

	// próximo tick reaplica a pendência e o saldo converge
	fx.s.Tick(ctx)

	acc, err = fx.ledger.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.FrozenCents)
	assert.Equal(t, int64(10300), acc.BalanceCents)

	pending, err = fx.disc.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// Falha antes da transição (conta não carregada) deixa a ordem ACTIVE
func TestAccountFailureLeavesOrderActive(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.ledger.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)
	o := fx.placeOrder(t, "u1", 1000, 60)

	// ledger que não consegue ler a conta
	broken := &brokenGetLedger{Ledger: fx.ledger, failures: 1}
	fx.s.Ledger = broken

	fx.clock.Advance(61 * time.Second)
	fx.s.Tick(ctx)

	got, err := fx.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusActive, got.Status)

	// próximo tick recupera
	fx.s.Tick(ctx)
	got, err = fx.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, got.Status)
}

type brokenGetLedger struct {
	ledger.Ledger
	mu       sync.Mutex
	failures int
}

func (b *brokenGetLedger) Get(ctx context.Context, userID string) (ledger.Account, error) {
	b.mu.Lock()
	fail := b.failures > 0
	if fail {
		b.failures--
	}
	b.mu.Unlock()
	if fail {
		return ledger.Account{}, errors.New("account db down")
	}
	return b.Ledger.Get(ctx, userID)
}

// Resultado ACTUAL apurado por preço: exit abaixo do entry derrota o UP
func TestActualOutcomeUsesExitPrice(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.s.Prices = fakePrices{price: 63000}

	_, err := fx.ledger.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)
	o := fx.placeOrder(t, "u1", 1000, 60) // UP @ 64000

	fx.clock.Advance(61 * time.Second)
	fx.s.Tick(ctx)

	settled, err := fx.store.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, settled.ProfitLossCents)
	assert.Equal(t, int64(-300), *settled.ProfitLossCents)
	require.NotNil(t, settled.ExitPrice)
	assert.Equal(t, float64(63000), *settled.ExitPrice)

	acc, err := fx.ledger.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(9700), acc.BalanceCents)
}

// Sem feed de preço, a ordem liquida no entry price e vence por default
func TestNoPriceFeedDefaultsToWin(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.s.Prices = fakePrices{} // feed indisponível

	_, err := fx.ledger.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)
	fx.placeOrder(t, "u1", 1000, 60)

	fx.clock.Advance(61 * time.Second)
	fx.s.Tick(ctx)

	acc, err := fx.ledger.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10300), acc.BalanceCents)
}

// Run respeita cancelamento de contexto
func TestRunStopsOnContextCancel(t *testing.T) {
	fx := newFixture(t)
	fx.s.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("settler did not stop")
	}
}
