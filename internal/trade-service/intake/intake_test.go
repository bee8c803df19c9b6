package intake_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/intake"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/ledger"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/orders"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/outcome"
	"github.com/radieske/crypto-options-platform-poc/pkg/contracts/events"
)

var testRules = orders.Rules{
	MinStakeCents: 100,
	Durations:     map[int]int{30: 20, 60: 30, 120: 40, 180: 50, 240: 60},
}

type fakePrices struct {
	price float64
	err   error
}

func (f fakePrices) Current(context.Context, string) (float64, error) { return f.price, f.err }

type fakePublisher struct {
	published []events.OrderPlaced
}

func (f *fakePublisher) PublishOrderPlaced(_ context.Context, e events.OrderPlaced) error {
	f.published = append(f.published, e)
	return nil
}

// failingStore recusa qualquer criação; usado pra exercitar a compensação
type failingStore struct {
	orders.Store
}

func (failingStore) Create(context.Context, *orders.Order) error {
	return errors.New("db down")
}

func newService(l ledger.Ledger, s orders.Store, p intake.PriceSource, pub intake.Publisher) *intake.Service {
	return &intake.Service{
		Log:    zap.NewNop(),
		Ledger: l,
		Store:  s,
		Prices: p,
		Publ:   pub,
		Rules:  testRules,
	}
}

func params() intake.PlaceOrderParams {
	return intake.PlaceOrderParams{
		UserID:      "u1",
		Symbol:      "BTCUSDT",
		Direction:   "UP",
		AmountCents: 1000,
		DurationSec: 60,
		EntryPrice:  64000,
	}
}

func TestPlaceOrderReservesAndCreates(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory()
	_, err := l.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)

	store := orders.NewMemory(testRules, nil)
	pub := &fakePublisher{}
	svc := newService(l, store, nil, pub)

	o, err := svc.PlaceOrder(ctx, params())
	require.NoError(t, err)
	assert.Equal(t, orders.StatusActive, o.Status)
	assert.Equal(t, float64(64000), o.EntryPrice)

	acc, err := l.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(9000), acc.AvailableCents)
	assert.Equal(t, int64(1000), acc.FrozenCents)

	require.Len(t, pub.published, 1)
	assert.Equal(t, o.ID, pub.published[0].OrderID)
}

func TestPlaceOrderInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory()
	_, err := l.Deposit(ctx, "u1", 500)
	require.NoError(t, err)

	store := orders.NewMemory(testRules, nil)
	svc := newService(l, store, nil, nil)

	_, err = svc.PlaceOrder(ctx, params())
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.True(t, intake.IsUserFacing(err))

	acc, err := l.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), acc.AvailableCents)
	assert.Equal(t, int64(0), acc.FrozenCents)

	got, err := store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPlaceOrderValidationBeforeSideEffects(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory()
	_, err := l.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)
	svc := newService(l, orders.NewMemory(testRules, nil), nil, nil)

	cases := []func(*intake.PlaceOrderParams){
		func(p *intake.PlaceOrderParams) { p.AmountCents = 50 },
		func(p *intake.PlaceOrderParams) { p.DurationSec = 77 },
		func(p *intake.PlaceOrderParams) { p.Direction = "SIDEWAYS" },
		func(p *intake.PlaceOrderParams) { p.ActualDirection = "FLAT" },
		func(p *intake.PlaceOrderParams) { p.UserID = "" },
	}
	for _, mutate := range cases {
		p := params()
		mutate(&p)
		_, err := svc.PlaceOrder(ctx, p)
		assert.ErrorIs(t, err, orders.ErrValidation)
	}

	// nenhuma reserva aconteceu
	acc, err := l.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), acc.AvailableCents)
}

func TestPlaceOrderRollsBackReserveOnCreateFailure(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory()
	_, err := l.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)

	svc := newService(l, failingStore{}, nil, nil)

	_, err = svc.PlaceOrder(ctx, params())
	require.Error(t, err)
	assert.False(t, intake.IsUserFacing(err))

	// a reserva foi devolvida
	acc, err := l.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), acc.AvailableCents)
	assert.Equal(t, int64(0), acc.FrozenCents)
}

func TestPlaceOrderEntryPriceFromCache(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory()
	_, err := l.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)

	svc := newService(l, orders.NewMemory(testRules, nil), fakePrices{price: 64123.5}, nil)

	p := params()
	p.EntryPrice = 0
	o, err := svc.PlaceOrder(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 64123.5, o.EntryPrice)
}

func TestPlaceOrderNoPriceIsValidationError(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory()
	_, err := l.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)

	svc := newService(l, orders.NewMemory(testRules, nil), fakePrices{err: errors.New("nil")}, nil)

	p := params()
	p.EntryPrice = 0
	_, err = svc.PlaceOrder(ctx, p)
	assert.ErrorIs(t, err, orders.ErrValidation)
}

func TestPlaceOrderStoresActualDirection(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory()
	_, err := l.Deposit(ctx, "u1", 10000)
	require.NoError(t, err)

	store := orders.NewMemory(testRules, nil)
	svc := newService(l, store, nil, nil)

	p := params()
	p.ActualDirection = "DOWN"
	o, err := svc.PlaceOrder(ctx, p)
	require.NoError(t, err)

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ActualDirection)
	assert.Equal(t, outcome.DirectionDown, *got.ActualDirection)
}
