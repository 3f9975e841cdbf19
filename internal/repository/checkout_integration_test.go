package repository_test

import (
	"errors"
	"sync"

	"github.com/ariefcatur/retail-checkout/internal/checkout"
	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func (suite *repositorySuite) newCheckout() *checkout.Service {
	return checkout.New(suite.catalog, suite.carts, suite.orders, zaptest.NewLogger(suite.T()))
}

func (suite *repositorySuite) TestCheckout() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	a := suite.seedProduct("10.00", 5)
	b := suite.seedProduct("2.50", 1)
	owner := gofakeit.UUID()
	require.NoError(t, suite.carts.UpsertItem(ctx, owner, a.ID, 2))
	require.NoError(t, suite.carts.UpsertItem(ctx, owner, b.ID, 1))

	order, err := suite.newCheckout().Checkout(ctx, owner)
	require.NoError(t, err)

	assert.True(t, order.Total.Amount.Equal(decimal.RequireFromString("22.50")), order.Total.String())
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, a.ID, order.Lines[0].ProductID)
	assert.Equal(t, b.ID, order.Lines[1].ProductID)

	assert.Equal(t, 3, suite.stockOf(a))
	assert.Equal(t, 0, suite.stockOf(b))

	cart, err := suite.carts.GetCart(ctx, owner)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	stored, err := suite.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Amount.Equal(order.Total.Amount))

	pending, err := suite.pendingOutbox()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, order.ID.String(), pending[0].Key)
}

func (suite *repositorySuite) TestCheckout_Aborts() {
	defer suite.deleteAll()

	suite.Run("insufficient stock: nothing changes", func() {
		t := suite.T()
		ctx := t.Context()

		a := suite.seedProduct("1", 5)
		b := suite.seedProduct("1", 1)
		owner := gofakeit.UUID()
		require.NoError(t, suite.carts.UpsertItem(ctx, owner, a.ID, 2))
		require.NoError(t, suite.carts.UpsertItem(ctx, owner, b.ID, 2))

		_, err := suite.newCheckout().Checkout(ctx, owner)

		var cerr *checkout.Error
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, checkout.CodeInsufficientStock, cerr.Code)
		assert.Contains(t, cerr.Detail, b.ID.String())

		assert.Equal(t, 5, suite.stockOf(a))
		assert.Equal(t, 1, suite.stockOf(b))

		cart, err := suite.carts.GetCart(ctx, owner)
		require.NoError(t, err)
		assert.Len(t, cart.Items, 2)

		orders, err := suite.orders.ListOrders(ctx, owner)
		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	suite.Run("empty cart", func() {
		_, err := suite.newCheckout().Checkout(suite.T().Context(), gofakeit.UUID())

		var cerr *checkout.Error
		require.ErrorAs(suite.T(), err, &cerr)
		assert.Equal(suite.T(), checkout.CodeEmptyCart, cerr.Code)
	})

	suite.Run("product deleted after it was added", func() {
		t := suite.T()
		ctx := t.Context()

		p := suite.seedProduct("1", 5)
		owner := gofakeit.UUID()
		require.NoError(t, suite.carts.UpsertItem(ctx, owner, p.ID, 1))
		_, err := suite.catalog.DeleteProduct(ctx, p.ID)
		require.NoError(t, err)

		_, err = suite.newCheckout().Checkout(ctx, owner)

		var cerr *checkout.Error
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, checkout.CodeProductNotFound, cerr.Code)
	})
}

func (suite *repositorySuite) TestCheckout_LastUnitRace() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	const buyers = 8
	p := suite.seedProduct("9.99", 1)
	owners := make([]string, buyers)
	for i := range owners {
		owners[i] = gofakeit.UUID()
		require.NoError(t, suite.carts.UpsertItem(ctx, owners[i], p.ID, 1))
	}

	svc := suite.newCheckout()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     int
		outcome = map[checkout.Code]int{}
	)
	for _, owner := range owners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Checkout(ctx, owner)

			mu.Lock()
			defer mu.Unlock()
			var cerr *checkout.Error
			switch {
			case err == nil:
				won++
			case errors.As(err, &cerr):
				outcome[cerr.Code]++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, buyers-1, outcome[checkout.CodeInsufficientStock])
	assert.Equal(t, 0, suite.stockOf(p))
}

func (suite *repositorySuite) TestCheckout_SameOwnerConcurrent() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	const calls = 5
	a := suite.seedProduct("3", 50)
	b := suite.seedProduct("1", 50)
	owner := gofakeit.UUID()
	require.NoError(t, suite.carts.UpsertItem(ctx, owner, a.ID, 2))
	require.NoError(t, suite.carts.UpsertItem(ctx, owner, b.ID, 3))

	svc := suite.newCheckout()
	errs := make([]error, calls)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Checkout(ctx, owner)
		}()
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var cerr *checkout.Error
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, checkout.CodeEmptyCart, cerr.Code)
	}
	assert.Equal(t, 1, succeeded)

	orders, err := suite.orders.ListOrders(ctx, owner)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Len(t, orders[0].Lines, 2)

	assert.Equal(t, 48, suite.stockOf(a))
	assert.Equal(t, 47, suite.stockOf(b))
}

// The largest price times a large quantity must still record.
func (suite *repositorySuite) TestCheckout_LargeTotal() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	p := suite.seedProduct("9999999999.99", 1000)
	owner := gofakeit.UUID()
	require.NoError(t, suite.carts.UpsertItem(ctx, owner, p.ID, 1000))

	order, err := suite.newCheckout().Checkout(ctx, owner)
	require.NoError(t, err)

	want := decimal.RequireFromString("9999999999990.00")
	assert.True(t, order.Total.Amount.Equal(want), order.Total.String())

	stored, err := suite.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Amount.Equal(want), stored.Total.String())
	assert.Equal(t, 0, suite.stockOf(p))
}
