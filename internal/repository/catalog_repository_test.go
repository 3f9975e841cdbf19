package repository_test

import (
	"errors"
	"sync"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

func (suite *repositorySuite) TestCreateAndGetProduct() {
	defer suite.deleteAll()

	tests := []struct {
		name      string
		product   domain.Product
		wantError string
	}{
		{
			name: "create product: ok",
			product: domain.Product{
				Name:        gofakeit.ProductName(),
				Description: gofakeit.ProductDescription(),
				Category:    gofakeit.ProductCategory(),
				ImageURL:    gofakeit.URL(),
				Price:       randomMoney(),
				Stock:       gofakeit.IntRange(0, 100),
			},
		},
		{
			name: "create free product: ok",
			product: domain.Product{
				Name:  gofakeit.ProductName(),
				Price: domain.Money{Amount: decimal.Zero, Currency: randomCurrency()},
			},
		},
		{
			name:      "create product without name: error",
			product:   domain.Product{Price: randomMoney()},
			wantError: "invalid product: name is empty",
		},
		{
			name: "create product with negative stock: error",
			product: domain.Product{
				Name:  gofakeit.ProductName(),
				Price: randomMoney(),
				Stock: -1,
			},
			wantError: "invalid product: stock is negative",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()

			created, err := suite.catalog.CreateProduct(ctx, tt.product)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, created.ID)
			assert.False(t, created.CreatedAt.IsZero())

			got, err := suite.catalog.GetProduct(ctx, created.ID)
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(created, got, cmpOpts))
		})
	}
}

func (suite *repositorySuite) TestGetProduct_NotFound() {
	_, err := suite.catalog.GetProduct(suite.T().Context(), uuid.New())
	suite.ErrorIs(err, domain.ErrProductNotFound)
}

func (suite *repositorySuite) TestUpdateAndDeleteProduct() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	p := suite.seedProduct("10", 5)

	price := domain.NewMoney(decimal.RequireFromString("12.34"), currency.EUR)
	description, image := "stoneware, 350ml", "https://cdn.example.com/mug.png"
	updated, err := suite.catalog.UpdateProduct(ctx, p.ID, domain.ProductPatch{
		Price:       &price,
		Description: &description,
		ImageURL:    &image,
	})
	require.NoError(t, err)
	assert.Equal(t, p.Name, updated.Name)
	assert.Equal(t, 5, updated.Stock)

	got, err := suite.catalog.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(updated, got, cmpOpts))
	assert.Equal(t, "12.34 EUR", got.Price.String())
	assert.Equal(t, description, got.Description)
	assert.Equal(t, image, got.ImageURL)

	empty := ""
	_, err = suite.catalog.UpdateProduct(ctx, p.ID, domain.ProductPatch{Name: &empty})
	require.ErrorIs(t, err, domain.ErrInvalidProduct)

	name := "ghost"
	_, err = suite.catalog.UpdateProduct(ctx, uuid.New(), domain.ProductPatch{Name: &name})
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	deleted, err := suite.catalog.DeleteProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = suite.catalog.DeleteProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

// A price edit made from a stale read must not bring back sold units.
func (suite *repositorySuite) TestUpdateProduct_KeepsReservedStock() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	loaded := suite.seedProduct("10", 5)
	require.NoError(t, suite.catalog.ReserveStock(ctx, []domain.StockRequest{{ProductID: loaded.ID, Quantity: 2}}))

	price := loaded.Price
	price.Amount = decimal.RequireFromString("11")
	updated, err := suite.catalog.UpdateProduct(ctx, loaded.ID, domain.ProductPatch{Price: &price})
	require.NoError(t, err)

	assert.Equal(t, 3, updated.Stock)
	assert.Equal(t, 3, suite.stockOf(loaded))
}

func (suite *repositorySuite) TestAdjustStock() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	p := suite.seedProduct("1", 2)

	got, err := suite.catalog.AdjustStock(ctx, p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Stock)

	got, err = suite.catalog.AdjustStock(ctx, p.ID, -7)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)

	_, err = suite.catalog.AdjustStock(ctx, p.ID, -1)
	var ise *domain.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, domain.InsufficientStockError{ProductID: p.ID, Available: 0, Requested: 1}, *ise)
	assert.Equal(t, 0, suite.stockOf(p))

	_, err = suite.catalog.AdjustStock(ctx, p.ID, 0)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = suite.catalog.AdjustStock(ctx, uuid.New(), 1)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

// Restocks racing reservations must neither lose nor invent units.
func (suite *repositorySuite) TestAdjustStock_ConcurrentWithReservations() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	const rounds = 20
	p := suite.seedProduct("1", rounds)

	var wg sync.WaitGroup
	for range rounds {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, suite.catalog.ReserveStock(ctx, []domain.StockRequest{{ProductID: p.ID, Quantity: 1}}))
		}()
		go func() {
			defer wg.Done()
			_, err := suite.catalog.AdjustStock(ctx, p.ID, 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// every unit seeded was sold, every restock kept
	assert.Equal(t, 2*rounds, suite.stockOf(p))
}

func (suite *repositorySuite) TestListProducts() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	for _, name := range []string{"Blue Mug", "Red Mug", "Tea_Pot", "Kettle 100%"} {
		_, err := suite.catalog.CreateProduct(ctx, domain.Product{Name: name, Price: randomMoney(), Stock: 1})
		require.NoError(t, err)
	}

	tests := []struct {
		name      string
		filter    domain.ProductFilter
		wantNames []string
		wantTotal int
		wantPages int
	}{
		{
			name:      "no search, first page: ok",
			filter:    domain.ProductFilter{Page: 1, Limit: 2},
			wantNames: []string{"Blue Mug", "Kettle 100%"},
			wantTotal: 4,
			wantPages: 2,
		},
		{
			name:      "no search, second page: ok",
			filter:    domain.ProductFilter{Page: 2, Limit: 2},
			wantNames: []string{"Red Mug", "Tea_Pot"},
			wantTotal: 4,
			wantPages: 2,
		},
		{
			name:      "case insensitive search: ok",
			filter:    domain.ProductFilter{Search: "mUG"},
			wantNames: []string{"Blue Mug", "Red Mug"},
			wantTotal: 2,
			wantPages: 1,
		},
		{
			name:      "wildcards are literal: ok",
			filter:    domain.ProductFilter{Search: "_"},
			wantNames: []string{"Tea_Pot"},
			wantTotal: 1,
			wantPages: 1,
		},
		{
			name:      "percent is literal: ok",
			filter:    domain.ProductFilter{Search: "%"},
			wantNames: []string{"Kettle 100%"},
			wantTotal: 1,
			wantPages: 1,
		},
		{
			name:      "page past the end: empty",
			filter:    domain.ProductFilter{Page: 9, Limit: 2},
			wantTotal: 4,
			wantPages: 2,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()

			page, err := suite.catalog.ListProducts(t.Context(), tt.filter)
			require.NoError(t, err)

			var names []string
			for _, p := range page.Items {
				names = append(names, p.Name)
			}
			assert.Empty(t, cmp.Diff(tt.wantNames, names, cmpopts.EquateEmpty()))
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Equal(t, tt.wantPages, page.Pages)
		})
	}
}

func (suite *repositorySuite) TestReserveStock() {
	defer suite.deleteAll()

	tests := []struct {
		name       string
		stocks     []int
		requested  []int
		wantStocks []int
		wantShort  int // index into the batch, -1 when the batch fits
	}{
		{
			name:       "whole batch fits: ok",
			stocks:     []int{5, 1},
			requested:  []int{2, 1},
			wantStocks: []int{3, 0},
			wantShort:  -1,
		},
		{
			name:       "second product short: nothing changes",
			stocks:     []int{5, 0},
			requested:  []int{2, 1},
			wantStocks: []int{5, 0},
			wantShort:  1,
		},
		{
			name:       "both short: first by batch order reported",
			stocks:     []int{1, 1, 9},
			requested:  []int{9, 2, 3},
			wantStocks: []int{1, 1, 9},
			wantShort:  0,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()

			var (
				products []domain.Product
				batch    []domain.StockRequest
			)
			for i, stock := range tt.stocks {
				p := suite.seedProduct("1", stock)
				products = append(products, p)
				batch = append(batch, domain.StockRequest{ProductID: p.ID, Quantity: tt.requested[i]})
			}

			err := suite.catalog.ReserveStock(ctx, batch)
			if tt.wantShort >= 0 {
				var ise *domain.InsufficientStockError
				require.ErrorAs(t, err, &ise)
				assert.Equal(t, domain.InsufficientStockError{
					ProductID: products[tt.wantShort].ID,
					Available: tt.stocks[tt.wantShort],
					Requested: tt.requested[tt.wantShort],
				}, *ise)
			} else {
				require.NoError(t, err)
			}

			for i, p := range products {
				assert.Equal(t, tt.wantStocks[i], suite.stockOf(p), "product %d", i)
			}
		})
	}
}

func (suite *repositorySuite) TestReserveStock_InvalidBatch() {
	defer suite.deleteAll()

	p := suite.seedProduct("1", 5)

	tests := []struct {
		name    string
		batch   []domain.StockRequest
		wantErr error
	}{
		{name: "empty batch: invalid", batch: nil, wantErr: domain.ErrInvalidCartState},
		{name: "zero quantity: invalid", batch: []domain.StockRequest{{ProductID: p.ID}}, wantErr: domain.ErrInvalidCartState},
		{
			name:    "duplicate product: invalid",
			batch:   []domain.StockRequest{{ProductID: p.ID, Quantity: 1}, {ProductID: p.ID, Quantity: 1}},
			wantErr: domain.ErrInvalidCartState,
		},
		{
			name:    "unknown product: not found",
			batch:   []domain.StockRequest{{ProductID: p.ID, Quantity: 1}, {ProductID: uuid.New(), Quantity: 1}},
			wantErr: domain.ErrProductNotFound,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			err := suite.catalog.ReserveStock(suite.T().Context(), tt.batch)
			suite.ErrorIs(err, tt.wantErr)
		})
	}

	suite.Equal(5, suite.stockOf(p))
}

func (suite *repositorySuite) TestReserveStock_LastUnit() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	const workers = 10
	p := suite.seedProduct("1", 1)

	errs := make([]error, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = suite.catalog.ReserveStock(ctx, []domain.StockRequest{{ProductID: p.ID, Quantity: 1}})
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
		var ise *domain.InsufficientStockError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, 0, ise.Available)
		assert.Equal(t, 1, ise.Requested)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, suite.stockOf(p))
}

// Overlapping batches in opposite order must neither deadlock nor lose updates.
func (suite *repositorySuite) TestReserveStock_OverlappingBatches() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	const (
		initial = 60
		rounds  = 40
	)
	a := suite.seedProduct("1", initial)
	b := suite.seedProduct("1", initial)

	var (
		mu       sync.Mutex
		reserved int
		wg       sync.WaitGroup
	)
	for i := range rounds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := []domain.StockRequest{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}}
			if i%2 == 1 {
				batch[0], batch[1] = batch[1], batch[0]
			}
			err := suite.catalog.ReserveStock(ctx, batch)
			var ise *domain.InsufficientStockError
			if err != nil && !errors.As(err, &ise) {
				assert.NoError(t, err)
				return
			}
			if err == nil {
				mu.Lock()
				reserved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, rounds, reserved)
	assert.Equal(t, initial-rounds, suite.stockOf(a))
	assert.Equal(t, initial-rounds, suite.stockOf(b))
}
