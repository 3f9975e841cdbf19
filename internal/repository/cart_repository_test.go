package repository_test

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (suite *repositorySuite) TestUpsertItem() {
	defer suite.deleteAll()

	tests := []struct {
		name      string
		ownerID   string
		quantity  int
		wantError string
	}{
		{
			name:     "add item to cart: ok",
			ownerID:  gofakeit.UUID(),
			quantity: gofakeit.IntRange(1, 10),
		},
		{
			name:      "add item with empty owner ID: error",
			ownerID:   "",
			quantity:  1,
			wantError: "ownerID is empty",
		},
		{
			name:      "add item with zero quantity: error",
			ownerID:   gofakeit.UUID(),
			quantity:  0,
			wantError: domain.ErrInvalidQuantity.Error(),
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()
			productID := uuid.New()

			err := suite.carts.UpsertItem(ctx, tt.ownerID, productID, tt.quantity)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)

			cart, err := suite.carts.GetCart(ctx, tt.ownerID)
			require.NoError(t, err)
			require.Len(t, cart.Items, 1)
			assert.Equal(t, productID, cart.Items[0].ProductID)
			assert.Equal(t, tt.quantity, cart.Items[0].Quantity)
			assert.False(t, cart.Items[0].CreatedAt.IsZero())
		})
	}
}

func (suite *repositorySuite) TestUpsertItem_KeepsInsertionOrder() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	owner := gofakeit.UUID()
	first, second, third := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, suite.carts.UpsertItem(ctx, owner, first, 1))
	require.NoError(t, suite.carts.UpsertItem(ctx, owner, second, 1))
	require.NoError(t, suite.carts.UpsertItem(ctx, owner, third, 1))
	require.NoError(t, suite.carts.UpsertItem(ctx, owner, first, 4))

	cart, err := suite.carts.GetCart(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 3)
	assert.Equal(t, first, cart.Items[0].ProductID)
	assert.Equal(t, 4, cart.Items[0].Quantity)
	assert.Equal(t, second, cart.Items[1].ProductID)
	assert.Equal(t, third, cart.Items[2].ProductID)
}

func (suite *repositorySuite) TestDeleteItem() {
	defer suite.deleteAll()

	tests := []struct {
		name        string
		ownerID     string
		existing    bool
		wantDeleted bool
		wantError   string
	}{
		{
			name:        "delete existing item: ok",
			ownerID:     gofakeit.UUID(),
			existing:    true,
			wantDeleted: true,
		},
		{
			name:        "delete non-existing item: not found",
			ownerID:     gofakeit.UUID(),
			wantDeleted: false,
		},
		{
			name:      "delete with empty owner ID: error",
			ownerID:   "",
			wantError: "ownerID is empty",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()
			productID := uuid.New()

			// Setup: another product is always present
			if tt.ownerID != "" {
				require.NoError(t, suite.carts.UpsertItem(ctx, tt.ownerID, uuid.New(), 1))
			}
			if tt.existing {
				require.NoError(t, suite.carts.UpsertItem(ctx, tt.ownerID, productID, 1))
			}

			deleted, err := suite.carts.DeleteItem(ctx, tt.ownerID, productID)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDeleted, deleted)

			cart, err := suite.carts.GetCart(ctx, tt.ownerID)
			require.NoError(t, err)
			assert.Len(t, cart.Items, 1)
		})
	}
}

func (suite *repositorySuite) TestClearCart() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	owner, other := gofakeit.UUID(), gofakeit.UUID()
	require.NoError(t, suite.carts.UpsertItem(ctx, owner, uuid.New(), 1))
	require.NoError(t, suite.carts.UpsertItem(ctx, owner, uuid.New(), 2))
	require.NoError(t, suite.carts.UpsertItem(ctx, other, uuid.New(), 3))

	require.NoError(t, suite.carts.ClearCart(ctx, owner))
	// clearing twice is harmless
	require.NoError(t, suite.carts.ClearCart(ctx, owner))

	cart, err := suite.carts.GetCart(ctx, owner)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, owner, cart.OwnerID)

	untouched, err := suite.carts.GetCart(ctx, other)
	require.NoError(t, err)
	assert.Len(t, untouched.Items, 1)

	require.EqualError(t, suite.carts.ClearCart(ctx, ""), "ownerID is empty")
}

func (suite *repositorySuite) TestMergeItem() {
	defer suite.deleteAll()

	tests := []struct {
		name     string
		existing int
		add      int
		limit    int
		want     int
	}{
		{name: "new line: ok", add: 2, limit: 10, want: 2},
		{name: "new line capped: ok", add: 7, limit: 3, want: 3},
		{name: "merge into line: ok", existing: 2, add: 3, limit: 10, want: 5},
		{name: "merge capped at limit: ok", existing: 4, add: 5, limit: 6, want: 6},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()
			owner, productID := gofakeit.UUID(), uuid.New()
			if tt.existing > 0 {
				require.NoError(t, suite.carts.UpsertItem(ctx, owner, productID, tt.existing))
			}

			require.NoError(t, suite.carts.MergeItem(ctx, owner, productID, tt.add, tt.limit))

			cart, err := suite.carts.GetCart(ctx, owner)
			require.NoError(t, err)
			it, ok := cart.Item(productID)
			require.True(t, ok)
			assert.Equal(t, tt.want, it.Quantity)
		})
	}

	suite.Run("zero quantity: error", func() {
		err := suite.carts.MergeItem(suite.T().Context(), gofakeit.UUID(), uuid.New(), 0, 5)
		suite.ErrorIs(err, domain.ErrInvalidQuantity)
	})
}

func (suite *repositorySuite) TestMergeItem_Concurrent() {
	defer suite.deleteAll()
	t := suite.T()
	ctx := t.Context()

	const adds = 20
	owner, productID := gofakeit.UUID(), uuid.New()

	var wg sync.WaitGroup
	for range adds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, suite.carts.MergeItem(ctx, owner, productID, 1, 100))
		}()
	}
	wg.Wait()

	cart, err := suite.carts.GetCart(ctx, owner)
	require.NoError(t, err)
	it, ok := cart.Item(productID)
	require.True(t, ok)
	assert.Equal(t, adds, it.Quantity)
}

func (suite *repositorySuite) TestLockCart() {
	t := suite.T()
	ctx := t.Context()
	owner := gofakeit.UUID()

	unlock, err := suite.carts.LockCart(ctx, owner)
	require.NoError(t, err)

	// another owner is not blocked
	unlockOther, err := suite.carts.LockCart(ctx, gofakeit.UUID())
	require.NoError(t, err)
	unlockOther()

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	_, err = suite.carts.LockCart(short, owner)
	cancel()
	require.Error(t, err)

	unlock()

	unlock, err = suite.carts.LockCart(ctx, owner)
	require.NoError(t, err)
	unlock()

	_, err = suite.carts.LockCart(ctx, "")
	require.EqualError(t, err, "ownerID is empty")
}
