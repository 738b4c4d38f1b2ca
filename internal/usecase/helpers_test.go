package usecase

import (
	"context"
	"testing"
	"time"

	"beerstore/internal/domain/shipping"
	"beerstore/internal/infra/cache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	ctx       = context.Background()
	fixedTime = time.Date(2026, 3, 14, 15, 4, 5, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// 最低注文額なしの表（少額の宅配も通す）
func noMinimumTable() shipping.Table {
	t := shipping.DefaultTable()
	t.MinimumOrder = decimal.Zero
	return t
}

type checkoutFixture struct {
	store    *memStore
	uc       *OrderUsecase
	admin    *AdminOrderUsecase
	notifier *recordingNotifier
}

func newCheckoutFixture(t *testing.T, table shipping.Table) checkoutFixture {
	t.Helper()
	s := newMemStore()
	n := &recordingNotifier{}

	uc := NewOrderUsecase(s, shipping.NewCalculator(table), DefaultPointsPolicy(), cache.Noop{}, n, zap.NewNop())
	uc.now = func() time.Time { return fixedTime }

	admin := NewAdminOrderUsecase(s, cache.Noop{}, n, zap.NewNop())
	admin.now = func() time.Time { return fixedTime }

	return checkoutFixture{store: s, uc: uc, admin: admin, notifier: n}
}

func (f checkoutFixture) addToCart(t *testing.T, userID, productID, qty int64) {
	t.Helper()
	_, err := memCarts{f.store}.AddQuantity(ctx, userID, productID, qty, decimal.Zero)
	require.NoError(t, err)
}

func assertCode(t *testing.T, err error, status int, code string) *HTTPError {
	t.Helper()
	require.Error(t, err)
	he, ok := AsHTTPError(err)
	require.True(t, ok, "expected HTTPError, got %T: %v", err, err)
	assert.Equal(t, status, he.Status)
	assert.Equal(t, code, he.Code)
	return he
}
