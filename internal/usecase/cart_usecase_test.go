package usecase

import (
	"net/http"
	"sync"
	"testing"

	repo "beerstore/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCartUsecase(s *memStore) *CartUsecase {
	return NewCartUsecase(memCarts{s}, memProducts{s})
}

func TestCart_AddAccumulatesSameProduct(t *testing.T) {
	s := newMemStore()
	p := s.addProduct("Lager", "5.99", 10, 0)
	uc := newCartUsecase(s)

	_, err := uc.AddToCart(ctx, 1, AddCartInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	out, err := uc.AddToCart(ctx, 1, AddCartInput{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)

	require.Len(t, out.Items, 1)
	assert.Equal(t, int64(5), out.Items[0].Quantity)
	assert.True(t, dec("29.95").Equal(out.Subtotal))
	assert.False(t, out.Items[0].StockWarning)
}

func TestCart_NonPositiveQuantityRemoves(t *testing.T) {
	s := newMemStore()
	p := s.addProduct("Lager", "5.99", 10, 0)
	uc := newCartUsecase(s)

	_, err := uc.AddToCart(ctx, 1, AddCartInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	out, err := uc.SetQuantity(ctx, 1, p.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, out.Items)

	_, err = uc.AddToCart(ctx, 1, AddCartInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	out, err = uc.AddToCart(ctx, 1, AddCartInput{ProductID: p.ID, Quantity: -4})
	require.NoError(t, err)
	assert.Empty(t, out.Items)
}

func TestCart_SetQuantityOverwrites(t *testing.T) {
	s := newMemStore()
	p := s.addProduct("Lager", "2.50", 10, 0)
	uc := newCartUsecase(s)

	_, err := uc.AddToCart(ctx, 1, AddCartInput{ProductID: p.ID, Quantity: 5})
	require.NoError(t, err)
	out, err := uc.SetQuantity(ctx, 1, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, int64(2), out.Items[0].Quantity)
	assert.True(t, dec("5.00").Equal(out.Items[0].Subtotal))
}

// 在庫を超えてもカートには入る（警告だけ）
func TestCart_StockWarning(t *testing.T) {
	s := newMemStore()
	p := s.addProduct("Rare", "10", 2, 0)
	uc := newCartUsecase(s)

	out, err := uc.AddToCart(ctx, 1, AddCartInput{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.True(t, out.Items[0].StockWarning)
}

func TestCart_UnknownOrInactiveProduct(t *testing.T) {
	s := newMemStore()
	p := s.addProduct("Hidden", "10", 2, 0)
	hidden := s.st.products[p.ID]
	hidden.IsActive = false
	s.st.products[p.ID] = hidden
	uc := newCartUsecase(s)

	_, err := uc.AddToCart(ctx, 1, AddCartInput{ProductID: 999, Quantity: 1})
	assertCode(t, err, http.StatusNotFound, CodeProductNotFound)

	_, err = uc.AddToCart(ctx, 1, AddCartInput{ProductID: p.ID, Quantity: 1})
	assertCode(t, err, http.StatusNotFound, CodeProductNotFound)

	_, err = uc.AddToCart(ctx, 0, AddCartInput{ProductID: p.ID, Quantity: 1})
	assertCode(t, err, http.StatusUnauthorized, CodeUnauthorized)
}

func TestCart_RefreshesPriceAndFlagsUnavailable(t *testing.T) {
	s := newMemStore()
	a := s.addProduct("Lager", "5", 10, 0)
	b := s.addProduct("Gone", "7", 10, 0)
	uc := newCartUsecase(s)
	_, err := uc.AddToCart(ctx, 1, AddCartInput{ProductID: a.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = uc.AddToCart(ctx, 1, AddCartInput{ProductID: b.ID, Quantity: 1})
	require.NoError(t, err)

	pa := s.st.products[a.ID]
	pa.Price = dec("6")
	s.st.products[a.ID] = pa
	require.NoError(t, memProducts{s}.SoftDelete(ctx, b.ID))

	out, err := uc.GetCart(ctx, 1)
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	assert.True(t, dec("6").Equal(out.Items[0].Price))
	assert.True(t, out.Items[1].Unavailable)
	assert.True(t, dec("12").Equal(out.Subtotal))
}

func TestCart_ClearOnlyOwnLines(t *testing.T) {
	s := newMemStore()
	p := s.addProduct("Lager", "5", 10, 0)
	uc := newCartUsecase(s)
	_, _ = uc.AddToCart(ctx, 1, AddCartInput{ProductID: p.ID, Quantity: 1})
	_, _ = uc.AddToCart(ctx, 2, AddCartInput{ProductID: p.ID, Quantity: 1})

	require.NoError(t, uc.Clear(ctx, 1))

	mine, _ := uc.GetCart(ctx, 1)
	theirs, _ := uc.GetCart(ctx, 2)
	assert.Empty(t, mine.Items)
	assert.Len(t, theirs.Items, 1)
}

// 連打しても加算が失われない（実DBではON CONFLICTの1文、ここではWithinTxで直列化）
func TestCart_ConcurrentAddsAreNotLost(t *testing.T) {
	s := newMemStore()
	p := s.addProduct("Lager", "5", 100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithinTx(ctx, func(r repo.TxRepos) error {
				_, err := r.Carts().AddQuantity(ctx, 1, p.ID, 1, p.Price)
				return err
			})
		}()
	}
	wg.Wait()

	lines, _ := memCarts{s}.ListByUserID(ctx, 1)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(20), lines[0].Quantity)
}
