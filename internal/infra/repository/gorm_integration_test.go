package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"beerstore/internal/domain/model"
	"beerstore/internal/domain/shipping"
	"beerstore/internal/infra/cache"
	"beerstore/internal/infra/db"
	"beerstore/internal/infra/notify"
	repo "beerstore/internal/repository"
	"beerstore/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test skipped in -short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("beerstore"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	t.Setenv("DATABASE_URL", dsn)

	gdb, err := db.Connect(zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb, zap.NewNop()))

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return gdb
}

func seedProduct(t *testing.T, gdb *gorm.DB, name string, price string, stock int64) model.Product {
	t.Helper()
	p, err := NewProductGormRepository(gdb).Create(context.Background(), model.Product{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	})
	require.NoError(t, err)
	return p
}

func currentStock(t *testing.T, gdb *gorm.DB, productID int64) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, gdb.Unscoped().First(&p, productID).Error)
	return p.Stock
}

func TestGormRepositories(t *testing.T) {
	gdb := setupTestDB(t)
	ctx := context.Background()
	txm := NewTxManagerGorm(gdb)

	t.Run("stock decrement never oversells", func(t *testing.T) {
		p := seedProduct(t, gdb, "Lager", "10.00", 3)

		var (
			wg sync.WaitGroup
			mu sync.Mutex
			ok int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := txm.WithinTx(ctx, func(r repo.TxRepos) error {
					done, err := r.Inventory().DecreaseStockIfEnough(ctx, p.ID, 1)
					if err != nil {
						return err
					}
					if !done {
						return errors.New("sold out")
					}
					return nil
				})
				if err == nil {
					mu.Lock()
					ok++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 3, ok)
		assert.Equal(t, int64(0), currentStock(t, gdb, p.ID))
	})

	t.Run("rollback discards every write", func(t *testing.T) {
		p := seedProduct(t, gdb, "Stout", "20.00", 5)

		err := txm.WithinTx(ctx, func(r repo.TxRepos) error {
			if _, err := r.Inventory().DecreaseStockIfEnough(ctx, p.ID, 2); err != nil {
				return err
			}
			if _, err := r.Points().Append(ctx, model.PointsTransaction{
				UserID: 77, Kind: model.PointsBonus, Amount: 500, Reason: "test", CreatedAt: time.Now(),
			}); err != nil {
				return err
			}
			return errors.New("abort")
		})
		require.Error(t, err)

		assert.Equal(t, int64(5), currentStock(t, gdb, p.ID))
		bal, err := NewPointsGormRepository(gdb).Balance(ctx, 77)
		require.NoError(t, err)
		assert.Equal(t, int64(0), bal)
	})

	t.Run("ledger balance sums kinds", func(t *testing.T) {
		pts := NewPointsGormRepository(gdb)
		now := time.Now()
		for _, tr := range []model.PointsTransaction{
			{UserID: 5, Kind: model.PointsEarned, Amount: 300, Reason: "order_earned", CreatedAt: now},
			{UserID: 5, Kind: model.PointsBonus, Amount: 50, Reason: "promo", CreatedAt: now},
			{UserID: 5, Kind: model.PointsUsed, Amount: 100, Reason: "order_redeemed", CreatedAt: now},
			{UserID: 5, Kind: model.PointsExpired, Amount: 25, Reason: "expiry", CreatedAt: now},
			{UserID: 6, Kind: model.PointsEarned, Amount: 999, Reason: "other user", CreatedAt: now},
		} {
			_, err := pts.Append(ctx, tr)
			require.NoError(t, err)
		}

		bal, err := pts.Balance(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(225), bal)

		history, err := pts.ListByUserID(ctx, 5, 10)
		require.NoError(t, err)
		assert.Len(t, history, 4)
	})

	t.Run("cart upsert accumulates per product", func(t *testing.T) {
		p := seedProduct(t, gdb, "IPA", "35.50", 10)
		carts := NewCartGormRepository(gdb)

		_, err := carts.AddQuantity(ctx, 9, p.ID, 2, p.Price)
		require.NoError(t, err)
		line, err := carts.AddQuantity(ctx, 9, p.ID, 3, p.Price)
		require.NoError(t, err)
		assert.Equal(t, int64(5), line.Quantity)

		line, err = carts.SetQuantity(ctx, 9, p.ID, 1, p.Price)
		require.NoError(t, err)
		assert.Equal(t, int64(1), line.Quantity)

		lines, err := carts.ListByUserID(ctx, 9)
		require.NoError(t, err)
		require.Len(t, lines, 1)

		require.NoError(t, carts.ClearByUserID(ctx, 9))
		lines, err = carts.ListByUserID(ctx, 9)
		require.NoError(t, err)
		assert.Empty(t, lines)
	})

	t.Run("soft deleted product can still be restocked", func(t *testing.T) {
		p := seedProduct(t, gdb, "Porter", "15.00", 1)
		products := NewProductGormRepository(gdb)

		require.NoError(t, products.SoftDelete(ctx, p.ID))
		_, err := products.FindByID(ctx, p.ID)
		assert.ErrorIs(t, err, repo.ErrNotFound)

		require.NoError(t, NewInventoryGormRepository(gdb).IncreaseStock(ctx, p.ID, 4))
		assert.Equal(t, int64(5), currentStock(t, gdb, p.ID))
	})

	t.Run("checkout against postgres", func(t *testing.T) {
		a := seedProduct(t, gdb, "Pilsner", "9.99", 10)
		b := seedProduct(t, gdb, "Bock", "0.51", 5)
		carts := NewCartGormRepository(gdb)
		_, err := carts.AddQuantity(ctx, 42, a.ID, 2, a.Price)
		require.NoError(t, err)
		_, err = carts.AddQuantity(ctx, 42, b.ID, 1, b.Price)
		require.NoError(t, err)

		dispatcher := notify.NewDispatcher(notify.NewLogPublisher(zap.NewNop()), 8, zap.NewNop())
		defer dispatcher.Close()

		uc := usecase.NewOrderUsecase(txm, shipping.NewCalculator(shipping.DefaultTable()),
			usecase.DefaultPointsPolicy(), cache.Noop{}, dispatcher, zap.NewNop())

		out, err := uc.Checkout(ctx, 42, usecase.CheckoutInput{DeliveryMethod: "pickup", PaymentMethod: "cash"})
		require.NoError(t, err)

		assert.Equal(t, "20.49", out.Subtotal.StringFixed(2))
		assert.Equal(t, "20.49", out.Total.StringFixed(2))
		assert.Equal(t, int64(102), out.PointsEarned)
		assert.Equal(t, int64(8), currentStock(t, gdb, a.ID))
		assert.Equal(t, int64(4), currentStock(t, gdb, b.ID))

		lines, err := carts.ListByUserID(ctx, 42)
		require.NoError(t, err)
		assert.Empty(t, lines)

		items, err := NewOrderItemGormRepository(gdb).ListByOrderID(ctx, out.ID)
		require.NoError(t, err)
		assert.Len(t, items, 2)

		bal, err := NewPointsGormRepository(gdb).Balance(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(102), bal)

		got, err := NewOrderGormRepository(gdb).ListCreatedBetween(ctx, out.CreatedAt.Add(-time.Minute), out.CreatedAt.Add(time.Minute))
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, out.ID, got[len(got)-1].ID)
	})

	t.Run("checkout lock holds back concurrent cart writes", func(t *testing.T) {
		p := seedProduct(t, gdb, "Weizen", "12.00", 10)
		carts := NewCartGormRepository(gdb)
		_, err := carts.AddQuantity(ctx, 55, p.ID, 2, p.Price)
		require.NoError(t, err)

		done := make(chan error, 1)
		err = txm.WithinTx(ctx, func(r repo.TxRepos) error {
			lines, err := r.Carts().ListByUserIDForUpdate(ctx, 55)
			if err != nil {
				return err
			}
			go func() {
				_, err := carts.AddQuantity(ctx, 55, p.ID, 3, p.Price)
				done <- err
			}()

			time.Sleep(300 * time.Millisecond)
			select {
			case err := <-done:
				return fmt.Errorf("cart write finished while locked: %v", err)
			default:
			}

			ids := make([]int64, 0, len(lines))
			for _, l := range lines {
				ids = append(ids, l.ID)
			}
			return r.Carts().DeleteByIDs(ctx, 55, ids)
		})
		require.NoError(t, err)

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("cart write never resumed")
		}

		// 削除後に入った加算は新しい明細として残る
		lines, err := carts.ListByUserID(ctx, 55)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, int64(3), lines[0].Quantity)
	})

	t.Run("audit log search filters and pages newest first", func(t *testing.T) {
		audits := NewAuditLogGormRepository(gdb)
		base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
		for i := 0; i < 4; i++ {
			require.NoError(t, audits.Create(ctx, model.AuditLog{
				ActorUserID:  501,
				Action:       model.AuditActionUpdateOrderStatus,
				ResourceType: model.AuditResourceOrder,
				ResourceID:   int64(1000 + i),
				CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			}))
		}
		require.NoError(t, audits.Create(ctx, model.AuditLog{
			ActorUserID:  501,
			Action:       model.AuditActionCreateCourier,
			ResourceType: model.AuditResourceCourier,
			ResourceID:   7,
			CreatedAt:    base,
		}))

		actor := int64(501)
		got, total, err := audits.Search(ctx, repo.AuditLogQuery{
			ActorUserID: &actor,
			Action:      model.AuditActionUpdateOrderStatus,
			Page:        1,
			Limit:       3,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		require.Len(t, got, 3)
		assert.Equal(t, int64(1003), got[0].ResourceID)
		assert.Equal(t, int64(1001), got[2].ResourceID)

		got, _, err = audits.Search(ctx, repo.AuditLogQuery{
			ActorUserID: &actor,
			Action:      model.AuditActionUpdateOrderStatus,
			Page:        2,
			Limit:       3,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(1000), got[0].ResourceID)

		from := base.Add(time.Minute)
		to := base.Add(3 * time.Minute)
		got, total, err = audits.Search(ctx, repo.AuditLogQuery{ActorUserID: &actor, From: &from, To: &to, Page: 1, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, got, 2)

		rid := int64(7)
		got, _, err = audits.Search(ctx, repo.AuditLogQuery{ActorUserID: &actor, ResourceType: model.AuditResourceCourier, ResourceID: &rid, Page: 1, Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, model.AuditActionCreateCourier, got[0].Action)
	})
}
