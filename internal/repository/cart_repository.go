package repository

import (
	"context"

	"beerstore/internal/domain/model"

	"github.com/shopspring/decimal"
)

// カート明細は (user_id, product_id) 単位。更新はキー単位でアトミック。
type CartRepository interface {
	ListByUserID(ctx context.Context, userID int64) ([]model.CartLine, error)
	// 行ロック付き（FOR UPDATE）。トランザクション内で使う
	ListByUserIDForUpdate(ctx context.Context, userID int64) ([]model.CartLine, error)
	// 同一商品は数量加算（upsert）
	AddQuantity(ctx context.Context, userID int64, productID int64, addQty int64, unitPriceSnapshot decimal.Decimal) (model.CartLine, error)
	// 数量を上書き（upsert）
	SetQuantity(ctx context.Context, userID int64, productID int64, qty int64, unitPriceSnapshot decimal.Decimal) (model.CartLine, error)
	Delete(ctx context.Context, userID int64, productID int64) error
	// チェックアウトに含めた明細だけ削除
	DeleteByIDs(ctx context.Context, userID int64, lineIDs []int64) error
	ClearByUserID(ctx context.Context, userID int64) error
}
