package repository

import (
	"beerstore/internal/domain/model"
	"context"
)

type InventoryRepository interface {
	// 在庫の現在値を設定し、変更前の値を返す（行ロック付き）
	SetStock(ctx context.Context, productID int64, newStock int64) (int64, error)

	// 在庫が足りるときだけ減算
	DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error)

	// 在庫戻し（キャンセルなど）
	IncreaseStock(ctx context.Context, productID int64, qty int64) error

	// 差分で調整。結果が負になるなら ok=false で何もしない
	AdjustStock(ctx context.Context, productID int64, delta int64) (newStock int64, ok bool, err error)

	// 調整履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error

	// 調整履歴（新しい順）
	ListAdjustments(ctx context.Context, productID int64, limit int) ([]model.InventoryAdjustment, error)
}
