package repository

import (
	"context"

	"beerstore/internal/domain/model"
)

// ポイント台帳。行は追記のみ、残高は常に集計で求める。
type PointsRepository interface {
	// ユーザー単位の排他（トランザクション終了まで保持）
	LockUser(ctx context.Context, userID int64) error
	Balance(ctx context.Context, userID int64) (int64, error)
	Append(ctx context.Context, t model.PointsTransaction) (model.PointsTransaction, error)
	// 新しい順
	ListByUserID(ctx context.Context, userID int64, limit int) ([]model.PointsTransaction, error)
}
