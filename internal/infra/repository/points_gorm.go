package repository

import (
	"context"
	"fmt"

	"beerstore/internal/domain/model"

	"gorm.io/gorm"
)

type PointsGormRepository struct {
	db *gorm.DB
}

func NewPointsGormRepository(db *gorm.DB) *PointsGormRepository {
	return &PointsGormRepository{db: db}
}

// ユーザー単位のアドバイザリロック。トランザクション終了で自動解放。
// 残高チェックと書き込みの間に別の引き落としが割り込まないようにする
func (r *PointsGormRepository) LockUser(ctx context.Context, userID int64) error {
	key := fmt.Sprintf("points:%d", userID)
	return r.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key).Error
}

// 台帳からの集計
func (r *PointsGormRepository) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.db.WithContext(ctx).
		Model(&model.PointsTransaction{}).
		Select("COALESCE(SUM(CASE WHEN kind IN (?, ?) THEN amount ELSE -amount END), 0)",
			model.PointsEarned, model.PointsBonus).
		Where("user_id = ?", userID).
		Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *PointsGormRepository) Append(ctx context.Context, t model.PointsTransaction) (model.PointsTransaction, error) {
	if err := r.db.WithContext(ctx).Create(&t).Error; err != nil {
		return model.PointsTransaction{}, err
	}
	return t, nil
}

func (r *PointsGormRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]model.PointsTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var items []model.PointsTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").Order("id desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return []model.PointsTransaction{}, err
	}
	return items, nil
}
