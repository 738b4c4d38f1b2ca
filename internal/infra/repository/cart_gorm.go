package repository

import (
	"beerstore/internal/domain/model"
	repo "beerstore/internal/repository"
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

// カート明細を一覧取得
func (r *CartGormRepository) ListByUserID(ctx context.Context, userID int64) ([]model.CartLine, error) {
	var lines []model.CartLine

	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&lines).Error; err != nil {
		return []model.CartLine{}, err
	}

	return lines, nil
}

// チェックアウト用。コミットまで同じユーザーのカート更新を待たせる
func (r *CartGormRepository) ListByUserIDForUpdate(ctx context.Context, userID int64) ([]model.CartLine, error) {
	var lines []model.CartLine

	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&lines).Error; err != nil {
		return []model.CartLine{}, err
	}

	return lines, nil
}

// 同一商品は数量加算。
// INSERT ... ON CONFLICT (user_id, product_id) DO UPDATE で1文にして、連打でも加算が消えないようにする
func (r *CartGormRepository) AddQuantity(ctx context.Context, userID int64, productID int64, addQty int64, unitPriceSnapshot decimal.Decimal) (model.CartLine, error) {
	return r.upsert(ctx, userID, productID, addQty, unitPriceSnapshot,
		gorm.Expr("cart_lines.quantity + EXCLUDED.quantity"))
}

// 数量を上書き
func (r *CartGormRepository) SetQuantity(ctx context.Context, userID int64, productID int64, qty int64, unitPriceSnapshot decimal.Decimal) (model.CartLine, error) {
	return r.upsert(ctx, userID, productID, qty, unitPriceSnapshot,
		gorm.Expr("EXCLUDED.quantity"))
}

func (r *CartGormRepository) upsert(ctx context.Context, userID, productID, qty int64, price decimal.Decimal, quantityExpr clause.Expr) (model.CartLine, error) {
	now := time.Now()
	line := model.CartLine{
		UserID:            userID,
		ProductID:         productID,
		Quantity:          qty,
		UnitPriceSnapshot: price,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := r.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"quantity":            quantityExpr,
					"unit_price_snapshot": gorm.Expr("EXCLUDED.unit_price_snapshot"),
					"updated_at":          gorm.Expr("EXCLUDED.updated_at"),
				}),
			},
			clause.Returning{},
		).
		Create(&line).Error
	if err != nil {
		return model.CartLine{}, err
	}
	return line, nil
}

// 明細を削除
func (r *CartGormRepository) Delete(ctx context.Context, userID int64, productID int64) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&model.CartLine{})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// チェックアウトに含めた明細だけ削除
func (r *CartGormRepository) DeleteByIDs(ctx context.Context, userID int64, lineIDs []int64) error {
	if len(lineIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, lineIDs).
		Delete(&model.CartLine{}).Error
}

// 全削除（ログアウト時など）
func (r *CartGormRepository) ClearByUserID(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.CartLine{}).Error
}
