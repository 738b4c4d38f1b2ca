package repository

import (
	"context"
	"errors"
	"time"

	"beerstore/internal/domain/model"
	repo "beerstore/internal/repository"

	"gorm.io/gorm"
)

type CourierGormRepository struct {
	db *gorm.DB
}

func NewCourierGormRepository(db *gorm.DB) *CourierGormRepository {
	return &CourierGormRepository{db: db}
}

func (r *CourierGormRepository) Create(ctx context.Context, c model.Courier) (model.Courier, error) {
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return model.Courier{}, err
	}
	return c, nil
}

func (r *CourierGormRepository) FindByID(ctx context.Context, courierID int64) (model.Courier, error) {
	var c model.Courier
	err := r.db.WithContext(ctx).First(&c, courierID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Courier{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Courier{}, err
	}
	return c, nil
}

func (r *CourierGormRepository) List(ctx context.Context, activeOnly bool) ([]model.Courier, error) {
	q := r.db.WithContext(ctx).Model(&model.Courier{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var items []model.Courier
	if err := q.Order("id asc").Find(&items).Error; err != nil {
		return []model.Courier{}, err
	}
	return items, nil
}

func (r *CourierGormRepository) AppendPing(ctx context.Context, p model.CourierPing) (model.CourierPing, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.CourierPing{}, err
	}
	return p, nil
}

func (r *CourierGormRepository) LatestPing(ctx context.Context, courierID int64) (model.CourierPing, error) {
	var p model.CourierPing
	err := r.db.WithContext(ctx).
		Where("courier_id = ?", courierID).
		Order("created_at desc").Order("id desc").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CourierPing{}, repo.ErrNotFound
	}
	if err != nil {
		return model.CourierPing{}, err
	}
	return p, nil
}

func (r *CourierGormRepository) PingsSince(ctx context.Context, courierID int64, since time.Time) ([]model.CourierPing, error) {
	var items []model.CourierPing
	err := r.db.WithContext(ctx).
		Where("courier_id = ? AND created_at >= ?", courierID, since).
		Order("created_at asc").Order("id asc").
		Find(&items).Error
	if err != nil {
		return []model.CourierPing{}, err
	}
	return items, nil
}
