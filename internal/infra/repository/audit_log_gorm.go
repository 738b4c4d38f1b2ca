package repository

import (
	"context"
	"fmt"

	"beerstore/internal/domain/model"
	repo "beerstore/internal/repository"

	"gorm.io/gorm"
)

type AuditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) *AuditLogGormRepository {
	return &AuditLogGormRepository{db: db}
}

func (r *AuditLogGormRepository) Create(ctx context.Context, log model.AuditLog) error {
	if err := r.db.WithContext(ctx).Create(&log).Error; err != nil {
		return fmt.Errorf("insert audit_logs: %w", err)
	}
	return nil
}

func (r *AuditLogGormRepository) Search(ctx context.Context, q repo.AuditLogQuery) ([]model.AuditLog, int64, error) {
	base := r.db.WithContext(ctx).Model(&model.AuditLog{})
	if q.ActorUserID != nil {
		base = base.Where("actor_user_id = ?", *q.ActorUserID)
	}
	if q.Action != "" {
		base = base.Where("action = ?", q.Action)
	}
	if q.ResourceType != "" {
		base = base.Where("resource_type = ?", q.ResourceType)
	}
	if q.ResourceID != nil {
		base = base.Where("resource_id = ?", *q.ResourceID)
	}
	if q.From != nil {
		base = base.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		base = base.Where("created_at < ?", *q.To)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count audit_logs: %w", err)
	}

	logs := []model.AuditLog{}
	err := base.Session(&gorm.Session{}).
		Order("created_at DESC").Order("id DESC").
		Limit(q.Limit).
		Offset((q.Page - 1) * q.Limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list audit_logs: %w", err)
	}
	return logs, total, nil
}
