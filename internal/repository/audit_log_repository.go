package repository

import (
	"context"
	"time"

	"beerstore/internal/domain/model"
)

// 管理画面の監査ログ検索。空の項目は条件にしない。
// 期間は [From, To)。
type AuditLogQuery struct {
	ActorUserID  *int64
	Action       model.AuditAction
	ResourceType model.AuditResourceType
	ResourceID   *int64
	From         *time.Time
	To           *time.Time
	Page         int
	Limit        int
}

type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	// 新しい順。totalは絞り込み後の件数
	Search(ctx context.Context, q AuditLogQuery) ([]model.AuditLog, int64, error)
}
