package usecase

import (
	"context"
	"strings"
	"time"

	"beerstore/internal/domain/model"
	repo "beerstore/internal/repository"
)

// 管理者操作（在庫・注文ステータス・ポイント・配達員）の監査ログ閲覧
type AuditLogUsecase struct {
	audits repo.AuditLogRepository
}

func NewAuditLogUsecase(audits repo.AuditLogRepository) *AuditLogUsecase {
	return &AuditLogUsecase{audits: audits}
}

type ListAuditLogsInput struct {
	ActorUserID  *int64
	Action       string
	ResourceType string
	ResourceID   *int64
	From         *time.Time
	To           *time.Time
	Page         int
	Limit        int
}

type AuditLogListOutput struct {
	Items []model.AuditLog `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

func parseAuditAction(s string) (model.AuditAction, bool) {
	a := model.AuditAction(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case "", model.AuditActionUpdateStock, model.AuditActionAdjustStock, model.AuditActionUpdateOrderStatus,
		model.AuditActionAdjustPoints, model.AuditActionCreateCourier:
		return a, true
	}
	return "", false
}

func parseAuditResource(s string) (model.AuditResourceType, bool) {
	rt := model.AuditResourceType(strings.ToLower(strings.TrimSpace(s)))
	switch rt {
	case "", model.AuditResourceProduct, model.AuditResourceOrder, model.AuditResourceUser, model.AuditResourceCourier:
		return rt, true
	}
	return "", false
}

func (u *AuditLogUsecase) List(ctx context.Context, in ListAuditLogsInput) (AuditLogListOutput, error) {
	if in.Page < 1 {
		return AuditLogListOutput{}, errInvalid("invalid page")
	}
	if in.Limit < 1 || in.Limit > 200 {
		return AuditLogListOutput{}, errInvalid("invalid limit")
	}
	action, ok := parseAuditAction(in.Action)
	if !ok {
		return AuditLogListOutput{}, errInvalid("invalid action")
	}
	resource, ok := parseAuditResource(in.ResourceType)
	if !ok {
		return AuditLogListOutput{}, errInvalid("invalid resource_type")
	}
	if in.ResourceID != nil && *in.ResourceID <= 0 {
		return AuditLogListOutput{}, errInvalid("invalid resource_id")
	}
	if in.From != nil && in.To != nil && !in.From.Before(*in.To) {
		return AuditLogListOutput{}, errInvalid("from must be before to")
	}

	logs, total, err := u.audits.Search(ctx, repo.AuditLogQuery{
		ActorUserID:  in.ActorUserID,
		Action:       action,
		ResourceType: resource,
		ResourceID:   in.ResourceID,
		From:         in.From,
		To:           in.To,
		Page:         in.Page,
		Limit:        in.Limit,
	})
	if err != nil {
		return AuditLogListOutput{}, errDB()
	}
	return AuditLogListOutput{Items: logs, Total: total, Page: in.Page, Limit: in.Limit}, nil
}
