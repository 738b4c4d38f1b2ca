package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"beerstore/internal/domain/model"
	"beerstore/internal/infra/cache"
	repo "beerstore/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 許可する遷移。DELIVERED/CANCELLED は終端。
var orderTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPending:   {model.OrderStatusConfirmed, model.OrderStatusCancelled},
	model.OrderStatusConfirmed: {model.OrderStatusPreparing, model.OrderStatusCancelled},
	model.OrderStatusPreparing: {model.OrderStatusShipped, model.OrderStatusCancelled},
	model.OrderStatusShipped:   {model.OrderStatusDelivered},
}

func CanTransition(from, to model.OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func parseOrderStatus(s string) (model.OrderStatus, bool) {
	st := model.OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case model.OrderStatusPending, model.OrderStatusConfirmed, model.OrderStatusPreparing,
		model.OrderStatusShipped, model.OrderStatusDelivered, model.OrderStatusCancelled:
		return st, true
	}
	return "", false
}

type AdminOrderUsecase struct {
	tx       repo.TransactionManager
	balances cache.BalanceCache
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewAdminOrderUsecase(tx repo.TransactionManager, balances cache.BalanceCache, notifier Notifier, log *zap.Logger) *AdminOrderUsecase {
	return &AdminOrderUsecase{
		tx:       tx,
		balances: balances,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

type AdminUpdateOrderStatusInput struct {
	Status string
	// SHIPPED への遷移のときだけ指定できる
	CourierID *int64
}

func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (OrderListOutput, error) {
	if f.Page < 1 {
		return OrderListOutput{}, errInvalid("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListOutput{}, errInvalid("invalid limit")
	}
	if f.Status != "" {
		st, ok := parseOrderStatus(f.Status)
		if !ok {
			return OrderListOutput{}, errInvalid("invalid status")
		}
		f.Status = string(st)
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return OrderListOutput{}, errInvalid("from must be <= to")
	}

	out := OrderListOutput{Page: f.Page, Limit: f.Limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return errDB()
		}
		outs, err := withItems(ctx, r, orders)
		if err != nil {
			return err
		}
		out.Items = outs
		out.Total = total
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

// UpdateStatus は遷移表に従ってステータスを進める。
// CANCELLED では在庫戻し・利用ポイント返還・付与ポイント取り消しも同じトランザクションで行う。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, errUnauthorized()
	}
	if orderID <= 0 {
		return OrderOutput{}, errInvalid("invalid id")
	}
	next, ok := parseOrderStatus(in.Status)
	if !ok {
		return OrderOutput{}, errInvalid("invalid status")
	}
	if in.CourierID != nil && next != model.OrderStatusShipped {
		return OrderOutput{}, errInvalid("courier_id is only allowed when shipping")
	}
	if in.CourierID != nil && *in.CourierID <= 0 {
		return OrderOutput{}, errInvalid("invalid courier_id")
	}

	var (
		out  OrderOutput
		prev model.OrderStatus
	)

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err == repo.ErrNotFound {
			return errOrderNotFound()
		}
		if err != nil {
			return errDB()
		}
		prev = o.Status

		if !CanTransition(o.Status, next) {
			return errInvalidTransition(string(o.Status), string(next))
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return errDB()
		}
		now := u.now()

		if in.CourierID != nil {
			c, err := r.Couriers().FindByID(ctx, *in.CourierID)
			if err == repo.ErrNotFound || (err == nil && !c.IsActive) {
				return errCourierNotFound()
			}
			if err != nil {
				return errDB()
			}
			if err := r.Orders().SetCourier(ctx, orderID, &c.ID); err != nil {
				return errDB()
			}
			o.CourierID = &c.ID
		}

		if next == model.OrderStatusCancelled {
			if err := u.cancelSideEffects(ctx, r, o, items, now); err != nil {
				return err
			}
			if o.CourierID != nil {
				if err := r.Orders().SetCourier(ctx, orderID, nil); err != nil {
					return errDB()
				}
				o.CourierID = nil
			}
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, next); err != nil {
			if err == repo.ErrNotFound {
				return errOrderNotFound()
			}
			return errDB()
		}
		o.Status = next

		afterJSON := fmt.Sprintf(`{"status":"%s"}`, next)
		if o.CourierID != nil {
			afterJSON = fmt.Sprintf(`{"status":"%s","courier_id":%d}`, next, *o.CourierID)
		}
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   fmt.Sprintf(`{"status":"%s"}`, prev),
			AfterJSON:    afterJSON,
			CreatedAt:    now,
		}); err != nil {
			return errDB()
		}

		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	if next == model.OrderStatusCancelled {
		if err := u.balances.InvalidateBalance(ctx, out.UserID); err != nil {
			u.log.Warn("balance cache invalidate failed", zap.Int64("user_id", out.UserID), zap.Error(err))
		}
	}
	u.notifier.Notify(ctx, model.OrderEvent{
		ID:         uuid.NewString(),
		Type:       model.EventOrderStatusChanged,
		OrderID:    out.ID,
		UserID:     out.UserID,
		Status:     next,
		PrevStatus: prev,
		Total:      out.Total.StringFixed(2),
		CourierID:  out.CourierID,
		OccurredAt: u.now(),
	})

	return out, nil
}

// キャンセル時の巻き戻し
func (u *AdminOrderUsecase) cancelSideEffects(ctx context.Context, r repo.TxRepos, o model.Order, items []model.OrderItem, now time.Time) error {
	for _, it := range items {
		if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
			return errDB()
		}
	}

	orderID := o.ID
	if o.PointsUsed > 0 {
		if err := creditPoints(ctx, r, model.PointsTransaction{
			UserID: o.UserID, Kind: model.PointsBonus, Amount: o.PointsUsed,
			Reason: reasonOrderCancelRefund, OrderID: &orderID, CreatedAt: now,
		}); err != nil {
			return errDB()
		}
	}

	//付与済みポイントは残高の範囲で取り消す（既に使われた分は追わない）
	granted := o.PointsEarned + o.BonusPoints
	if granted > 0 {
		if err := r.Points().LockUser(ctx, o.UserID); err != nil {
			return errDB()
		}
		bal, err := r.Points().Balance(ctx, o.UserID)
		if err != nil {
			return errDB()
		}
		revoke := min(granted, bal)
		if revoke > 0 {
			if _, err := debitPoints(ctx, r, model.PointsTransaction{
				UserID: o.UserID, Kind: model.PointsExpired, Amount: revoke,
				Reason: reasonOrderCancelRevoke, OrderID: &orderID, CreatedAt: now,
			}); err != nil {
				return asUsecaseError(err)
			}
		}
	}
	return nil
}
