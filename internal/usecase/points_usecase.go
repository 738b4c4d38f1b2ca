package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"beerstore/internal/domain/model"
	"beerstore/internal/infra/cache"
	repo "beerstore/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ポイントの付与・利用ルール
type PointsPolicy struct {
	EarnPerUnit           int64 // 1通貨単位あたりの付与ポイント
	MinRedemption         int64 // 1回の注文で使える最小ポイント
	PointsPerCurrencyUnit int64 // 何ポイントで1通貨単位の値引きか
}

func DefaultPointsPolicy() PointsPolicy {
	return PointsPolicy{
		EarnPerUnit:           5,
		MinRedemption:         100,
		PointsPerCurrencyUnit: 100,
	}
}

// 値引き前の小計から付与ポイント（切り捨て）
func (p PointsPolicy) Earned(subtotal decimal.Decimal) int64 {
	return subtotal.Mul(decimal.NewFromInt(p.EarnPerUnit)).Floor().IntPart()
}

func (p PointsPolicy) Discount(points int64) decimal.Decimal {
	return decimal.NewFromInt(points).Div(decimal.NewFromInt(p.PointsPerCurrencyUnit)).Round(2)
}

const (
	reasonOrderEarned       = "order_earned"
	reasonOrderBonus        = "order_product_bonus"
	reasonOrderRedeemed     = "order_redeemed"
	reasonOrderCancelRefund = "order_cancel_refund"
	reasonOrderCancelRevoke = "order_cancel_revoke"
)

// 残高を増やす行を追記（トランザクション内で呼ぶ）
func creditPoints(ctx context.Context, r repo.TxRepos, t model.PointsTransaction) error {
	if t.Kind.IsDebit() || t.Amount <= 0 {
		return fmt.Errorf("invalid credit: kind=%s amount=%d", t.Kind, t.Amount)
	}
	if err := r.Points().LockUser(ctx, t.UserID); err != nil {
		return err
	}
	_, err := r.Points().Append(ctx, t)
	return err
}

// 残高を減らす行を追記。足りなければ何も書かずに INSUFFICIENT_POINTS。
// ロック→集計→追記を同じトランザクションで行うので、同時の利用で二重に通ることはない。
func debitPoints(ctx context.Context, r repo.TxRepos, t model.PointsTransaction) (int64, error) {
	if !t.Kind.IsDebit() || t.Amount <= 0 {
		return 0, fmt.Errorf("invalid debit: kind=%s amount=%d", t.Kind, t.Amount)
	}
	if err := r.Points().LockUser(ctx, t.UserID); err != nil {
		return 0, err
	}
	bal, err := r.Points().Balance(ctx, t.UserID)
	if err != nil {
		return 0, err
	}
	if bal < t.Amount {
		return bal, errInsufficientPoints()
	}
	if _, err := r.Points().Append(ctx, t); err != nil {
		return 0, err
	}
	return bal - t.Amount, nil
}

// HTTPErrorはそのまま、それ以外はDBエラー扱い
func asUsecaseError(err error) error {
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	return errDB()
}

type PointsUsecase struct {
	tx    repo.TransactionManager
	cache cache.BalanceCache
	log   *zap.Logger
	now   func() time.Time
}

func NewPointsUsecase(tx repo.TransactionManager, balances cache.BalanceCache, log *zap.Logger) *PointsUsecase {
	return &PointsUsecase{tx: tx, cache: balances, log: log, now: time.Now}
}

type PointsSummary struct {
	Balance int64                     `json:"balance"`
	History []model.PointsTransaction `json:"history"`
}

func (u *PointsUsecase) Balance(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, errUnauthorized()
	}

	if bal, err := u.cache.GetBalance(ctx, userID); err == nil {
		return bal, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		u.log.Warn("balance cache read failed", zap.Int64("user_id", userID), zap.Error(err))
	}

	var bal int64
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		b, err := r.Points().Balance(ctx, userID)
		if err != nil {
			return errDB()
		}
		bal = b
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := u.cache.SetBalance(ctx, userID, bal); err != nil {
		u.log.Warn("balance cache write failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	return bal, nil
}

// 残高＋履歴（新しい順）
func (u *PointsUsecase) Summary(ctx context.Context, userID int64, limit int) (PointsSummary, error) {
	if userID <= 0 {
		return PointsSummary{}, errUnauthorized()
	}
	if limit < 1 || limit > 200 {
		return PointsSummary{}, errInvalid("invalid limit")
	}

	var out PointsSummary
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		bal, err := r.Points().Balance(ctx, userID)
		if err != nil {
			return errDB()
		}
		hist, err := r.Points().ListByUserID(ctx, userID, limit)
		if err != nil {
			return errDB()
		}
		out = PointsSummary{Balance: bal, History: hist}
		return nil
	})
	if err != nil {
		return PointsSummary{}, err
	}
	return out, nil
}

type AdminAdjustPointsInput struct {
	Kind   string
	Amount int64
	Reason string
}

// 管理者による手動付与(bonus)・失効(expired)
func (u *PointsUsecase) AdminAdjust(ctx context.Context, adminUserID int64, userID int64, in AdminAdjustPointsInput) (int64, error) {
	if adminUserID <= 0 {
		return 0, errUnauthorized()
	}
	if userID <= 0 {
		return 0, errInvalid("invalid user id")
	}
	kind := model.PointsKind(strings.TrimSpace(in.Kind))
	if kind != model.PointsBonus && kind != model.PointsExpired {
		return 0, errInvalid("kind must be bonus or expired")
	}
	if in.Amount <= 0 {
		return 0, errInvalid("amount must be > 0")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" || len(reason) > 255 {
		return 0, errInvalid("invalid reason")
	}

	var newBalance int64
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		now := u.now()
		t := model.PointsTransaction{
			UserID:    userID,
			Kind:      kind,
			Amount:    in.Amount,
			Reason:    reason,
			CreatedAt: now,
		}

		var before int64
		if kind.IsDebit() {
			after, err := debitPoints(ctx, r, t)
			if err != nil {
				return asUsecaseError(err)
			}
			newBalance = after
			before = after + in.Amount
		} else {
			if err := creditPoints(ctx, r, t); err != nil {
				return errDB()
			}
			bal, err := r.Points().Balance(ctx, userID)
			if err != nil {
				return errDB()
			}
			newBalance = bal
			before = bal - in.Amount
		}

		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminUserID,
			Action:       model.AuditActionAdjustPoints,
			ResourceType: model.AuditResourceUser,
			ResourceID:   userID,
			BeforeJSON:   fmt.Sprintf(`{"balance":%d}`, before),
			AfterJSON:    fmt.Sprintf(`{"balance":%d,"kind":"%s","amount":%d}`, newBalance, kind, in.Amount),
			CreatedAt:    now,
		}); err != nil {
			return errDB()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	u.invalidate(ctx, userID)
	return newBalance, nil
}

// コミット後に呼ぶ。失敗してもTTLで消えるので警告だけ。
func (u *PointsUsecase) invalidate(ctx context.Context, userID int64) {
	if err := u.cache.InvalidateBalance(ctx, userID); err != nil {
		u.log.Warn("balance cache invalidate failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
