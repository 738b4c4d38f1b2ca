// Package cache は台帳や位置情報の読み取り用プロジェクション。
// 正はいつもDBで、ここは消えても困らない。
package cache

import (
	"context"
	"errors"

	"beerstore/internal/domain/model"
)

var ErrCacheMiss = errors.New("cache miss")

type BalanceCache interface {
	GetBalance(ctx context.Context, userID int64) (int64, error)
	SetBalance(ctx context.Context, userID int64, balance int64) error
	InvalidateBalance(ctx context.Context, userID int64) error
}

type PingCache interface {
	GetLatestPing(ctx context.Context, courierID int64) (model.CourierPing, error)
	// 保存済みより古いピンでは上書きしない
	SetLatestPing(ctx context.Context, p model.CourierPing) error
}

// REDIS_ADDR 未設定時に使う
type Noop struct{}

func (Noop) GetBalance(context.Context, int64) (int64, error) {
	return 0, ErrCacheMiss
}

func (Noop) SetBalance(context.Context, int64, int64) error {
	return nil
}

func (Noop) InvalidateBalance(context.Context, int64) error {
	return nil
}

func (Noop) GetLatestPing(context.Context, int64) (model.CourierPing, error) {
	return model.CourierPing{}, ErrCacheMiss
}

func (Noop) SetLatestPing(context.Context, model.CourierPing) error {
	return nil
}
