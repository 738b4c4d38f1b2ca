package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"beerstore/internal/domain/model"
	"beerstore/internal/infra/cache"
	repo "beerstore/internal/repository"

	"go.uber.org/zap"
)

const defaultRouteWindow = 24 * time.Hour

type CourierUsecase struct {
	tx          repo.TransactionManager
	couriers    repo.CourierRepository
	orders      repo.OrderRepository
	pings       cache.PingCache
	maxLookback time.Duration
	log         *zap.Logger
	now         func() time.Time
}

func NewCourierUsecase(
	tx repo.TransactionManager,
	couriers repo.CourierRepository,
	orders repo.OrderRepository,
	pings cache.PingCache,
	maxLookback time.Duration,
	log *zap.Logger,
) *CourierUsecase {
	return &CourierUsecase{
		tx:          tx,
		couriers:    couriers,
		orders:      orders,
		pings:       pings,
		maxLookback: maxLookback,
		log:         log,
		now:         time.Now,
	}
}

type CreateCourierInput struct {
	Name        string
	VehicleType string
}

func (u *CourierUsecase) Create(ctx context.Context, adminUserID int64, in CreateCourierInput) (model.Courier, error) {
	if adminUserID <= 0 {
		return model.Courier{}, errUnauthorized()
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 255 {
		return model.Courier{}, errInvalid("invalid name")
	}
	vt := model.VehicleType(strings.TrimSpace(in.VehicleType))
	switch vt {
	case model.VehicleBike, model.VehicleMotorcycle, model.VehicleCar, model.VehicleVan:
	default:
		return model.Courier{}, errInvalid("invalid vehicle_type")
	}

	//登録と監査ログは同じトランザクション
	var c model.Courier
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		created, err := r.Couriers().Create(ctx, model.Courier{
			Name:        name,
			VehicleType: vt,
			IsActive:    true,
			CreatedAt:   u.now(),
		})
		if err != nil {
			return errDB()
		}

		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminUserID,
			Action:       model.AuditActionCreateCourier,
			ResourceType: model.AuditResourceCourier,
			ResourceID:   created.ID,
			BeforeJSON:   `{}`,
			AfterJSON:    fmt.Sprintf(`{"name":%q,"vehicle_type":"%s"}`, created.Name, created.VehicleType),
			CreatedAt:    created.CreatedAt,
		}); err != nil {
			return errDB()
		}
		c = created
		return nil
	})
	if err != nil {
		return model.Courier{}, err
	}
	return c, nil
}

func (u *CourierUsecase) List(ctx context.Context, activeOnly bool) ([]model.Courier, error) {
	cs, err := u.couriers.List(ctx, activeOnly)
	if err != nil {
		return nil, errDB()
	}
	return cs, nil
}

type RecordPingInput struct {
	Latitude  float64
	Longitude float64
	Speed     *float64
	Label     string
}

func validCoordinate(v float64, limit float64) bool {
	return !math.IsNaN(v) && v >= -limit && v <= limit
}

// 追記のみ。配達員が存在すれば必ず成功する。
func (u *CourierUsecase) RecordPing(ctx context.Context, courierID int64, in RecordPingInput) (model.CourierPing, error) {
	if courierID <= 0 {
		return model.CourierPing{}, errInvalid("invalid courier id")
	}
	if !validCoordinate(in.Latitude, 90) || !validCoordinate(in.Longitude, 180) {
		return model.CourierPing{}, errInvalid("invalid coordinates")
	}
	if in.Speed != nil && (math.IsNaN(*in.Speed) || math.IsInf(*in.Speed, 0) || *in.Speed < 0) {
		return model.CourierPing{}, errInvalid("speed must be a finite number >= 0")
	}
	label := strings.TrimSpace(in.Label)
	if len(label) > 255 {
		return model.CourierPing{}, errInvalid("label too long")
	}

	if _, err := u.findCourier(ctx, courierID); err != nil {
		return model.CourierPing{}, err
	}

	p, err := u.couriers.AppendPing(ctx, model.CourierPing{
		CourierID: courierID,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Speed:     in.Speed,
		Label:     label,
		CreatedAt: u.now(),
	})
	if err != nil {
		return model.CourierPing{}, errDB()
	}

	if err := u.pings.SetLatestPing(ctx, p); err != nil {
		u.log.Warn("latest ping cache write failed", zap.Int64("courier_id", courierID), zap.Error(err))
	}
	return p, nil
}

// まだピンが無ければ nil
func (u *CourierUsecase) LatestPing(ctx context.Context, courierID int64) (*model.CourierPing, error) {
	if courierID <= 0 {
		return nil, errInvalid("invalid courier id")
	}
	if _, err := u.findCourier(ctx, courierID); err != nil {
		return nil, err
	}

	if p, err := u.pings.GetLatestPing(ctx, courierID); err == nil {
		return &p, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		u.log.Warn("latest ping cache read failed", zap.Int64("courier_id", courierID), zap.Error(err))
	}

	p, err := u.couriers.LatestPing(ctx, courierID)
	if err == repo.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errDB()
	}
	if err := u.pings.SetLatestPing(ctx, p); err != nil {
		u.log.Warn("latest ping cache write failed", zap.Int64("courier_id", courierID), zap.Error(err))
	}
	return &p, nil
}

// since 以降のピンを古い順に返す（平滑化などはしない）。
// since が未指定なら直近24時間、上限より古ければ上限まで切り詰める。
func (u *CourierUsecase) RouteSince(ctx context.Context, courierID int64, since *time.Time) ([]model.CourierPing, error) {
	if courierID <= 0 {
		return nil, errInvalid("invalid courier id")
	}
	if _, err := u.findCourier(ctx, courierID); err != nil {
		return nil, err
	}

	now := u.now()
	from := now.Add(-defaultRouteWindow)
	if since != nil {
		from = *since
	}
	if floor := now.Add(-u.maxLookback); from.Before(floor) {
		from = floor
	}

	pings, err := u.couriers.PingsSince(ctx, courierID, from)
	if err != nil {
		return nil, errDB()
	}
	if pings == nil {
		pings = []model.CourierPing{}
	}
	return pings, nil
}

// 注文に割り当てられた配達員。本人の注文か管理者のみ。未割り当てなら nil。
func (u *CourierUsecase) CourierForOrder(ctx context.Context, userID int64, isAdmin bool, orderID int64) (*model.Courier, error) {
	if userID <= 0 {
		return nil, errUnauthorized()
	}
	if orderID <= 0 {
		return nil, errInvalid("invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if err == repo.ErrNotFound {
		return nil, errOrderNotFound()
	}
	if err != nil {
		return nil, errDB()
	}
	if !isAdmin && o.UserID != userID {
		return nil, errOrderNotFound()
	}
	if o.CourierID == nil {
		return nil, nil
	}

	c, err := u.findCourier(ctx, *o.CourierID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (u *CourierUsecase) findCourier(ctx context.Context, courierID int64) (model.Courier, error) {
	c, err := u.couriers.FindByID(ctx, courierID)
	if err == repo.ErrNotFound {
		return model.Courier{}, errCourierNotFound()
	}
	if err != nil {
		return model.Courier{}, errDB()
	}
	return c, nil
}
