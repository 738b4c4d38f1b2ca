package repository

import (
	"context"
	"time"

	"beerstore/internal/domain/model"
)

type CourierRepository interface {
	Create(ctx context.Context, c model.Courier) (model.Courier, error)
	FindByID(ctx context.Context, courierID int64) (model.Courier, error)
	List(ctx context.Context, activeOnly bool) ([]model.Courier, error)

	AppendPing(ctx context.Context, p model.CourierPing) (model.CourierPing, error)
	LatestPing(ctx context.Context, courierID int64) (model.CourierPing, error)
	// since以降のピン（古い順）
	PingsSince(ctx context.Context, courierID int64, since time.Time) ([]model.CourierPing, error)
}
