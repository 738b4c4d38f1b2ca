package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"beerstore/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// 新しい時刻のときだけ最新ピンを書き換える
var setLatestPingScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if cur and tonumber(cur) > tonumber(ARGV[2]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

type RedisCache struct {
	client     *redis.Client
	balanceTTL time.Duration
	pingTTL    time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:     client,
		balanceTTL: 10 * time.Minute,
		pingTTL:    24 * time.Hour,
	}
}

func balanceKey(userID int64) string {
	return fmt.Sprintf("points:balance:%d", userID)
}

func pingKey(courierID int64) string {
	return fmt.Sprintf("courier:latest:%d", courierID)
}

func pingTSKey(courierID int64) string {
	return fmt.Sprintf("courier:latest:%d:ts", courierID)
}

func (r *RedisCache) GetBalance(ctx context.Context, userID int64) (int64, error) {
	v, err := r.client.Get(ctx, balanceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrCacheMiss
	}
	if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cached balance: %w", err)
	}
	return n, nil
}

func (r *RedisCache) SetBalance(ctx context.Context, userID int64, balance int64) error {
	if err := r.client.Set(ctx, balanceKey(userID), balance, r.balanceTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) InvalidateBalance(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, balanceKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func (r *RedisCache) GetLatestPing(ctx context.Context, courierID int64) (model.CourierPing, error) {
	data, err := r.client.Get(ctx, pingKey(courierID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.CourierPing{}, ErrCacheMiss
	}
	if err != nil {
		return model.CourierPing{}, fmt.Errorf("redis get failed: %w", err)
	}

	var p model.CourierPing
	if err := json.Unmarshal(data, &p); err != nil {
		return model.CourierPing{}, fmt.Errorf("unmarshal ping failed: %w", err)
	}
	return p, nil
}

func (r *RedisCache) SetLatestPing(ctx context.Context, p model.CourierPing) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal ping failed: %w", err)
	}

	keys := []string{pingKey(p.CourierID), pingTSKey(p.CourierID)}
	err = setLatestPingScript.Run(ctx, r.client, keys,
		string(data), p.CreatedAt.UnixNano(), r.pingTTL.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis set ping failed: %w", err)
	}
	return nil
}
