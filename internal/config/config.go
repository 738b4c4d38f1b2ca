package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	JWTSecret string // JWT検証シークレット（発行は認証サービス側）

	GoEnv string // dev/prod

	RedisAddr     string // 空ならキャッシュなし
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string // 空なら通知はログ出力のみ
	KafkaTopic   string

	StoreLocation *time.Location // 日次締めの「1日」を決めるタイムゾーン

	ShippingZonesFile string // 空なら埋め込みのゾーン表

	CourierMaxLookback time.Duration // routeSince の遡り上限

	NotifyQueueSize int // 通知キューの長さ
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		GoEnv:             getenv("GO_ENV", "dev"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		KafkaTopic:        getenv("KAFKA_TOPIC", "order-events"),
		ShippingZonesFile: os.Getenv("SHIPPING_ZONES_FILE"),
	}

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.GoEnv {
	case "dev", "prod", "test":
	default:
		return Config{}, fmt.Errorf("GO_ENV must be dev, prod or test")
	}

	redisDB, err := atoiDefault("REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.RedisDB = redisDB

	queue, err := atoiDefault("NOTIFY_QUEUE_SIZE", 256)
	if err != nil {
		return Config{}, err
	}
	if queue <= 0 {
		return Config{}, fmt.Errorf("NOTIFY_QUEUE_SIZE must be > 0")
	}
	cfg.NotifyQueueSize = queue

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	loc, err := time.LoadLocation(getenv("STORE_TIMEZONE", "America/Mexico_City"))
	if err != nil {
		return Config{}, fmt.Errorf("STORE_TIMEZONE invalid: %w", err)
	}
	cfg.StoreLocation = loc

	lookback, err := time.ParseDuration(getenv("COURIER_MAX_LOOKBACK", "168h"))
	if err != nil {
		return Config{}, fmt.Errorf("COURIER_MAX_LOOKBACK must be duration: %w", err)
	}
	if lookback <= 0 {
		return Config{}, fmt.Errorf("COURIER_MAX_LOOKBACK must be > 0")
	}
	cfg.CourierMaxLookback = lookback

	return cfg, nil
}

// listen用のアドレス（":8080"）
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}
