package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"beerstore/internal/config"
	"beerstore/internal/domain/shipping"
	"beerstore/internal/handler"
	"beerstore/internal/infra/cache"
	"beerstore/internal/infra/db"
	"beerstore/internal/infra/notify"
	infraRepo "beerstore/internal/infra/repository"
	"beerstore/internal/logger"
	"beerstore/internal/server"
	"beerstore/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	//.envは無くてもよい（本番は環境変数で渡す）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.GoEnv)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	//DB接続とマイグレーション
	gormDB, err := db.Connect(log)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB, log); err != nil {
		return err
	}

	//キャッシュ（REDIS_ADDR が無ければ無効）
	var (
		balances cache.BalanceCache = cache.Noop{}
		pings    cache.PingCache    = cache.Noop{}
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		rc := cache.NewRedisCache(rdb)
		balances, pings = rc, rc
		log.Info("redis cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	//通知（KAFKA_BROKERS が無ければログだけ）
	var pub notify.Publisher = notify.NewLogPublisher(log)
	if len(cfg.KafkaBrokers) > 0 {
		pub = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		log.Info("kafka notifications enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	dispatcher := notify.NewDispatcher(pub, cfg.NotifyQueueSize, log)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.Warn("close notifier", zap.Error(err))
		}
	}()

	table, err := shipping.LoadTable(cfg.ShippingZonesFile)
	if err != nil {
		return fmt.Errorf("load shipping zones: %w", err)
	}

	//repo
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	courierRepo := infraRepo.NewCourierGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//usecase
	productUC := usecase.NewProductUsecase(productRepo, txm)
	cartUC := usecase.NewCartUsecase(cartRepo, productRepo)
	orderUC := usecase.NewOrderUsecase(txm, shipping.NewCalculator(table), usecase.DefaultPointsPolicy(), balances, dispatcher, log)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, balances, dispatcher, log)
	pointsUC := usecase.NewPointsUsecase(txm, balances, log)
	courierUC := usecase.NewCourierUsecase(txm, courierRepo, orderRepo, pings, cfg.CourierMaxLookback, log)
	dailyCutUC := usecase.NewDailyCutUsecase(txm, cfg.StoreLocation)
	auditLogUC := usecase.NewAuditLogUsecase(auditRepo)

	//handler
	e := server.NewEcho(cfg, log, server.Handlers{
		Product:      handler.NewProductHandler(productUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		Cart:         handler.NewCartHandler(cartUC),
		Order:        handler.NewOrderHandler(orderUC, courierUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
		Points:       handler.NewPointsHandler(pointsUC),
		Courier:      handler.NewCourierHandler(courierUC),
		Report:       handler.NewReportHandler(dailyCutUC, orderUC),
		AuditLog:     handler.NewAuditLogHandler(auditLogUC),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx, cfg.Addr(), e, log)
}
