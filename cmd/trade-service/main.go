package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/radieske/crypto-options-platform-poc/internal/shared/cache"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/config"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/db"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/kafka"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/logger"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/metrics"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/httpapi"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/intake"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/ledger"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/orders"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/prices"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/producer"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("trade-service", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres: contas e ordens
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis: cache de preço corrente alimentado pelo price-processor
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writer (topic order_placed)
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicOrderPlaced)
	defer writer.Close()

	rules := orders.Rules{MinStakeCents: cfg.MinStakeCents, Durations: cfg.ProfitRates}

	// deps
	ldg := ledger.NewPostgres(pg)
	store := orders.NewPostgres(pg, rules, nil)
	priceReader := prices.NewReader(rdb)
	publ := producer.NewKafkaPublisher(writer, cfg.TopicOrderPlaced)

	svc := &intake.Service{
		Log:    log,
		Ledger: ldg,
		Store:  store,
		Prices: priceReader,
		Publ:   publ,
		Rules:  rules,
	}

	// HTTP público
	api := &httpapi.Server{Log: log, Intake: svc, Store: store, Ledger: ldg}
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	// metrics/health em porta separada
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})

	log.Info("trade-service listening", zap.String("addr", fmt.Sprintf(":%s", cfg.HTTPPort)))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
