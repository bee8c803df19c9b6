package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/crypto-options-platform-poc/internal/settlement-worker/settler"
	scache "github.com/radieske/crypto-options-platform-poc/internal/shared/cache"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/config"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/db"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/kafka"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/logger"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/metrics"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/ledger"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/orders"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/outcome"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/prices"
	"github.com/radieske/crypto-options-platform-poc/pkg/contracts/events"
)

// settledPublisher adapta o writer Kafka pro Settler
type settledPublisher struct {
	writer *kafka.Writer
}

func (p *settledPublisher) PublishOrderSettled(ctx context.Context, e events.OrderSettled) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.writer, e.OrderID, b)
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Conexão com banco de dados Postgres (contas, ordens e pendências)
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis: preço corrente pra apurar o exit price
	rdb, err := scache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka producer: publica eventos order_settled
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicOrderSettled)
	defer settledWriter.Close()

	// Métricas Prometheus para monitoramento da liquidação
	settleTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_orders_total", Help: "ordens liquidadas por desfecho"}, []string{"outcome"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_skipped_total", Help: "corridas benignas (já liquidada)"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_errors_total", Help: "erros por estágio"}, []string{"stage"})
	discrepancies := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_discrepancies_total", Help: "pendências de reconciliação registradas"})
	prometheus.MustRegister(settleTotal, skipped, errorsBy, discrepancies)

	rules := orders.Rules{MinStakeCents: cfg.MinStakeCents, Durations: cfg.ProfitRates}

	s := &settler.Settler{
		Log:    log,
		Store:  orders.NewPostgres(pg, rules, nil),
		Ledger: ledger.NewPostgres(pg),
		Policy: outcome.NewPolicy(cfg.ProfitRates, nil),
		Prices: prices.NewReader(rdb),
		Publ:   &settledPublisher{writer: settledWriter},
		Disc:   settler.NewPostgresDiscrepancies(pg),

		Interval:       cfg.SettleInterval,
		BatchSize:      cfg.SettleBatchSize,
		AttemptTimeout: cfg.SettleTimeout,

		OnSettled: func(won bool) {
			if won {
				settleTotal.WithLabelValues("win").Inc()
			} else {
				settleTotal.WithLabelValues("loss").Inc()
			}
		},
		OnSkipped:     func() { skipped.Inc() },
		OnError:       func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
		OnDiscrepancy: func() { discrepancies.Inc() },
	}

	// Servidor HTTP para métricas Prometheus e healthcheck
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("settlement-worker started",
		zap.Duration("interval", cfg.SettleInterval),
		zap.Int("batchSize", cfg.SettleBatchSize),
	)

	if err := s.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("settler", zap.Error(err))
	}
	log.Info("settlement-worker stopped")
}
