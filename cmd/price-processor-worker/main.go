package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/crypto-options-platform-poc/internal/price-processor/cache"
	"github.com/radieske/crypto-options-platform-poc/internal/price-processor/consumer"
	"github.com/radieske/crypto-options-platform-poc/internal/price-processor/repository"
	sharedcache "github.com/radieske/crypto-options-platform-poc/internal/shared/cache"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/config"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/db"
	skafka "github.com/radieske/crypto-options-platform-poc/internal/shared/kafka"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/logger"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Cache Redis e repositório Postgres de preços
	rcache := cache.NewRedisCache(redisClient, cfg.PriceCacheTTL)
	repo := repository.NewPostgresRepo(pg)

	// Consumer Kafka (consumer group price-processor)
	reader := skafka.NewReader(cfg.KafkaBrokers, cfg.TopicPriceTicks, "price-processor")
	defer reader.Close()

	// DLQ para ticks indecodificáveis
	dlqWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPriceTicksDLQ)
	defer dlqWriter.Close()

	// Métricas Prometheus para monitoramento do processamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "price_proc_messages_consumed_total", Help: "mensagens consumidas"})
	cached := prometheus.NewCounter(prometheus.CounterOpts{Name: "price_proc_cache_sets_total", Help: "sets no cache"})
	persist := prometheus.NewCounter(prometheus.CounterOpts{Name: "price_proc_db_writes_total", Help: "escritas no banco (upsert+history)"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "price_proc_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, cached, persist, errorsBy)

	proc := &consumer.Processor{
		Log:        log,
		Reader:     reader,
		Repo:       repo,
		Cache:      rcache,
		DLQ:        dlqWriter,
		OnConsumed: func() { consumed.Inc() },
		OnCached:   func() { cached.Inc() },
		OnPersist:  func() { persist.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Servidor HTTP para métricas e healthcheck
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return redisClient.Ping(ctx).Err()
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("price-processor-worker started", zap.String("topic", cfg.TopicPriceTicks))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor", zap.Error(err))
	}
	log.Info("price-processor-worker stopped")
}
