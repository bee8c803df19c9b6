package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/crypto-options-platform-poc/internal/shared/config"
	skafka "github.com/radieske/crypto-options-platform-poc/internal/shared/kafka"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/logger"
	"github.com/radieske/crypto-options-platform-poc/internal/shared/metrics"
	"github.com/radieske/crypto-options-platform-poc/pkg/contracts/events"
)

// Preços iniciais do random walk por símbolo
var seedPrices = map[string]float64{
	"BTCUSDT": 64000,
	"ETHUSDT": 3400,
	"SOLUSDT": 150,
}

var ticksSent = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "simulator_ticks_sent_total",
	Help: "Total de ticks de preço publicados",
})

// gera número aleatório entre min e max
func rnd(min, max float64) float64 {
	return (rand.Float64() * (max - min)) + min
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(ticksSent)

	writer := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPriceTicks)
	defer writer.Close()

	// Estado do random walk
	prices := make(map[string]float64)
	for _, sym := range cfg.Symbols {
		if p, ok := seedPrices[sym]; ok {
			prices[sym] = p
		} else {
			prices[sym] = rnd(10, 1000)
		}
	}

	// Servidor de métricas/health
	metrics.StartMetricsServer(cfg.MetricsPort, func(context.Context) error { return nil })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("price-simulator started",
		zap.Strings("symbols", cfg.Symbols),
		zap.Duration("interval", cfg.TickInterval),
	)

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	version := 1
	for {
		select {
		case <-ctx.Done():
			log.Info("price-simulator stopped")
			return
		case <-ticker.C:
			for sym, p := range prices {
				// passo do random walk: até ±0.2% por tick
				next := p * (1 + rnd(-0.002, 0.002))
				prices[sym] = next

				tick := events.PriceTick{
					Symbol:    sym,
					Price:     next,
					UpdatedAt: time.Now().UTC(),
					Source:    cfg.ServiceName,
					Version:   version,
				}
				b, _ := json.Marshal(tick)

				wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
				if err := skafka.WriteJSON(wctx, writer, sym, b); err != nil {
					log.Warn("publish tick", zap.String("symbol", sym), zap.Error(err))
				} else {
					ticksSent.Inc()
				}
				cancel()
			}
			version++
		}
	}
}
