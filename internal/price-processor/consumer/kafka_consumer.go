package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/crypto-options-platform-poc/internal/price-processor/cache"
	"github.com/radieske/crypto-options-platform-poc/internal/price-processor/repository"
	"github.com/radieske/crypto-options-platform-poc/pkg/contracts/events"
)

// Processor consome ticks de preço do Kafka, faz cache e persiste no banco
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Processor struct {
	Log    *zap.Logger
	Reader *kafka.Reader
	Repo   *repository.PostgresRepo
	Cache  *cache.RedisCache
	DLQ    *kafka.Writer // opcional: mensagens indecodificáveis

	OnConsumed func()       // métricas (counter++)
	OnCached   func()       // métricas
	OnPersist  func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo e processamento
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fireError("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		var tick events.PriceTick
		if err := json.Unmarshal(m.Value, &tick); err != nil || tick.Symbol == "" || tick.Price <= 0 {
			p.Log.Warn("invalid tick", zap.Error(err))
			p.fireError("decode")
			if p.DLQ != nil {
				_ = p.DLQ.WriteMessages(ctx, kafka.Message{Key: m.Key, Value: m.Value, Time: time.Now()})
			}
			continue
		}

		// Atualiza o cache Redis com o preço corrente
		if err := p.Cache.SetCurrent(ctx, tick); err != nil {
			p.Log.Warn("redis set failed", zap.Error(err))
			p.fireError("cache")
			// não bloqueia persistência se falhar o cache
		} else if p.OnCached != nil {
			p.OnCached()
		}

		// Persiste preço corrente e histórico no Postgres
		if err := p.Repo.UpsertCurrent(ctx, tick); err != nil {
			p.Log.Warn("db upsert failed", zap.Error(err))
			p.fireError("db_upsert")
			continue
		}
		if err := p.Repo.InsertHistory(ctx, tick); err != nil {
			p.Log.Warn("db insert history failed", zap.Error(err))
			p.fireError("db_history")
			continue
		}
		if p.OnPersist != nil {
			p.OnPersist()
		}
	}
}

func (p *Processor) fireError(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
