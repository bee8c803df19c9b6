package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/crypto-options-platform-poc/pkg/contracts/events"
)

// RedisCache encapsula o cache de preço corrente por símbolo
// Client: cliente Redis
// TTL: tempo de expiração dos registros (preço velho não é servido)
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(c *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: c, TTL: ttl}
}

// key gera a chave Redis do preço corrente de um símbolo
func key(symbol string) string { return "price:current:" + symbol }

// SetCurrent armazena o tick mais recente do símbolo com TTL definido
func (r *RedisCache) SetCurrent(ctx context.Context, t events.PriceTick) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key(t.Symbol), b, r.TTL).Err()
}
