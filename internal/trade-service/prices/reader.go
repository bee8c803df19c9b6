package prices

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/crypto-options-platform-poc/pkg/contracts/events"
)

var ErrUnavailable = errors.New("price unavailable")

// Reader consulta o preço corrente de um símbolo no cache Redis,
// alimentado pelo price-processor-worker. O TTL da chave garante que
// preço velho não é servido.
type Reader struct {
	Rdb *redis.Client
}

func NewReader(r *redis.Client) *Reader { return &Reader{Rdb: r} }

func key(symbol string) string { return "price:current:" + symbol }

func (r *Reader) Current(ctx context.Context, symbol string) (float64, error) {
	b, err := r.Rdb.Get(ctx, key(symbol)).Bytes()
	if err == redis.Nil {
		return 0, ErrUnavailable
	}
	if err != nil {
		return 0, err
	}
	var tick events.PriceTick
	if err := json.Unmarshal(b, &tick); err != nil {
		return 0, err
	}
	if tick.Price <= 0 {
		return 0, ErrUnavailable
	}
	return tick.Price, nil
}
