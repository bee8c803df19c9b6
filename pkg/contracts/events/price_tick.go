package events

import "time"

// Evento publicado no tópico "price_ticks"
type PriceTick struct {
	Symbol    string    `json:"symbol"` // ex: "BTCUSDT"
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
	Source    string    `json:"source"`  // "price-simulator"
	Version   int       `json:"version"` // incrementado a cada tick
}
