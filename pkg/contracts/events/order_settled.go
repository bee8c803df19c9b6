package events

import "time"

// Evento emitido pelo settlement-worker após liquidar uma ordem.
type OrderSettled struct {
	OrderID         string    `json:"orderId"`
	UserID          string    `json:"userId"`
	Outcome         string    `json:"outcome"` // "WIN" | "LOSS"
	ProfitLossCents int64     `json:"profit_loss_cents"`
	ExitPrice       float64   `json:"exit_price"`
	Ts              time.Time `json:"ts"`
}
