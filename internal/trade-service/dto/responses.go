package dto

import "time"

type PlaceOrderResponse struct {
	OrderID    string    `json:"orderId"`
	Status     string    `json:"status"` // ACTIVE
	EntryPrice float64   `json:"entry_price"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type OrderResponse struct {
	OrderID            string     `json:"orderId"`
	Symbol             string     `json:"symbol"`
	AmountCents        int64      `json:"amount_cents"`
	RequestedDirection string     `json:"requested_direction"`
	EffectiveDirection string     `json:"effective_direction,omitempty"`
	DurationSec        int        `json:"duration_sec"`
	EntryPrice         float64    `json:"entry_price"`
	ExitPrice          *float64   `json:"exit_price,omitempty"`
	ProfitLossCents    *int64     `json:"profit_loss_cents,omitempty"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	ExpiresAt          time.Time  `json:"expires_at"`
	SettledAt          *time.Time `json:"settled_at,omitempty"`
}

type BalanceResponse struct {
	UserID         string `json:"userId"`
	BalanceCents   int64  `json:"balance_cents"`
	AvailableCents int64  `json:"available_cents"`
	FrozenCents    int64  `json:"frozen_cents"`
	Bias           string `json:"bias"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
