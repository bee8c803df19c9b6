package dto

type PlaceOrderRequest struct {
	UserID      string  `json:"userId"`
	Symbol      string  `json:"symbol"`    // ex: "BTCUSDT"
	Direction   string  `json:"direction"` // "UP" | "DOWN"
	AmountCents int64   `json:"amount_cents"`
	DurationSec int     `json:"duration_sec"`
	EntryPrice  float64 `json:"entry_price,omitempty"` // opcional; default: cache de preço
	// Direção "real" do mercado informada pelo chamador, opcional.
	// Quando presente, decide o resultado de usuários com bias ACTUAL.
	ActualDirection string `json:"actual_direction,omitempty"`
}

type DepositRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
}

type SetBiasRequest struct {
	Bias string `json:"bias"` // "ACTUAL" | "FORCE_WIN" | "FORCE_LOSS"
}
