package events

type OrderPlaced struct {
	OrderID     string  `json:"order_id"`
	UserID      string  `json:"user_id"`
	Symbol      string  `json:"symbol"`
	Direction   string  `json:"direction"` // "UP" | "DOWN"
	AmountCents int64   `json:"amount_cents"`
	DurationSec int     `json:"duration_sec"`
	EntryPrice  float64 `json:"entry_price"`
	ExpiresAtMs int64   `json:"expires_at_ms"`
	TsUnixMs    int64   `json:"ts_unix_ms"`
}
