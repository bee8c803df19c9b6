package topics

const (
	// Preços
	PriceTicks    = "price_ticks"
	PriceTicksDLQ = "price_ticks_dlq"

	// Ordens
	OrderPlaced  = "order_placed"
	OrderSettled = "order_settled"
)
