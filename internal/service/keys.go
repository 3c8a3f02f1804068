package service

// Redis key builders for the cross-consumer idempotency markers. Producers
// and consumers must agree on these, so they live in one place.

const (
	sendPaySuccessPrefix    = "mq:send:order:paysuccess:"
	consumePaySuccessPrefix = "mq:consume:order:paysuccess:"
	tradeSuccessPrefix      = "pay:trade:success:"
	compensationPrefix      = "mq:consume:compensation:"
	stockReturnedPrefix     = "order:stock:returned:"

	// MarkerValue is the placeholder stored under marker keys.
	MarkerValue = "1"
)

// SendPaySuccessKey marks that a payment-success message for the given trade
// was handed to the broker.
func SendPaySuccessKey(outTradeNo string) string {
	return sendPaySuccessPrefix + outTradeNo
}

// ConsumePaySuccessKey marks that the payment-success message for the given
// trade was fully applied (grant included).
func ConsumePaySuccessKey(outTradeNo string) string {
	return consumePaySuccessPrefix + outTradeNo
}

// TradeSuccessKey dedups provider callbacks for the same trade.
func TradeSuccessKey(outTradeNo string) string {
	return tradeSuccessPrefix + outTradeNo
}

// CompensationKey dedups compensation deliveries for one charge.
func CompensationKey(chargeID string) string {
	return compensationPrefix + chargeID
}

// StockReturnedKey marks that an expired order's reserved stock went back,
// so redeliveries neither skip nor repeat the return.
func StockReturnedKey(orderSn string) string {
	return stockReturnedPrefix + orderSn
}
