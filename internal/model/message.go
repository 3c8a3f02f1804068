package model

// CompensationMessage is published when a downstream call fails after its
// quota was already charged. ChargeID identifies the specific charge so the
// consumer can refuse to roll the same charge back twice.
type CompensationMessage struct {
	ChargeID    string `json:"charge_id"`
	UserID      int64  `json:"user_id"`
	InterfaceID int64  `json:"interface_id"`
}

// OrderExpireMessage fires after the reservation window to trigger timeout
// reconciliation for an order that may still be unpaid.
type OrderExpireMessage struct {
	OrderSn string `json:"order_sn"`
}

// PaymentSuccessMessage carries a payment-success notification keyed by the
// gateway-side trade number.
type PaymentSuccessMessage struct {
	OutTradeNo string `json:"out_trade_no"`
}
