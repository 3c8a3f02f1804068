package model

import "time"

// Order status values. NOT_PAID is the only non-terminal state; PAID and
// TIMEOUT are sticky.
const (
	OrderNotPaid = 0
	OrderPaid    = 1
	OrderTimeout = 2
)

// Order is a reservation of interface call units awaiting payment.
type Order struct {
	ID          int64     `json:"id" db:"id"`
	OrderSn     string    `json:"order_sn" db:"order_sn"`
	UserID      int64     `json:"user_id" db:"user_id"`
	InterfaceID int64     `json:"interface_id" db:"interface_id"`
	Count       int64     `json:"count" db:"count"`
	TotalAmount float64   `json:"total_amount" db:"total_amount"`
	Status      int       `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
