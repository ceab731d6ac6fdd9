package domain

import "time"

type OrderFinalizedEvent struct {
	OrderID   string      `json:"order_id"`
	StoreID   string      `json:"store_id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Items     []OrderItem `json:"items"`
	Amount    string      `json:"amount"`
	Timestamp time.Time   `json:"timestamp"`
}
