package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"` // minor units, snapshot at purchase time
}

// Order is an immutable snapshot created exactly once per payment intent;
// the unique constraint on StripePaymentIntentID is the idempotency key.
type Order struct {
	ID                        string          `json:"id"`
	StoreID                   string          `json:"store_id"`
	Items                     []OrderItem     `json:"items"`
	Quantity                  int             `json:"quantity"`
	Amount                    decimal.Decimal `json:"amount"` // major units
	StripePaymentIntentID     string          `json:"stripe_payment_intent_id"`
	StripePaymentIntentStatus string          `json:"stripe_payment_intent_status"`
	Name                      string          `json:"name"`
	Email                     string          `json:"email"`
	AddressID                 *string         `json:"address_id,omitempty"`
	CreatedAt                 time.Time       `json:"created_at"`
}

// Address is captured from the processor's shipping fields at finalization;
// fields may be partial and are stored as reported.
type Address struct {
	ID         string `json:"id"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}
