package domain

import "time"

// Cart is identified to the client solely by an opaque id carried in a
// cookie. Once closed it is logically dead: the next add creates a new cart.
type Cart struct {
	ID              string     `json:"id"`
	Items           []CartItem `json:"items"`
	Closed          bool       `json:"closed"`
	PaymentIntentID *string    `json:"payment_intent_id,omitempty"`
	ClientSecret    *string    `json:"client_secret,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CartLine is a cart item joined with its product for storefront display.
type CartLine struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
	Image     string `json:"image,omitempty"`
}
