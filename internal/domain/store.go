package domain

import "time"

type Store struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PaymentAccount records a store's connected processor account. A store can
// receive checkouts only once DetailsSubmitted is true.
type PaymentAccount struct {
	ID               string    `json:"id"`
	StoreID          string    `json:"store_id"`
	StripeAccountID  string    `json:"stripe_account_id"`
	DetailsSubmitted bool      `json:"details_submitted"`
	CreatedAt        time.Time `json:"created_at"`
}
