package domain

import "time"

// Dimensions are used to quote shipping; any field may be absent, in which
// case the rate adapter substitutes carrier defaults.
type Dimensions struct {
	LengthCm *float64 `json:"length_cm,omitempty"`
	WidthCm  *float64 `json:"width_cm,omitempty"`
	HeightCm *float64 `json:"height_cm,omitempty"`
	WeightG  *float64 `json:"weight_g,omitempty"`
}

type Product struct {
	ID            string     `json:"id"`
	StoreID       string     `json:"store_id"`
	CategoryID    string     `json:"category_id"`
	SubcategoryID *string    `json:"subcategory_id,omitempty"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Images        []string   `json:"images"`
	Tags          []string   `json:"tags"`
	Price         int64      `json:"price"` // minor units
	Inventory     int        `json:"inventory"`
	Dimensions    Dimensions `json:"dimensions"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Subcategory struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
}
