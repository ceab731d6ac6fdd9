package domain

import "encoding/json"

// Metadata keys embedded on a payment intent. The items snapshot is what the
// finalizer re-parses after payment, so the encode/decode pair below must
// round-trip exactly.
const (
	MetadataKeyCartID = "cartId"
	MetadataKeyItems  = "items"
)

// CheckoutItem is the compact line shape serialized into intent metadata.
type CheckoutItem struct {
	ProductID string `json:"productId"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

func EncodeCheckoutItems(items []CheckoutItem) (string, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func DecodeCheckoutItems(raw string) ([]CheckoutItem, error) {
	var items []CheckoutItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}
